// Package pipeline runs the end-to-end context generation flow: scan,
// strategy selection, budgeted load, document generation, accounting.
package pipeline

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/hpungsan/promptpack/internal/budget"
	"github.com/hpungsan/promptpack/internal/config"
	"github.com/hpungsan/promptpack/internal/docgen"
	"github.com/hpungsan/promptpack/internal/ignore"
	"github.com/hpungsan/promptpack/internal/rank"
	"github.com/hpungsan/promptpack/internal/remote"
	"github.com/hpungsan/promptpack/internal/scan"
	"github.com/hpungsan/promptpack/internal/tokens"
	"github.com/hpungsan/promptpack/internal/usage"
	"github.com/hpungsan/promptpack/internal/vector"
)

// Result is the outcome of one full pipeline run.
type Result struct {
	RunID          string          `json:"run_id"`
	Strategy       string          `json:"strategy"`
	Ranking        rank.Ranking    `json:"ranking"`
	Selected       []string        `json:"selected"`
	Skips          []budget.Skip   `json:"skips,omitempty"`
	TotalTokens    int             `json:"total_tokens"`
	DocumentTokens int             `json:"document_tokens"`
	DocumentPath   string          `json:"document_path,omitempty"`
	Generated      bool            `json:"generated"`

	// TokenSource labels the ledger's records, which always carry estimator
	// counts. DocumentTokenSource labels DocumentTokens, which prefers the
	// exact tokenizer.
	TokenSource         tokens.Source  `json:"token_source"`
	DocumentTokenSource tokens.Source  `json:"document_token_source"`
	Totals              map[string]int `json:"totals"`
	Document            string         `json:"-"`
}

// Pipeline wires the configured components together. The database handle is
// optional; without it runs are simply not persisted.
type Pipeline struct {
	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger
}

// New creates a pipeline.
func New(cfg *config.Config, db *sql.DB, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, db: db, logger: logger}
}

// Scan compiles the ignore rules, loads repository ignore files, and walks
// the root.
func (p *Pipeline) Scan(root string) (*scan.Snapshot, error) {
	rules := ignore.Compile(p.cfg.ExcludePatterns, p.cfg.IncludePatterns)
	rules.LoadRepoRules(root, p.logger)
	return scan.Walk(root, rules)
}

// Rank scans the root and runs the strategy chain, without loading contents
// or generating a document. Remote calls are accounted on a throwaway ledger.
func (p *Pipeline) Rank(ctx context.Context, root string) (rank.Ranking, string, error) {
	snap, err := p.Scan(root)
	if err != nil {
		return nil, "", err
	}
	ledger := usage.NewLedger(tokens.SourceEstimate)
	client := p.client(ledger, nil)
	ranking, strategy := p.chain(client).Rank(ctx, snap)
	return ranking, strategy, nil
}

// Run executes the full pipeline against root and writes the context
// document into it. Strategy failures degrade, remote failures degrade; the
// only fatal paths are scanning and writing the document.
func (p *Pipeline) Run(ctx context.Context, root string) (*Result, error) {
	snap, err := p.Scan(root)
	if err != nil {
		return nil, err
	}

	ledger := usage.NewLedger(tokens.SourceEstimate)

	var dumper remote.Dumper
	if p.cfg.DebugRemoteCalls && p.db != nil {
		dumper = &dbDumper{db: p.db, runID: ledger.RunID(), logger: p.logger}
	}
	client := p.client(ledger, dumper)

	ranking, strategy := p.chain(client).Rank(ctx, snap)
	p.logger.Info("selection complete", "strategy", strategy, "candidates", len(ranking))

	loader := budget.NewLoader(p.cfg.TokenLimit, p.cfg.BufferFraction, ledger, p.logger)
	asm := loader.Load(snap, ranking)

	var gen docgen.Generator
	if client != nil {
		gen = client
	}
	writer := docgen.NewWriter(gen, p.logger)
	doc, generated := writer.Generate(ctx, snap, asm)
	path, err := writer.Write(snap, doc)
	if err != nil {
		ledger.Finalize()
		return nil, err
	}

	// Final document size uses the exact tokenizer when one is reachable;
	// a mid-count failure degrades the whole session to the estimator. The
	// ledger keeps its own source label: its records are estimator-based.
	session := p.session(client)
	docTokens := session.Count(ctx, doc)

	ledger.Finalize()
	p.persist(ledger, snap.Root, strategy)

	in, out := ledger.Totals()
	return &Result{
		RunID:          ledger.RunID(),
		Strategy:       strategy,
		Ranking:        ranking,
		Selected:       asm.Selected,
		Skips:          asm.Skips,
		TotalTokens:    asm.TotalTokens,
		DocumentTokens: docTokens,
		DocumentPath:        path,
		Generated:           generated,
		TokenSource:         ledger.TokenSource(),
		DocumentTokenSource: session.Source(),
		Totals:              map[string]int{"input": in, "output": out},
		Document:            doc,
	}, nil
}

// client returns the configured remote client, or nil when no API key is
// set. Availability is decided here, at construction, never mid-run.
func (p *Pipeline) client(ledger *usage.Ledger, dumper remote.Dumper) *remote.Client {
	if p.cfg.APIKey == "" {
		return nil
	}
	return remote.NewClient(remote.Options{
		BaseURL:         p.cfg.BaseURL,
		APIKey:          p.cfg.APIKey,
		GenerativeModel: p.cfg.GenerativeModel,
		EmbeddingModel:  p.cfg.EmbeddingModel,
		MaxAttempts:     p.cfg.MaxRemoteAttempts,
		Dumper:          dumper,
	}, ledger, p.logger)
}

// chain builds the strategy fallback chain for the configured mode. The
// rule-based terminal is always present; primaries that cannot run with the
// current configuration are left out up front.
func (p *Pipeline) chain(client *remote.Client) *rank.Chain {
	vectorStrategy := rank.NewVectorStrategy(
		p.embedder(client), docgen.SummaryQuery,
		p.cfg.MaxVectorFiles, p.cfg.MinSimilarity, p.logger)

	var primaries []rank.Strategy
	switch p.cfg.SelectionMode {
	case config.ModeVector:
		primaries = []rank.Strategy{vectorStrategy}
	case config.ModeAI:
		if client != nil {
			primaries = []rank.Strategy{rank.NewAIStrategy(client, p.logger)}
		} else {
			p.logger.Warn("ai selection requested but no API key is configured")
		}
	default: // auto
		primaries = []rank.Strategy{vectorStrategy}
		if client != nil {
			primaries = append(primaries, rank.NewAIStrategy(client, p.logger))
		}
	}
	return rank.NewChain(p.logger, primaries...)
}

// embedder picks the embedding backend: the remote service when configured,
// the local keyword embedder otherwise or when explicitly requested.
func (p *Pipeline) embedder(client *remote.Client) vector.Embedder {
	if p.cfg.EmbeddingModel == "keyword" || client == nil {
		return vector.KeywordEmbedder{}
	}
	return client
}

func (p *Pipeline) session(client *remote.Client) *tokens.Session {
	var counter tokens.Counter
	if client != nil {
		counter = &remote.TokenCounter{Client: client}
	}
	return tokens.NewSession(counter, p.logger)
}

// persist saves the finalized ledger. Persistence failure is logged, never
// fatal: the document is already on disk.
func (p *Pipeline) persist(ledger *usage.Ledger, root, strategy string) {
	if p.db == nil {
		return
	}
	if err := usage.SaveLedger(p.db, ledger, root, strategy); err != nil {
		p.logger.Warn("failed to persist run ledger", "run_id", ledger.RunID(), "error", err)
	}
}

// dbDumper persists debug call payloads to the run store.
type dbDumper struct {
	db     *sql.DB
	runID  string
	logger *slog.Logger
}

func (d *dbDumper) Dump(kind, payload string) {
	if err := usage.SaveDump(d.db, d.runID, kind, payload); err != nil {
		d.logger.Warn("failed to persist call dump", "kind", kind, "error", err)
	}
}
