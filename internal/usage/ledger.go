// Package usage provides the append-only accounting ledger for a run.
package usage

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/promptpack/internal/tokens"
)

// Record statuses.
const (
	StatusOK      = "ok"
	StatusRetried = "retried"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusTotal   = "total" // grand-total record written by Finalize
)

// Record is one accounting entry: a remote call attempt, a file load, or a
// budget skip.
type Record struct {
	Operation    string    `json:"operation"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Status       string    `json:"status"`
	LatencyMS    int64     `json:"latency_ms,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Ledger is the single accounting instance for a run. Created at process
// start, appended to by every remote call and file load, finalized exactly
// once at process end. Appends are serialized.
type Ledger struct {
	mu          sync.Mutex
	runID       string
	startedAt   time.Time
	records     []Record
	totalIn     int
	totalOut    int
	tokenSource tokens.Source
	finalized   bool
}

// NewLedger creates a ledger with a fresh ULID run ID.
func NewLedger(source tokens.Source) *Ledger {
	return &Ledger{
		runID:       newULID(),
		startedAt:   time.Now(),
		tokenSource: source,
	}
}

// RunID returns the run's ULID.
func (l *Ledger) RunID() string { return l.runID }

// StartedAt returns the ledger creation time.
func (l *Ledger) StartedAt() time.Time { return l.startedAt }

// TokenSource reports which counting source the run's records use.
func (l *Ledger) TokenSource() tokens.Source { return l.tokenSource }

// Append adds one record. Appends after Finalize are dropped.
func (l *Ledger) Append(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalized {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	l.records = append(l.records, rec)
	l.totalIn += rec.InputTokens
	l.totalOut += rec.OutputTokens
}

// Finalize writes the grand-total record and seals the ledger.
// Calling it again is a no-op.
func (l *Ledger) Finalize() Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalized {
		return l.records[len(l.records)-1]
	}
	total := Record{
		Operation:    "run",
		InputTokens:  l.totalIn,
		OutputTokens: l.totalOut,
		Status:       StatusTotal,
		Timestamp:    time.Now(),
	}
	l.records = append(l.records, total)
	l.finalized = true
	return total
}

// Finalized reports whether the grand-total record has been written.
func (l *Ledger) Finalized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finalized
}

// Records returns a copy of the record sequence.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Totals returns the running input and output token totals.
func (l *Ledger) Totals() (inputTokens, outputTokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalIn, l.totalOut
}

// newULID generates a new ULID.
func newULID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		// crypto/rand failures are not recoverable here; a zero-entropy ULID
		// still identifies the run.
		return ulid.Make().String()
	}
	return id.String()
}
