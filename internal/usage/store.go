package usage

import (
	"database/sql"
	"fmt"
	"time"
)

// RunSummary describes one persisted run.
type RunSummary struct {
	ID           string    `json:"id"`
	Root         string    `json:"root"`
	Strategy     string    `json:"strategy"`
	TokenSource  string    `json:"token_source"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	RecordCount  int       `json:"record_count"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// SaveLedger persists a finalized ledger and its records.
func SaveLedger(db *sql.DB, l *Ledger, root, strategy string) error {
	if !l.Finalized() {
		return fmt.Errorf("ledger %s not finalized", l.RunID())
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	in, out := l.Totals()
	records := l.Records()

	_, err = tx.Exec(`
		INSERT INTO runs (id, root, strategy, token_source, input_tokens, output_tokens, record_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RunID(), root, strategy, string(l.TokenSource()), in, out, len(records),
		l.StartedAt().Unix(), time.Now().Unix(),
	)
	if err != nil {
		return err
	}

	for _, rec := range records {
		_, err = tx.Exec(`
			INSERT INTO usage_records (run_id, operation, input_tokens, output_tokens, status, latency_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.RunID(), rec.Operation, rec.InputTokens, rec.OutputTokens, rec.Status,
			rec.LatencyMS, rec.Timestamp.Unix(),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveDump persists one debug call dump (prompt, response, or error payload).
func SaveDump(db *sql.DB, runID, kind, payload string) error {
	_, err := db.Exec(`
		INSERT INTO call_dumps (run_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		runID, kind, payload, time.Now().Unix(),
	)
	return err
}

// ListRuns returns the most recent persisted runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, root, strategy, token_source, input_tokens, output_tokens, record_count, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var started, finished int64
		if err := rows.Scan(&s.ID, &s.Root, &s.Strategy, &s.TokenSource,
			&s.InputTokens, &s.OutputTokens, &s.RecordCount, &started, &finished); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(started, 0)
		s.FinishedAt = time.Unix(finished, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}

// RunRecords returns the usage records for one run, in insertion order.
func RunRecords(db *sql.DB, runID string) ([]Record, error) {
	rows, err := db.Query(`
		SELECT operation, input_tokens, output_tokens, status, latency_ms, created_at
		FROM usage_records WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var created int64
		if err := rows.Scan(&rec.Operation, &rec.InputTokens, &rec.OutputTokens,
			&rec.Status, &rec.LatencyMS, &created); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Unix(created, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}
