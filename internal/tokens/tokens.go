// Package tokens provides token counting for context budgeting.
package tokens

import (
	"context"
	"log/slog"
)

// Source identifies how a count was produced.
type Source string

const (
	SourceExact    Source = "exact"
	SourceEstimate Source = "estimate"
)

// Counter counts tokens for a text.
type Counter interface {
	Count(ctx context.Context, text string) (int, error)
	Source() Source
}

// Estimator is the deterministic fallback counter, roughly four characters
// per token. It never fails.
type Estimator struct{}

// Count returns the estimated token count, always non-negative.
func (Estimator) Count(_ context.Context, text string) (int, error) {
	return Estimate(text), nil
}

// Source implements Counter.
func (Estimator) Source() Source { return SourceEstimate }

// Estimate returns the ~4-chars-per-token estimate for text.
func Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// Session is a single accounting session. It records which source produced
// its counts; exact and estimated counts are never silently mixed. When the
// exact counter fails, the session degrades wholesale to the estimator and
// the switch is logged and recorded.
type Session struct {
	counter  Counter
	source   Source
	degraded bool
	logger   *slog.Logger
}

// NewSession creates a session backed by the given counter.
// A nil counter means the estimator.
func NewSession(counter Counter, logger *slog.Logger) *Session {
	if counter == nil {
		counter = Estimator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{counter: counter, source: counter.Source(), logger: logger}
}

// Count returns the token count for text. A failing exact counter degrades
// the session to the estimator for the rest of its lifetime.
func (s *Session) Count(ctx context.Context, text string) int {
	n, err := s.counter.Count(ctx, text)
	if err != nil {
		if !s.degraded {
			s.logger.Warn("exact tokenizer failed, degrading session to estimator", "error", err)
		}
		s.counter = Estimator{}
		s.source = SourceEstimate
		s.degraded = true
		n, _ = s.counter.Count(ctx, text)
	}
	return n
}

// Source reports which counter the session currently uses.
func (s *Session) Source() Source { return s.source }

// Degraded reports whether the session fell back from exact to estimated
// counting mid-run.
func (s *Session) Degraded() bool { return s.degraded }
