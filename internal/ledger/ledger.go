// Package ledger is the append-only record of accepted steps for one
// session. It is the sole writer of sequence numbers: dense, strictly
// increasing, starting at 1. Steps are immutable once appended except
// for a single clarification merge.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"screendoc/internal/logging"
	"screendoc/internal/types"
)

// ErrNotFound is returned when a clarification targets a sequence number
// the ledger never assigned. This indicates a state-machine bug, not a
// recoverable condition.
var ErrNotFound = errors.New("step not found")

// Persister receives durable flushes of the ledger document. Flushing
// the same state twice must be observationally idempotent.
type Persister interface {
	SaveLedger(ctx context.Context, doc types.LedgerDocument) error
}

// flush retry bounds; exhaustion surfaces to the caller as fatal.
const (
	flushAttempts = 3
	flushBackoff  = 500 * time.Millisecond
)

// Ledger holds the accepted steps of one session.
type Ledger struct {
	mu        sync.Mutex
	sessionID string
	createdAt time.Time
	steps     []types.Step
	persister Persister
}

// New creates an empty ledger for the given session.
func New(sessionID string, createdAt time.Time, p Persister) *Ledger {
	return &Ledger{
		sessionID: sessionID,
		createdAt: createdAt,
		persister: p,
	}
}

// Load restores a ledger from a persisted document.
func Load(doc types.LedgerDocument, p Persister) *Ledger {
	steps := make([]types.Step, len(doc.Steps))
	copy(steps, doc.Steps)
	return &Ledger{
		sessionID: doc.SessionID,
		createdAt: doc.CreatedAt,
		steps:     steps,
		persister: p,
	}
}

// Append assigns the next sequence number to the candidate, stores the
// resulting step, and flushes. The step is accepted in memory before the
// flush, so a flush failure loses durability, never the step itself; the
// returned error then reports persistence exhaustion.
func (l *Ledger) Append(ctx context.Context, cand types.StepCandidate, ref types.CaptureRef) (types.Step, error) {
	l.mu.Lock()
	step := types.Step{
		Seq:         len(l.steps) + 1,
		Action:      cand.Action,
		Motivation:  cand.Motivation,
		UIElements:  append([]string(nil), cand.UIElements...),
		Capture:     ref,
		Timestamp:   time.Now().UTC(),
		Confidence:  cand.Confidence,
		Progression: cand.Progression,
		Rationale:   cand.Rationale,
	}
	l.steps = append(l.steps, step)
	l.mu.Unlock()

	logging.Ledger("appended step %d action=%q confidence=%.2f", step.Seq, step.Action, step.Confidence)

	if err := l.flush(ctx); err != nil {
		return step, err
	}
	return step, nil
}

// AttachClarification merges a human answer into exactly one step's
// motivation and rationale, then flushes. Fails with ErrNotFound and
// leaves the ledger unmodified when seq was never assigned.
func (l *Ledger) AttachClarification(ctx context.Context, seq int, answer string) error {
	l.mu.Lock()
	if seq < 1 || seq > len(l.steps) {
		l.mu.Unlock()
		return fmt.Errorf("attach clarification to step %d: %w", seq, ErrNotFound)
	}
	s := &l.steps[seq-1]
	s.Clarification = answer
	if s.Motivation == "" || s.Degraded() {
		s.Motivation = answer
	}
	if s.Rationale != "" {
		s.Rationale += "\nClarification: " + answer
	} else {
		s.Rationale = "Clarification: " + answer
	}
	l.mu.Unlock()

	logging.Ledger("attached clarification to step %d (%d chars)", seq, len(answer))
	return l.flush(ctx)
}

// Recent returns up to n most recent steps, oldest first. Returned
// slices are copies; callers cannot mutate ledger state through them.
func (l *Ledger) Recent(n int) []types.Step {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.steps) {
		n = len(l.steps)
	}
	out := make([]types.Step, n)
	copy(out, l.steps[len(l.steps)-n:])
	return out
}

// All returns all steps in order, as a copy.
func (l *Ledger) All() []types.Step {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Step, len(l.steps))
	copy(out, l.steps)
	return out
}

// Len returns the number of accepted steps.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.steps)
}

// Document snapshots the ledger as its persisted document form.
func (l *Ledger) Document() types.LedgerDocument {
	l.mu.Lock()
	defer l.mu.Unlock()
	steps := make([]types.Step, len(l.steps))
	copy(steps, l.steps)
	return types.LedgerDocument{
		SessionID: l.sessionID,
		CreatedAt: l.createdAt,
		Steps:     steps,
	}
}

// Flush forces a durable write of the current state. Used for the
// best-effort final flush on abort.
func (l *Ledger) Flush(ctx context.Context) error {
	return l.flush(ctx)
}

// flush writes the document with bounded backoff. Cancellation is
// observed at retry boundaries only.
func (l *Ledger) flush(ctx context.Context) error {
	if l.persister == nil {
		return nil
	}
	doc := l.Document()

	var lastErr error
	for attempt := 0; attempt < flushAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(flushBackoff << uint(attempt-1)):
			}
		}
		if err := l.persister.SaveLedger(ctx, doc); err != nil {
			lastErr = err
			logging.Get(logging.CategoryLedger).Warn("flush attempt %d failed: %v", attempt+1, err)
			continue
		}
		logging.LedgerDebug("flushed %d steps for session %s", len(doc.Steps), doc.SessionID)
		return nil
	}
	return fmt.Errorf("ledger flush exhausted %d attempts: %w", flushAttempts, lastErr)
}
