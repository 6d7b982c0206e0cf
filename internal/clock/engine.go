// Package clock enforces the clock-in / clock-out policy on top of the
// hash-chained time log.
//
// The engine is a two-state machine driven by the kind of the last entry:
//
//	Out (empty log, or last entry "out") -- ClockIn  --> In
//	In  (last entry "in")                -- ClockOut --> Out
//
// Calls that do not fit the current state are rejected before the log is
// touched, so the log never sees an invalid append.
package clock

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/timeclock/timeclock/internal/timelog"
)

// State is the engine's current position in the in/out cycle.
type State string

const (
	StateOut State = "out"
	StateIn  State = "in"
)

// ErrSequence is matched by every *SequenceError via errors.Is.
var ErrSequence = errors.New("sequence violation")

// SequenceError reports a clock call that the current state does not allow.
type SequenceError struct {
	State   State // State at the time of the call.
	Attempt timelog.Kind
}

func (e *SequenceError) Error() string {
	if e.Attempt == timelog.KindIn {
		return "must clock out before clocking in again"
	}
	return "must clock in before clocking out"
}

// Is makes errors.Is(err, ErrSequence) match.
func (e *SequenceError) Is(target error) bool { return target == ErrSequence }

// appender is the part of timelog.Store the engine writes through.
type appender interface {
	Append(entries []timelog.Entry, kind timelog.Kind) ([]timelog.Entry, string, error)
}

// Engine owns the in-memory log and is the only writer of new entries.
// It is not safe for concurrent use; the time log assumes a single writer.
type Engine struct {
	log     appender
	entries []timelog.Entry
}

// Open loads and verifies the store's log and returns an engine positioned
// at the state implied by its last entry. A tampered or unreadable log is
// an error; no engine is returned for it.
func Open(store *timelog.Store) (*Engine, error) {
	entries, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading time log: %w", err)
	}
	return New(store, entries), nil
}

// New returns an engine over already-loaded entries.
func New(log appender, entries []timelog.Entry) *Engine {
	return &Engine{log: log, entries: entries}
}

// State returns In when the last entry is a clock-in, Out otherwise.
func (e *Engine) State() State {
	if n := len(e.entries); n > 0 && e.entries[n-1].Type == timelog.KindIn {
		return StateIn
	}
	return StateOut
}

// Entries returns the current log. The slice must not be modified.
func (e *Engine) Entries() []timelog.Entry {
	return e.entries
}

// ClockIn records a clock-in and returns its timestamp.
func (e *Engine) ClockIn() (string, error) {
	return e.clock(timelog.KindIn)
}

// ClockOut records a clock-out and returns its timestamp.
func (e *Engine) ClockOut() (string, error) {
	return e.clock(timelog.KindOut)
}

func (e *Engine) clock(kind timelog.Kind) (string, error) {
	state := e.State()
	allowed := (state == StateOut && kind == timelog.KindIn) ||
		(state == StateIn && kind == timelog.KindOut)
	if !allowed {
		slog.Debug("clock call rejected", "state", state, "attempt", kind)
		return "", &SequenceError{State: state, Attempt: kind}
	}

	entries, ts, err := e.log.Append(e.entries, kind)
	if err != nil {
		return "", fmt.Errorf("appending %q entry: %w", kind, err)
	}
	e.entries = entries

	slog.Info("clocked "+string(kind), "time", ts, "entries", len(entries))
	return ts, nil
}
