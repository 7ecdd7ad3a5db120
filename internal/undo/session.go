package undo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/rewind/internal/store"
)

// State is a read-only snapshot of a session, published to the Observer
// and surfaced by the CLI. Stack snapshots are copies; mutating them has
// no effect on the session.
type State struct {
	Token     string     `json:"token"`
	Active    bool       `json:"active"`
	Frozen    bool       `json:"frozen"`
	UndoStack []Interval `json:"undo_stack"`
	RedoStack []Interval `json:"redo_stack"`
}

// Observer receives a state snapshot after every mutating session
// operation. Hosts use it to gray out undo/redo controls or refresh
// views; the engine itself attaches no meaning to it.
type Observer interface {
	StateChanged(State)
}

// Session owns the undo/redo state for one set of tracked tables.
//
// A session is single-threaded: every method runs to completion on the
// caller's goroutine, and the session assumes exclusive write access to
// the undolog table between Activate and Deactivate. Multiple independent
// sessions may exist against different stores.
type Session struct {
	st       *store.Store
	token    string
	observer Observer

	// noFreeze disables the freeze/unfreeze capability; both calls
	// become no-ops, mirroring a build without the feature.
	noFreeze bool

	active  bool
	tables  []TrackedTable
	undo    stack
	redo    stack
	first   int64 // seq at which the next interval begins
	frozeAt int64 // freeze watermark, -1 when not frozen
}

// Option configures a Session.
type Option func(*Session)

// WithObserver attaches an observer notified after every state change.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithToken overrides the generated session token. Used by tests and the
// harness for deterministic output.
func WithToken(token string) Option {
	return func(s *Session) { s.token = token }
}

// WithoutFreeze disables the freeze capability: Freeze and Unfreeze
// become no-ops instead of taking effect or failing.
func WithoutFreeze() Option {
	return func(s *Session) { s.noFreeze = true }
}

// New creates an inactive session over the given store. The session token
// is a time-sortable UUIDv7 unless overridden.
func New(st *store.Store, opts ...Option) *Session {
	s := &Session{
		st:      st,
		token:   uuid.Must(uuid.NewV7()).String(),
		first:   1,
		frozeAt: -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the session identifier.
func (s *Session) Token() string {
	return s.token
}

// Active reports whether the session is between Activate and Deactivate.
func (s *Session) Active() bool {
	return s.active
}

// CanUndo reports whether an undo step is available.
func (s *Session) CanUndo() bool {
	return s.active && !s.undo.empty()
}

// CanRedo reports whether a redo step is available.
func (s *Session) CanRedo() bool {
	return s.active && !s.redo.empty()
}

// Tables returns the tracked-table descriptors captured at activation.
func (s *Session) Tables() []TrackedTable {
	return s.tables
}

// State returns a snapshot of the session for status display.
func (s *Session) State() State {
	return State{
		Token:     s.token,
		Active:    s.active,
		Frozen:    s.frozeAt >= 0,
		UndoStack: s.undo.snapshot(),
		RedoStack: s.redo.snapshot(),
	}
}

// Activate starts the undo/redo system for the named tables: fresh log
// table, change-recording triggers, empty stacks. No-op if already
// active. On failure the session stays inactive and records nothing.
func (s *Session) Activate(ctx context.Context, tables ...string) error {
	if s.active {
		return nil
	}
	tracked, err := installTriggers(ctx, s.st, tables)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	s.tables = tracked
	s.undo = nil
	s.redo = nil
	s.frozeAt = -1
	s.active = true
	if err := s.startInterval(ctx); err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	s.notify()
	return nil
}

// Deactivate halts the undo/redo system: triggers and log table are
// dropped and both stacks are cleared. No-op if not active.
func (s *Session) Deactivate(ctx context.Context) error {
	if !s.active {
		return nil
	}
	if err := dropTriggers(ctx, s.st); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	s.tables = nil
	s.undo = nil
	s.redo = nil
	s.frozeAt = -1
	s.active = false
	s.notify()
	return nil
}

// Barrier closes the current span of log rows into one undo step.
//
// The step's end is the current log maximum, clamped to the freeze
// watermark so frozen-but-not-yet-purged rows never enter an interval.
// If no rows were recorded since the last barrier/step this is a no-op;
// otherwise the interval is pushed and the redo stack is cleared, since
// newly recorded history makes the old redo branch unreachable.
func (s *Session) Barrier(ctx context.Context) error {
	if !s.active {
		return nil
	}
	end, err := s.st.QueryInt(ctx, maxSeqSQL)
	if err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	if s.frozeAt >= 0 && end > s.frozeAt {
		end = s.frozeAt
	}
	begin := s.first
	if err := s.startInterval(ctx); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	if begin == s.first || begin > end {
		// Nothing logged since the last interval started, or everything
		// logged in range fell past the freeze watermark.
		return nil
	}
	s.undo.push(Interval{Begin: begin, End: end})
	s.redo = nil
	s.notify()
	return nil
}

// Freeze stops accepting changes into the undo log: the current log
// maximum becomes the watermark, and everything logged past it is
// discarded by Unfreeze. Freezing twice is a precondition violation.
func (s *Session) Freeze(ctx context.Context) error {
	if s.noFreeze {
		return nil
	}
	if !s.active {
		return &StateError{Code: ErrCodeNotActive, Message: "freeze requires an active session", Session: s.token}
	}
	if s.frozeAt >= 0 {
		return &StateError{Code: ErrCodeAlreadyFrozen, Message: "recursive call to freeze", Session: s.token}
	}
	mark, err := s.st.QueryInt(ctx, maxSeqSQL)
	if err != nil {
		return fmt.Errorf("freeze: %w", err)
	}
	s.frozeAt = mark
	s.notify()
	return nil
}

// Unfreeze begins accepting undo actions again, deleting every log row
// recorded while frozen. Unfreezing while not frozen is a precondition
// violation.
func (s *Session) Unfreeze(ctx context.Context) error {
	if s.noFreeze {
		return nil
	}
	if !s.active {
		return &StateError{Code: ErrCodeNotActive, Message: "unfreeze requires an active session", Session: s.token}
	}
	if s.frozeAt < 0 {
		return &StateError{Code: ErrCodeNotFrozen, Message: "called unfreeze while not frozen", Session: s.token}
	}
	if err := s.st.Exec(ctx, "DELETE FROM "+logTable+" WHERE seq>?", s.frozeAt); err != nil {
		return fmt.Errorf("unfreeze: %w", err)
	}
	s.frozeAt = -1
	// A barrier taken while frozen rolled first past the now-purged rows.
	// Clamp it back so the log looks as if those rows never happened;
	// rows logged before the freeze still belong to the next interval, so
	// never move first backward past them.
	next, err := s.st.QueryInt(ctx, "SELECT coalesce(max(seq),0)+1 FROM "+logTable)
	if err != nil {
		return fmt.Errorf("unfreeze: %w", err)
	}
	if s.first > next {
		s.first = next
	}
	s.notify()
	return nil
}

// Undo performs a single step of undo. No-op when nothing is undoable.
func (s *Session) Undo(ctx context.Context) error {
	return s.step(ctx, &s.undo, &s.redo)
}

// Redo performs a single step of redo. No-op when nothing is redoable.
func (s *Session) Redo(ctx context.Context) error {
	return s.step(ctx, &s.redo, &s.undo)
}

// startInterval records the starting condition of the next interval:
// first becomes one past the current log maximum.
func (s *Session) startInterval(ctx context.Context) error {
	n, err := s.st.QueryInt(ctx, "SELECT coalesce(max(seq),0)+1 FROM "+logTable)
	if err != nil {
		return fmt.Errorf("start interval: %w", err)
	}
	s.first = n
	return nil
}

// step pops the most recent interval from src, replays its inverse
// statements inside one transaction, and pushes the counter-interval
// (written by the triggers the replay re-fires) onto dst.
//
// The consumed log rows are deleted before the inverse statements run:
// the replay's own trigger-generated rows must not be confused with the
// rows being consumed, and the deletion establishes the new lower bound
// for the counter-interval.
//
// On any statement failure the transaction rolls back and the popped
// interval is re-pushed onto src, so the stacks stay consistent with the
// untouched tables.
func (s *Session) step(ctx context.Context, src, dst *stack) error {
	if !s.active || src.empty() {
		return nil
	}
	iv := src.pop()

	if err := s.replay(ctx, iv); err != nil {
		src.push(iv)
		return &StateError{
			Code:    ErrCodeReplayFailed,
			Message: fmt.Sprintf("step [%d,%d] rolled back", iv.Begin, iv.End),
			Session: s.token,
			Err:     err,
		}
	}

	end, err := s.st.QueryInt(ctx, maxSeqSQL)
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	begin := s.first
	if begin <= end {
		dst.push(Interval{Begin: begin, End: end})
	}
	if err := s.startInterval(ctx); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	s.notify()
	return nil
}

// replay is the transactional heart of a step: one transaction covering
// the log reads, the log deletion, and the inverse-statement execution.
// On success it moves first to the start of the counter-interval.
func (s *Session) replay(ctx context.Context, iv Interval) error {
	tx, err := s.st.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() // No-op if committed

	rows, err := tx.QueryContext(ctx,
		"SELECT sql FROM "+logTable+" WHERE seq>=? AND seq<=? ORDER BY seq DESC", iv.Begin, iv.End)
	if err != nil {
		return fmt.Errorf("read log rows: %w", err)
	}
	var stmts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			rows.Close()
			return fmt.Errorf("scan log row: %w", err)
		}
		stmts = append(stmts, stmt)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate log rows: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM "+logTable+" WHERE seq>=? AND seq<=?", iv.Begin, iv.End); err != nil {
		return fmt.Errorf("delete consumed log rows: %w", err)
	}

	// New lower bound: one past whatever survived the deletion. Captured
	// inside the transaction so the counter-interval starts exactly where
	// the replay's own log rows will land.
	var next int64
	if err := tx.QueryRowContext(ctx, "SELECT coalesce(max(seq),0)+1 FROM "+logTable).Scan(&next); err != nil {
		return fmt.Errorf("recompute interval start: %w", err)
	}

	// Later changes are undone before earlier ones (descending seq), so
	// interdependent changes replay consistently.
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("replay %q: %w", stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit step: %w", err)
	}
	s.first = next
	return nil
}

func (s *Session) notify() {
	if s.observer != nil {
		s.observer.StateChanged(s.State())
	}
}
