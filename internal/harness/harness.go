package harness

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/rewind/internal/store"
	"github.com/roach88/rewind/internal/undo"
)

// TraceEvent records the engine state after one scenario step.
type TraceEvent struct {
	Step      int             `json:"step"`
	Op        string          `json:"op"`
	SQL       string          `json:"sql,omitempty"`
	UndoStack []undo.Interval `json:"undo_stack"`
	RedoStack []undo.Interval `json:"redo_stack"`
}

// Trace captures a complete scenario execution for golden comparison:
// per-step stack state plus the final contents of every tracked table.
type Trace struct {
	Scenario string              `json:"scenario"`
	Events   []TraceEvent        `json:"events"`
	Final    map[string][]string `json:"final"`
}

// Run executes a scenario against a fresh database at dbPath and returns
// its trace. The session token is fixed to the scenario name so traces
// are deterministic.
func Run(ctx context.Context, sc *Scenario, dbPath string) (*Trace, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	defer st.Close()

	for _, ddl := range sc.Schema {
		if err := st.Exec(ctx, ddl); err != nil {
			return nil, fmt.Errorf("scenario %s: schema: %w", sc.Name, err)
		}
	}

	session := undo.New(st, undo.WithToken(sc.Name))
	if err := session.Activate(ctx, sc.Tables...); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	trace := &Trace{Scenario: sc.Name, Events: []TraceEvent{}}
	for i, step := range sc.Steps {
		if err := applyStep(ctx, st, session, step); err != nil {
			return nil, fmt.Errorf("scenario %s: step %d (%s): %w", sc.Name, i, step, err)
		}
		state := session.State()
		trace.Events = append(trace.Events, TraceEvent{
			Step:      i,
			Op:        step.label(),
			SQL:       strings.TrimSpace(step.Exec),
			UndoStack: state.UndoStack,
			RedoStack: state.RedoStack,
		})
	}

	final, err := dumpTables(ctx, st, session.Tables())
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	trace.Final = final

	if err := session.Deactivate(ctx); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	return trace, nil
}

func applyStep(ctx context.Context, st *store.Store, session *undo.Session, step Step) error {
	switch step.Op {
	case "":
		return st.Exec(ctx, step.Exec)
	case OpBarrier:
		return session.Barrier(ctx)
	case OpUndo:
		return session.Undo(ctx)
	case OpRedo:
		return session.Redo(ctx)
	case OpFreeze:
		return session.Freeze(ctx)
	case OpUnfreeze:
		return session.Unfreeze(ctx)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// dumpTables renders every tracked table as "rowid|col|col|..." lines in
// rowid order. NULLs render as the bare word NULL.
func dumpTables(ctx context.Context, st *store.Store, tables []undo.TrackedTable) (map[string][]string, error) {
	out := make(map[string][]string, len(tables))
	for _, tbl := range tables {
		rows, err := dumpTable(ctx, st, tbl)
		if err != nil {
			return nil, err
		}
		out[tbl.Name] = rows
	}
	return out, nil
}

func dumpTable(ctx context.Context, st *store.Store, tbl undo.TrackedTable) ([]string, error) {
	query := fmt.Sprintf("SELECT rowid, %s FROM %s ORDER BY rowid",
		strings.Join(tbl.Columns, ", "), tbl.Name)
	rows, err := st.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", tbl.Name, err)
	}
	defer rows.Close()

	dump := []string{}
	for rows.Next() {
		fields := make([]sql.NullString, len(tbl.Columns)+1)
		ptrs := make([]any, len(fields))
		for i := range fields {
			ptrs[i] = &fields[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", tbl.Name, err)
		}
		parts := make([]string, len(fields))
		for i, f := range fields {
			if f.Valid {
				parts[i] = f.String
			} else {
				parts[i] = "NULL"
			}
		}
		dump = append(dump, strings.Join(parts, "|"))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", tbl.Name, err)
	}
	return dump, nil
}
