package undo

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rewind/internal/store"
)

// logTable is the change log. TEMP, so it lives on the store's single
// connection and vanishes with it.
const logTable = "undolog"

// maxSeqSQL reads the current log high-water mark (0 when empty).
const maxSeqSQL = "SELECT coalesce(max(seq),0) FROM " + logTable

// triggerNamePattern matches the recorder's trigger naming convention:
// _<table>_it / _<table>_ut / _<table>_dt.
var triggerNamePattern = regexp.MustCompile(`^_.*_(i|u|d)t$`)

// TrackedTable is a table whose row-level changes are captured into the
// log: its name plus the ordered column list fetched at activation.
// Immutable for the session.
type TrackedTable struct {
	Name    string
	Columns []string
}

// normalizeTable returns the NFC form of a table identifier. SQLite
// compares identifiers byte-wise, so install and the uninstall sweep must
// agree on a single normal form for trigger names.
func normalizeTable(name string) string {
	return norm.NFC.String(name)
}

// TriggerSQL returns the full trigger script the recorder would install
// for a table with the given columns: insert, update, and delete
// recorders in that order. Used for inspection and debugging; Activate
// installs the same text.
func TriggerSQL(table string, cols []string) string {
	tbl := normalizeTable(table)
	return insertTrigger(tbl) + updateTrigger(tbl, cols) + deleteTrigger(tbl, cols)
}

// installTriggers creates a fresh change log and the three change
// recording triggers for every listed table. Returns the tracked-table
// descriptors with their column lists.
//
// Any failure here is fatal to activation: without the log table and a
// complete trigger set the engine cannot record history.
func installTriggers(ctx context.Context, st *store.Store, tables []string) ([]TrackedTable, error) {
	if err := st.Exec(ctx, "DROP TABLE IF EXISTS "+logTable); err != nil {
		return nil, fmt.Errorf("drop stale log table: %w", err)
	}
	if err := st.Exec(ctx, "CREATE TEMP TABLE "+logTable+"(seq integer primary key, sql text)"); err != nil {
		return nil, fmt.Errorf("create log table: %w", err)
	}

	tracked := make([]TrackedTable, 0, len(tables))
	for _, name := range tables {
		tbl := normalizeTable(name)
		cols, err := st.Columns(ctx, tbl)
		if err != nil {
			return nil, fmt.Errorf("introspect %s: %w", tbl, err)
		}

		if err := st.ExecScript(ctx, TriggerSQL(tbl, cols)); err != nil {
			return nil, fmt.Errorf("install triggers for %s: %w", tbl, err)
		}

		tracked = append(tracked, TrackedTable{Name: tbl, Columns: cols})
	}
	return tracked, nil
}

// dropTriggers removes every trigger matching the recorder's naming
// convention and drops the change log. Idempotent: absent triggers or an
// absent log table are not errors.
func dropTriggers(ctx context.Context, st *store.Store) error {
	names, err := st.QueryStrings(ctx, "SELECT name FROM sqlite_temp_schema WHERE type='trigger'")
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}
	for _, name := range names {
		if !triggerNamePattern.MatchString(name) {
			continue
		}
		if err := st.Exec(ctx, fmt.Sprintf("DROP TRIGGER %q", name)); err != nil {
			return fmt.Errorf("drop trigger %s: %w", name, err)
		}
	}
	if err := st.Exec(ctx, "DROP TABLE IF EXISTS "+logTable); err != nil {
		return fmt.Errorf("drop log table: %w", err)
	}
	return nil
}

// insertTrigger builds the after-insert trigger: the inverse of an insert
// deletes the new row by rowid.
func insertTrigger(tbl string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TEMP TRIGGER _%s_it AFTER INSERT ON %s BEGIN\n", tbl, tbl)
	b.WriteString("  INSERT INTO " + logTable + " VALUES(NULL,")
	fmt.Fprintf(&b, "'DELETE FROM %s WHERE rowid='||new.rowid);\nEND;\n", tbl)
	return b.String()
}

// updateTrigger builds the after-update trigger: the inverse restores
// every column to its pre-update value. quote(old.<col>) captures the old
// value as a re-executable literal at fire time.
func updateTrigger(tbl string, cols []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TEMP TRIGGER _%s_ut AFTER UPDATE ON %s BEGIN\n", tbl, tbl)
	b.WriteString("  INSERT INTO " + logTable + " VALUES(NULL,")
	fmt.Fprintf(&b, "'UPDATE %s ", tbl)
	sep := "SET "
	for _, col := range cols {
		fmt.Fprintf(&b, "%s%s='||quote(old.%s)||'", sep, col, col)
		sep = ","
	}
	b.WriteString(" WHERE rowid='||old.rowid);\nEND;\n")
	return b.String()
}

// deleteTrigger builds the before-delete trigger: the inverse re-inserts
// the row, rowid included, with every pre-delete column value.
func deleteTrigger(tbl string, cols []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TEMP TRIGGER _%s_dt BEFORE DELETE ON %s BEGIN\n", tbl, tbl)
	b.WriteString("  INSERT INTO " + logTable + " VALUES(NULL,")
	fmt.Fprintf(&b, "'INSERT INTO %s(rowid", tbl)
	for _, col := range cols {
		b.WriteString("," + col)
	}
	b.WriteString(") VALUES('||old.rowid||'")
	for _, col := range cols {
		fmt.Fprintf(&b, ",'||quote(old.%s)||'", col)
	}
	b.WriteString(")');\nEND;\n")
	return b.String()
}
