// Package harness runs declarative undo/redo scenarios against a fresh
// database.
//
// A scenario is a YAML file: schema DDL, the tables to track, and a list
// of steps - raw SQL mutations interleaved with engine operations
// (barrier, undo, redo, freeze, unfreeze). Running a scenario produces a
// Trace: the undo/redo stack state after every step plus a final dump of
// every tracked table.
//
// Traces serialize to stable JSON, so scenario behavior is locked down
// with golden files (RunWithGolden). Regenerate goldens with:
//
//	go test ./internal/harness -update
package harness
