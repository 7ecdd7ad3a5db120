// Package undo implements transactional undo/redo over a set of tracked
// SQLite tables.
//
// The application never writes inverse-operation logic. Instead, Activate
// installs three TEMP triggers per tracked table (after-insert,
// after-update, before-delete). Each trigger appends one row to a TEMP
// change log:
//
//	undolog(seq INTEGER PRIMARY KEY, sql TEXT)
//
// where sql is a complete, directly re-executable statement that inverts
// the change: DELETE for an insert, an UPDATE restoring every old column
// value for an update, and a full re-INSERT (including rowid) for a
// delete. Old values are captured as quoted literals by SQLite's quote()
// at trigger-fire time, so the replay side treats each statement as opaque
// text.
//
// ARCHITECTURE:
//
// Barrier / Interval:
// Barrier closes the current run of log rows into a closed [begin, end]
// interval - one undo step - and pushes it onto the undo stack. Recording
// new history invalidates the redo branch, so every non-empty barrier
// clears the redo stack.
//
// Self-referential replay:
// Undo pops an interval, and inside one transaction reads its log rows in
// descending seq order, deletes them, then executes each inverse
// statement. Executing the inverses re-fires the tracked-table triggers,
// so the counter-action writes its own log rows; the span they occupy
// becomes the new top of the redo stack. Redo is the same algorithm with
// the stacks swapped. Deleting the consumed rows before replay is what
// keeps the two generations of log rows apart.
//
// Freeze / Unfreeze:
// Freeze records the current log high-water mark; Unfreeze deletes every
// row logged past it. Changes made in between happen in the tables but
// leave no undo record - useful for programmatic fix-ups that should not
// be individually undoable.
//
// The engine is single-threaded and synchronous: every method runs to
// completion on the caller's goroutine, and only the replay step needs a
// transaction. A Session assumes it is the only writer of undolog between
// Activate and Deactivate.
package undo
