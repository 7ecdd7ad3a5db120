// Package store provides the SQLite handle that the undo engine runs against.
//
// The engine's only touchpoints with the database are the narrow helpers
// exposed here: execute a statement, execute a statement returning a scalar
// or a string column, begin a transaction, and introspect a table's columns.
// Everything else (trigger firing, value quoting in trigger bodies, commit
// and rollback) is the database's own machinery.
//
// IMPORTANT: the undo log and the change-recording triggers are TEMP
// objects, which SQLite scopes to a single connection. Open therefore pins
// the pool to exactly one connection; raising the connection limit would
// silently lose the log between calls.
package store
