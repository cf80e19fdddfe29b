// Package history persists finalized utterances to a local SQLite
// database so past sessions can be reviewed after the fact.
package history
