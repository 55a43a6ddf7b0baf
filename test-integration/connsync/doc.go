// Package integration runs the connsync server end to end against a SQLite ledger.
package integration
