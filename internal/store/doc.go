// Package store provides persistent storage for the chat gateway:
// the append-only message log, the contact directory, and staff accounts.
// The SQLite implementation keeps message ids and timestamps strictly
// increasing so clients can order and resume by either.
package store
