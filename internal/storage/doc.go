// Package storage persists the final summary of each community run.
//
// Drivers:
//   - "file": append-only JSON Lines
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
package storage
