// Package database provides the SQLite storage layer for Conduit.
//
// It wraps database/sql with WAL-mode pragmas tuned for an embedded
// single-writer workload and applies embedded schema migrations at
// startup. The connect journal is the only consumer; it records every
// finished connect attempt for diagnostics.
package database
