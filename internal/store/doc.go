// Package store provides SQLite-backed durable storage for recon.
//
// One database file holds:
//   - Documents and their entities (document.Backend per document)
//   - Run state: the output column of each component's last committed pass
//   - Diagnostics: an append-only log of every pass's diagnostics
//
// # Transactions
//
// A document transaction buffers its writes in memory and applies them in
// one sql.Tx on Commit. No connection is held while a pass runs, so the
// single-connection pool never blocks a run-state save or a diagnostics
// write issued while another document's transaction is still open.
//
// # Deterministic Query Results
//
// Entity queries are compiled by querysql and always ORDER BY id.
// Diagnostics are read back ORDER BY seq. Wall time is never stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Attributes are stored as canonical JSON produced by package value.
package store
