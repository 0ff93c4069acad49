// Package history keeps a SQLite log of every record and replay attempt made
// by the orchestrator.
//
// The compatibility matrix only holds booleans. The history log keeps the
// rest: which run an attempt belonged to, how it ended (including timeouts
// and environment setup failures that never reach the matrix), the child's
// exit code, how long it took and what it printed.
//
// # Ordering
//
// Each attempt gets a seq number one higher than the largest already stored.
// Queries order by seq ASC, id ASC COLLATE BINARY, never by timestamp.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package history
