// Package archive keeps exported report snapshots in a SQLite database.
//
// Each WriteSnapshot appends one run. Runs are ordered by seq, an integer
// assigned at write time, never by generated_at. The snapshot itself is
// stored as zstd-compressed JSON; its call sites are also written to their
// own table so runs can be searched by file and line without decoding.
//
// The archive is write-mostly history. A Report never reads it back.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - foreign_keys=ON: call_sites rows are removed with their run
package archive
