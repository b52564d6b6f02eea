// Package store provides SQLite-backed durable storage for linkctl client state.
//
// The store is a small key/value table. Values are opaque bytes, usually
// JSON documents owned by the caller. The session record lives under the
// key "auth".
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Several linkctl processes may share one database file; each write is a
// single upsert so readers always see a complete value.
package store
