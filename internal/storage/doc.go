// Package storage provides the persistent key/value backends that keep
// session state across process restarts.
//
// All backends implement Store. Keys are flat strings; the session layer
// uses KeyAccessToken, KeyIDToken, KeyTokenExpiresAt and KeyLastLocation.
//
// # Backends
//
//   - MemoryStore: process-local, for tests and --ephemeral runs
//   - FileStore: a single JSON document with 0600 permissions, optionally
//     watched with fsnotify so writes by another process are picked up
//   - RedisStore: one Redis hash per prefix, shared between hosts
//   - SQLiteStore: a kv table in a local SQLite database
//
// SetMany writes every key or none, so a reader never observes a token
// without its expiry.
package storage
