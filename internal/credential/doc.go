// Package credential keeps reconnection tokens, keyed by connection name.
//
// Backends:
//   - MemoryStore: process lifetime only
//   - FileStore: YAML file, written atomically with 0600 permissions
//   - PostgresStore: one row per connection name
package credential
