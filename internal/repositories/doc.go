// Package repositories implements persistence for the library and the durable key/value store.
//
// Table-backed repositories use SQLite with atomic sequence generation for stable ordering.
// Saved tracks support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [SavedTrackRepository] : liked tracks with the raw record kept as JSON
//   - [CollectionRepository] : saved albums and playlists shown in the sidebar
//   - [DownloadRepository] : the per-track download record and the older downloaded-tracks table
//   - [RecentRepository] : listening history
//   - [Library] : the store the playback engine consumes, publishing change notifications
//   - [SQLiteKV], [RedisKV] : durable key/value backends behind [KV]
//   - [BestEffort] : a [KV] wrapper that logs and swallows every failure
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
