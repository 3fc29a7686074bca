// Package models defines the data model shared by the playback engine.
//
// The package contains three groups of types:
//
// 1. Track identity
//   - [Record] : a raw, heterogeneous track record as received from callers
//   - [Track] : the canonical descriptor produced by the identity normalizer
//
// 2. Playback values
//   - [Quality] and [Capabilities] : preferred stream quality and account entitlements
//   - [PlayContext] : the playlist or album a queue was launched from
//   - [Correlation] : structured form of a download correlation token
//   - [CacheEntry] and [ResumeSnapshot] : values persisted to the key/value store
//
// 3. Library rows
//   - [SavedTrack], [TrackDownload], [DownloadedTrack], [SavedCollection], [RecentTrack]
//
// Library rows implement [Model]; their stores follow the [Repository] conventions.
package models
