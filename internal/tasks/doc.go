// Package tasks runs background jobs around the player with progress reporting.
//
// # Jobs
//
//  1. [Prefetch] : resolve a queue ahead of playback
//     - Normalizes each record and skips the ones without an identity
//     - Resolves through the same tiers the player uses, which warms the resolution cache
//     - Uses a bounded worker pool and a rate limiter so the download service is not flooded
//     - Optionally writes a JSON manifest of the results
//
//  2. [DownloadWatcher] : keep the library honest about files on disk
//     - Watches the downloads directory with fsnotify
//     - A removed or renamed audio file drops its download rows, which publishes
//     track-removed and evicts the matching cache entries
//
// # Progress Reporting
//
// Jobs report through a [ProgressUpdate] channel. Sends never block: a full or nil
// channel drops the update.
package tasks
