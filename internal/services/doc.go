// Package services implements HTTP clients for the remote collaborators of the playback engine.
//
// # Download Service
//
// [DownloadClient] talks to the local download daemon, which owns download scheduling
// and on-disk storage. The engine only asks it to download a track and to resolve a
// track it already stored.
//
// # Capabilities Service
//
// [CapabilitiesClient] reads the streaming entitlements of the signed-in account.
//
// # Authentication
//
// Both clients share [Client], which wraps an [oauth2.StaticTokenSource] so every
// request carries the configured bearer token.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : 401/403 from the remote side
//   - [shared.ErrServiceUnavailable] : connection failures and 5xx responses
//   - [shared.ErrAPIRequest] : any other non-2xx response
//   - [shared.ErrDownloadFailed] : the daemon reported ok=false
package services
