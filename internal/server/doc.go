// Package server exposes the player over a local HTTP control API and a websocket event stream.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, so a request with the
// wrong method gets a 405 from the mux itself.
//
// # Control API
//
// [ControlHandler] maps transport buttons to JSON endpoints:
//
//	GET  /api/state      snapshot of the player
//	POST /api/queue      {"queue": [...], "index": 0, "context": {...}}
//	POST /api/play       {"index": 2}
//	POST /api/next
//	POST /api/prev
//	POST /api/toggle
//	POST /api/seek       {"seconds": 42}
//	POST /api/like
//	POST /api/enqueue    {"records": [...]}
//	POST /api/url        {"url": "...", "title": "...", "artist": "...", "cover": "..."}
//	POST /api/normalize  {"enabled": true}
//
// Transport operations never fail with a server error because of playback health: a track that
// cannot be played shows up as a disabled player in the state.
//
// # Event Stream
//
// [EventStream] upgrades GET /ws/events to a websocket and forwards every bus event as a JSON
// text message until the client goes away.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
