// Package server provides HTTP routing, middleware, and the dashboard API for rank tracking runs.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with per-path method dispatch. Unregistered
// methods get a JSON 405 with an Allow header.
//
// # Dashboard API
//
// [NewAPI] wires the read-only endpoints (tasks, merged history as JSON or CSV, the run journal, live status)
// and two streaming endpoints:
//   - GET /api/runs/stream starts a run and relays its events as server-sent events
//   - POST /api/check runs one task without writing history
//
// Both refuse with 429 while another run holds the coordinator. A run started by a stream is bound to the
// request context, so a disconnecting client aborts it.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
// [ScreenshotHandler] serves the screenshot directory this way.
package server
