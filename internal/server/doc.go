// Package server exposes the render task API over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method-qualified patterns.
//
// # API Surface
//
// All responses share one JSON envelope: {"ok": true, "result": ...} on
// success, {"ok": false, "error": {"code", "message"}} on failure. Error
// codes are stable and documented in the shared package.
//
//	POST   /render          → submit a render task, returns 202 with the task id
//	GET    /tasks/{id}      → task status snapshot
//	DELETE /tasks/{id}      → request cancellation
//	GET    /download        → stream a produced artifact (?path=...)
//	GET    /outputs/{file}  → stream an artifact by its published URL
//	GET    /health          → liveness probe, never rate limited
//
// Every endpoint except /health requires an Authorization bearer token unless
// the gate is configured as not required. Task access is owner-scoped: callers
// only see tasks created with their own credential.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
