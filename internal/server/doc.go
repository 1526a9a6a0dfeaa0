// Package server exposes the dispatcher over HTTP.
//
// Routes:
//
//	GET    /health                         liveness payload
//	GET    /ready                          readiness checks
//	POST   /api                            gateway request envelope
//	GET    /admin/stats                    limiter, cache and backend counters
//	GET    /admin/ratelimit/endpoint       endpoint counter status (?endpoint=&subject=)
//	DELETE /admin/ratelimit/endpoint       endpoint counter reset
//	GET    /admin/ratelimit/source/:addr   per-source counter status
//	DELETE /admin/ratelimit/source/:addr   per-source counter reset
//	GET    /admin/sessions/:service/:id    cached external session
//
// Admin routes require a bearer token carrying the admin permission.
package server
