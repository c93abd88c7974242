// Package server exposes the honeypot over HTTP.
//
// # Endpoints
//
// The platform-facing API lives under /api/v1 and requires the shared
// x-api-key header when one is configured:
//
//	POST /api/v1/messages          run one conversation turn
//	GET  /api/v1/sessions          list tracked sessions
//	GET  /api/v1/sessions/{id}     full session detail plus dispatch history
//
// /health and /ready are unauthenticated probe endpoints.
//
// # Error shape
//
// Failures return {"error": "..."} with a conventional status code: 400
// for bad bodies, 401 for missing or wrong keys, 404 for unknown
// sessions, and 409 when a turn arrives for an already-reported session.
package server
