// Package api implements the HTTP REST API, WebSocket server and trusted
// internal RPC listener for academia-core.
//
// This package provides:
//   - REST endpoints for registration, login, token refresh, courses and enrollments
//   - WebSocket hub broadcasting course and enrollment events
//   - Transport adapters for the auth.Gate (HTTP 401, WebSocket close 1008)
//   - Role enforcement per operation via auth.Policy
//   - Middleware stack (request ID, logging, recovery, CORS, rate limiting, metrics)
//   - Prometheus metrics at /metrics
//
// # Security
//
// Every route except health, register, login and refresh passes through the
// authentication gate, which attaches the caller's identity to the request
// context. Route groups then name the operation they perform and the role
// gate checks the identity's role against the policy.
//
// WebSocket connections authenticate once, on the handshake, using the
// same bearer header. Each inbound message re-checks token expiry.
//
// # Internal RPC
//
// The internal listener is disabled by default and binds loopback. Requests
// on it carry no identity: the gate trusts the transport itself. Any RPC
// method with a role restriction therefore fails closed.
package api
