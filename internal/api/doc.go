// Package api implements the HTTP control plane of the console.
//
// # Overview
//
// One server handles the JSON API, the static web UI, the websocket
// stream, the Prometheus exposition and the health check. Requests
// flow through an ordered middleware chain:
//
//	access log → metrics → body cap → session attach → auth gate → routes → static fallback
//
// The gate protects everything under /api/ except a small public
// allow-list; paths outside /api/ (the UI, /healthz, /metrics, /ws)
// pass the gate and enforce their own rules where needed.
//
// # Security Model
//
//   - Single shared admin credential (plaintext or bcrypt), verified in
//     constant time
//   - HMAC-signed session cookies, HttpOnly + SameSite=Strict
//   - Login rate limiting per client IP
//   - Reserved peer identifiers rejected before any mutation
//   - Static files served only from inside the configured web root
//
// # Adding New Endpoints
//
//  1. Create a handler: func (s *Server) handleFoo(w, r)
//  2. Register the route in initRoutes() in server.go
//  3. Add the path to publicAPIPaths if it must answer unauthenticated
package api
