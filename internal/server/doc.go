// Package server implements the imgkv HTTP API surface.
//
// Owns:
//   - HTTP routing, handlers, and request/response contracts
//   - The per-route middleware chain (size limit, bearer auth, logging,
//     plus panic recovery, request ids, tracing, metrics and gzip)
//   - Mapping typed errors to status codes and JSON error bodies
//
// Does not own:
//   - Storage internals and the poisoning policy (package store)
//   - Classification and image encoding (package imaging)
//
// Invariants:
//   - Error responses are consistent via writeError
//   - Admin routes are always wrapped by RequireBearer
//   - LimitBody runs before any stage that reads the body
package server
