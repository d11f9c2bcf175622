// Package remote defines the remote authority the sync engine pushes to, an
// in-memory authority for tests and local demos, and an HTTP transport
// (Server and Client) for running the authority as a separate process.
//
// # Versioning
//
// Every card the authority knows carries a version that increases on each
// accepted write. A push names the version it was based on; a mismatch is a
// conflict and the authority's copy is returned:
//
//	Upsert(card, base=3)  stored=3  -> accepted, version 4
//	Upsert(card, base=3)  stored=5  -> *ConflictError{ServerVersion: 5, Remote: ...}
//	Upsert(card, base=0)  missing   -> accepted, version 1
//
// Deletes are idempotent. A deleted card keeps its version so a later
// re-create must be based on it.
//
// # Errors
//
//   - *ConflictError: version mismatch, never retried automatically
//   - ErrTransient: network trouble, timeouts, 5xx; safe to retry
//   - ErrRejected: the authority refused the request (4xx); retrying won't help
//
// # HTTP API
//
//	PUT    /v1/cards/{id}   {"card": {...}, "base_version": 3}  -> 200 {"version": 4}
//	                                                             -> 409 {"server_version": 5, "card": {...}}
//	DELETE /v1/cards/{id}                                        -> 204
//	GET    /v1/cards                                             -> 200 {"cards": [{"card": {...}, "version": 4}]}
//	GET    /health                                               -> 200 {"status": "ok"}
//
// When a secret is configured every /v1 request needs an HS256 bearer token.
package remote
