// Package db provides the persistence adapters that keep a board snapshot
// across process restarts.
//
// Every adapter has pure blob semantics: Save replaces the single stored
// snapshot, Load returns it. Blobs are sealed in a checksummed envelope
// before they reach the backend:
//
//	+-------+----------------------+-------------+
//	| BSN1  | sha256(payload) [32] | payload ... |
//	+-------+----------------------+-------------+
//
// so a truncated or bit-flipped snapshot is detected on Load and reported as
// "no data" instead of an error. The local store then starts from an explicit
// default board.
//
// # Backends
//
//   - Memory: in-process, for tests and throwaway sessions
//   - File:   temp file + fsync + rename, never a partial write
//   - SQL:    one row in a snapshots table; sqlite (ncruces/go-sqlite3, WAL),
//     postgres (pgx) or mysql, schema managed by goose migrations
//   - Bolt:   one key in a bbolt bucket
//   - S3:     one object in a bucket
//
// Open builds the backend named by a Config.
//
// # Errors
//
// Load distinguishes "nothing usable stored" (nil, nil) from "storage could
// not be read" (nil, err). The store refuses to start on the latter so that
// an unreachable backend is never mistaken for an empty one.
package db
