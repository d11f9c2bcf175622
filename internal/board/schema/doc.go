// Package schema defines the board data model shared by the local store,
// the persistence adapters and the sync engine.
//
// # Overview
//
// A board is a set of columns (containers) holding ordered card ids, plus a
// card table indexed by id. Cards carry their own sync bookkeeping:
//
//	Card
//	 ├── Rev            local revision, bumped on every mutation
//	 ├── RemoteVersion  last version token accepted by the remote authority
//	 └── SyncState      clean | dirty | syncing | conflict | failed
//
// Deleted cards leave a Tombstone behind until the deletion has been
// accepted remotely, so offline deletes are never lost.
//
// # Persisted format
//
// The whole board is persisted as one JSON document (Board). FormatVersion is
// bumped whenever the document shape changes incompatibly:
//
//	{
//	  "format_version": 1,
//	  "columns": [{"id": "todo", "title": "To Do", "card_ids": ["..."]}],
//	  "cards": {"<id>": {"id": "<id>", "title": "...", "sync_state": "dirty"}},
//	  "tombstones": {"<id>": {"id": "<id>", "deleted_at": "..."}},
//	  "queue": ["<id>"],
//	  "last_synced_at": null,
//	  "saved_at": "2026-01-10T07:36:29Z"
//	}
//
// # Design Principles
//
//   - Flat JSON structure, one document per board
//   - Column order is the only source of card ordering
//   - Sync state lives on the card, never in a side table
package schema
