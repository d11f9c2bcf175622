// Package store holds the authoritative local copy of a board.
//
// # Overview
//
// A Store is constructed explicitly with Open and owns three things under a
// single mutex: the columns, the card table (plus tombstones), and the sync
// queue. Every mutation:
//
//  1. applies the change in memory
//  2. marks the card Dirty and bumps its revision
//  3. enqueues the card id (idempotent)
//  4. persists the whole board through the db.Adapter
//
// Steps 1-4 happen under one lock, so readers never see a card in zero or
// two columns and never see a Dirty card missing from the queue.
//
// Mutations never wait on the network. If the adapter fails, the in-memory
// change stays applied and the caller gets the mutated card together with an
// error wrapping ErrPersistence.
//
// # Sync bookkeeping
//
// The sync engine never edits card payloads. It reports outcomes with
// MarkSyncing, MarkSynced, MarkConflict, MarkFailed and PurgeTombstone, each
// keyed by the revision it pushed:
//
//	confirmed rev == card.Rev  -> Clean, id leaves the queue
//	confirmed rev <  card.Rev  -> stays Dirty (edited mid-flight), new base version
//	confirmed rev >  card.Rev  -> Conflict
//
// # Events
//
// Subscribe returns a buffered channel of Events. A subscriber that falls
// behind loses events rather than blocking the store; losses are counted and
// reported by Dropped.
//
// Example:
//
//	adapter, _ := db.OpenSQLite(ctx, ".boardsync/board.db", nil)
//	st, err := store.Open(ctx, adapter, store.Options{})
//	if err != nil {
//	    return err
//	}
//	card, err := st.CreateCard(ctx, "todo", schema.CardInput{Title: "Write docs"})
package store
