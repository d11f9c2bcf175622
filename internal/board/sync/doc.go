// Package sync drains the local store's queue against a remote authority.
//
// Overview
//
// The Engine runs sync passes. A pass snapshots the queued ids at its start
// and pushes each one independently:
//
//	store.Pending()  [c1, c2, c3]
//	      ↓
//	   Engine.RunPass
//	      ├── c1 card       → Upsert(card, base version)  → MarkSynced
//	      ├── c2 tombstone  → Delete(id)                  → PurgeTombstone
//	      └── c3 card       → conflict                    → MarkConflict (held)
//
// Ids queued while a pass is running are picked up by the next pass. Local
// writes never wait for a pass.
//
// Pass States
//
// The engine is Idle or Draining. Only one pass drains at a time. A pass
// requested while another is draining is coalesced: the running pass makes
// exactly one follow-up pass when it finishes, however many requests arrived.
//
// Outcomes per id
//
//   - accepted: MarkSynced with the pushed revision (a newer local edit keeps
//     the card Dirty for the next pass)
//   - conflict: the card is held in Conflict with the remote copy; it is
//     never overwritten in either direction
//   - transient failure: the id backs off for min(BaseBackoff·2^(n-1),
//     MaxBackoff) plus jitter and a follow-up pass is scheduled; after
//     MaxRetries failures the id is demoted to Failed
//   - rejected: demoted to Failed straight away
//
// One id's failure never stops the pass or touches another id's state.
//
// Connectivity
//
// SetOnline(false) stops new passes. A pass already in flight keeps going,
// but its failures are counted as expected: they spend no retry budget and
// are not reported as errors. Cancelling the pass context stops the pass
// after the in-flight call finishes; every call is bounded by CallTimeout.
//
// Usage
//
//	engine := sync.New(st, client, sync.DefaultConfig(), nil)
//	go engine.Run(ctx)
//	engine.Trigger()
//
//	report, err := engine.RunPass(ctx)
//	if errors.Is(err, sync.ErrPassInProgress) {
//	    // the running pass will make a follow-up pass
//	}
package sync
