// Package queue provides the ordered, duplicate-free set of card ids waiting
// to be propagated to the remote authority.
package queue

import "sync"

// Queue is a FIFO set of ids. An id is present at most once no matter how
// many times it is enqueued; its position reflects the first enqueue since
// it was last removed.
//
// Every method is a single atomic step, so a producer (the local store) and
// a consumer (the sync engine) can share one Queue safely.
type Queue struct {
	mu    sync.Mutex
	order []string
	index map[string]struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{index: make(map[string]struct{})}
}

// Enqueue adds id to the tail. It returns false if id was already queued.
func (q *Queue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[id]; ok {
		return false
	}
	q.index[id] = struct{}{}
	q.order = append(q.order, id)
	return true
}

// Snapshot returns the queued ids in FIFO order without removing them.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]string(nil), q.order...)
}

// Remove drops id and reports whether it was queued.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[id]; !ok {
		return false
	}
	delete(q.index, id)
	for i, qid := range q.order {
		if qid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether id is queued.
func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.index[id]
	return ok
}

// Len returns the number of queued ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.order)
}

// Restore replaces the contents with ids, dropping duplicates and empty ids.
// It is used when a persisted board is loaded.
func (q *Queue) Restore(ids []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.order = q.order[:0]
	q.index = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := q.index[id]; ok {
			continue
		}
		q.index[id] = struct{}{}
		q.order = append(q.order, id)
	}
}
