package enet

import (
	"container/heap"
	"time"
)

// Clock is the injected now_ms() capability (§9 design notes): "Clock is
// injected as a now_ms() capability (testable with a virtual clock)."
// Host.serviceTime is sampled from this exactly once per Host.Service call.
type Clock interface {
	NowMillis() int64
}

// systemClock is the default Clock, backed by the monotonic runtime clock.
type systemClock struct{ start time.Time }

func newSystemClock() *systemClock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) NowMillis() int64 {
	return time.Since(c.start).Milliseconds()
}

// deadlineItem is one entry in a peer's soonest-deadline heap: used by
// Host.Service step 5 to compute how long it may block on socket readiness
// (spec §5: "a deadline computed from the soonest nextTimeout of any peer").
type deadlineItem struct {
	deadline int64
	peerID   int
	index    int
}

type deadlineHeap []*deadlineItem

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x interface{}) {
	item := x.(*deadlineItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	item.index = -1
	*h = old[:n-1]
	return item
}

// deadlineQueue tracks the single soonest pending deadline per peer slot,
// so the host can find the minimum in O(log n) instead of scanning every
// peer on each Service call. Replacing a peer's deadline is a remove+push.
type deadlineQueue struct {
	h       deadlineHeap
	byPeer  map[int]*deadlineItem
}

func newDeadlineQueue() *deadlineQueue {
	q := &deadlineQueue{byPeer: make(map[int]*deadlineItem)}
	heap.Init(&q.h)
	return q
}

func (q *deadlineQueue) set(peerID int, deadline int64) {
	if existing, ok := q.byPeer[peerID]; ok {
		existing.deadline = deadline
		heap.Fix(&q.h, existing.index)
		return
	}
	item := &deadlineItem{deadline: deadline, peerID: peerID}
	heap.Push(&q.h, item)
	q.byPeer[peerID] = item
}

func (q *deadlineQueue) clear(peerID int) {
	item, ok := q.byPeer[peerID]
	if !ok {
		return
	}
	heap.Remove(&q.h, item.index)
	delete(q.byPeer, peerID)
}

// soonest returns the earliest deadline across all tracked peers, or ok=false
// if none is tracked.
func (q *deadlineQueue) soonest() (deadline int64, ok bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	return q.h[0].deadline, true
}
