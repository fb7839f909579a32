// Package transit holds bikes that have left a station but not yet arrived.
package transit

import (
	"container/heap"
	"errors"
	"time"

	"BikeRebalancer/internal/model"
)

// ErrEmptyEvent is returned when scheduling an event with no bikes.
var ErrEmptyEvent = errors.New("transit event quantity must be at least 1")

type item struct {
	ev  model.TransitEvent
	seq uint64
}

type eventHeap []item

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].ev.ArrivalTime.Equal(h[j].ev.ArrivalTime) {
		return h[i].seq < h[j].seq
	}
	return h[i].ev.ArrivalTime.Before(h[j].ev.ArrivalTime)
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(item)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Queue is a time-ordered set of pending arrivals.
type Queue struct {
	h         eventHeap
	seq       uint64
	inTransit int
}

// New returns an empty queue.
func New() *Queue { return &Queue{} }

// Schedule adds an event. Events keep insertion order among equal arrival times.
func (q *Queue) Schedule(ev model.TransitEvent) error {
	if ev.Quantity < 1 {
		return ErrEmptyEvent
	}
	q.seq++
	heap.Push(&q.h, item{ev: ev, seq: q.seq})
	q.inTransit += ev.Quantity
	return nil
}

// DrainDue removes and returns every event with ArrivalTime <= now.
func (q *Queue) DrainDue(now time.Time) []model.TransitEvent {
	var out []model.TransitEvent
	for len(q.h) > 0 && !q.h[0].ev.ArrivalTime.After(now) {
		it := heap.Pop(&q.h).(item)
		q.inTransit -= it.ev.Quantity
		out = append(out, it.ev)
	}
	return out
}

// Peek returns the earliest pending event.
func (q *Queue) Peek() (model.TransitEvent, bool) {
	if len(q.h) == 0 {
		return model.TransitEvent{}, false
	}
	return q.h[0].ev, true
}

// Len is the number of pending events.
func (q *Queue) Len() int { return len(q.h) }

// InTransit is the number of bikes across all pending events.
func (q *Queue) InTransit() int { return q.inTransit }

// Pending returns a copy of all pending events in arrival order.
func (q *Queue) Pending() []model.TransitEvent {
	cp := make(eventHeap, len(q.h))
	copy(cp, q.h)
	out := make([]model.TransitEvent, 0, len(cp))
	for len(cp) > 0 {
		out = append(out, heap.Pop(&cp).(item).ev)
	}
	return out
}
