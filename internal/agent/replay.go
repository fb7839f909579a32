package agent

import (
	"math/rand/v2"

	"BikeRebalancer/internal/model"
)

// ReplayBuffer is a fixed-capacity FIFO ring of transitions.
type ReplayBuffer struct {
	items []model.Transition
	next  int
	cap   int
}

// NewReplayBuffer creates a buffer holding at most capacity transitions.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ReplayBuffer{items: make([]model.Transition, 0, capacity), cap: capacity}
}

// Push appends t, evicting the oldest entry when full.
func (b *ReplayBuffer) Push(t model.Transition) {
	if len(b.items) < b.cap {
		b.items = append(b.items, t)
		return
	}
	b.items[b.next] = t
	b.next = (b.next + 1) % b.cap
}

// Len is the number of stored transitions.
func (b *ReplayBuffer) Len() int { return len(b.items) }

// Oldest returns the entry that will be evicted next.
func (b *ReplayBuffer) Oldest() (model.Transition, bool) {
	if len(b.items) == 0 {
		return model.Transition{}, false
	}
	if len(b.items) < b.cap {
		return b.items[0], true
	}
	return b.items[b.next], true
}

// Sample draws n distinct transitions uniformly. n is clipped to Len.
func (b *ReplayBuffer) Sample(n int, rng *rand.Rand) []model.Transition {
	if n > len(b.items) {
		n = len(b.items)
	}
	out := make([]model.Transition, 0, n)
	picked := make(map[int]struct{}, n)
	for len(out) < n {
		i := rng.IntN(len(b.items))
		if _, dup := picked[i]; dup {
			continue
		}
		picked[i] = struct{}{}
		out = append(out, b.items[i])
	}
	return out
}
