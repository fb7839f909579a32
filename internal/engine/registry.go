package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps day handles to their arenas.
type Registry struct {
	mu   sync.Mutex
	days map[string]*Day
}

func NewRegistry() *Registry {
	return &Registry{days: make(map[string]*Day)}
}

// Open registers d under handle. A handle can only be open once.
func (r *Registry) Open(handle string, d *Day) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.days[handle]; ok {
		return fmt.Errorf("day handle %q already open", handle)
	}
	r.days[handle] = d
	return nil
}

func (r *Registry) Get(handle string) (*Day, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.days[handle]
	return d, ok
}

// Close abandons the day if it is still running and forgets the handle.
func (r *Registry) Close(handle string) {
	r.mu.Lock()
	d, ok := r.days[handle]
	delete(r.days, handle)
	r.mu.Unlock()
	if ok && d.State() != Idle {
		d.Abandon()
	}
}

// Handles returns the open handles in sorted order.
func (r *Registry) Handles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.days))
	for h := range r.days {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
