// Package ledger owns per-station inventory and accounting for one simulated day.
package ledger

import (
	"fmt"
	"math"
	"sort"

	"BikeRebalancer/internal/config"
	"BikeRebalancer/internal/model"
)

// Demand is the forecast the ledger derives capacity and ideal levels from.
type Demand interface {
	Outgoing(id string, hour int) float64
	OutgoingSpan(id string, hour, span int) float64
}

// Ledger maps station ids to their mutable state. It is not safe for
// concurrent use; every mutation belongs to exactly one tick.
type Ledger struct {
	stations map[string]*model.Station
	ids      []string
	cap      config.Capacity
	demand   Demand
}

// New creates an empty ledger.
func New(capCfg config.Capacity, demand Demand) *Ledger {
	if capCfg.DemandDivisor <= 0 {
		capCfg.DemandDivisor = 5
	}
	return &Ledger{
		stations: make(map[string]*model.Station),
		cap:      capCfg,
		demand:   demand,
	}
}

// Initialize creates one station per id with the matching initial count.
// Any previous state is discarded.
func (l *Ledger) Initialize(ids []string, counts map[string]int) {
	l.stations = make(map[string]*model.Station, len(ids))
	l.ids = l.ids[:0]
	for _, id := range ids {
		if _, dup := l.stations[id]; dup {
			continue
		}
		n := counts[id]
		if n < 0 {
			n = 0
		}
		l.stations[id] = &model.Station{ID: id, BikeCount: n, Capacity: l.cap.Base}
		l.ids = append(l.ids, id)
	}
	sort.Strings(l.ids)
}

// Has reports whether id is a known station.
func (l *Ledger) Has(id string) bool {
	_, ok := l.stations[id]
	return ok
}

// IDs returns station ids in ascending order. The slice must not be modified.
func (l *Ledger) IDs() []string { return l.ids }

// Len is the number of stations.
func (l *Ledger) Len() int { return len(l.ids) }

// Station returns a copy of the station state.
func (l *Ledger) Station(id string) (model.Station, bool) {
	s, ok := l.stations[id]
	if !ok {
		return model.Station{}, false
	}
	return *s, true
}

// Count returns the current bike count, 0 for unknown stations.
func (l *Ledger) Count(id string) int {
	if s, ok := l.stations[id]; ok {
		return s.BikeCount
	}
	return 0
}

// TotalBikes sums bike counts across stations.
func (l *Ledger) TotalBikes() int {
	total := 0
	for _, s := range l.stations {
		total += s.BikeCount
	}
	return total
}

// CanFulfill reports whether a bike can be taken from id.
func (l *Ledger) CanFulfill(id string) bool {
	s, ok := l.stations[id]
	return ok && s.BikeCount > 0
}

// Decrement takes one bike from id. Callers must check CanFulfill first;
// violating that contract is a bug in the caller and panics.
func (l *Ledger) Decrement(id string) {
	l.take(id, 1)
}

// Take removes qty bikes from id, panicking if that would go negative.
func (l *Ledger) Take(id string, qty int) {
	l.take(id, qty)
}

func (l *Ledger) take(id string, qty int) {
	s := l.mustGet(id)
	if qty < 0 || s.BikeCount < qty {
		panic(fmt.Sprintf("ledger: take %d from station %s holding %d", qty, id, s.BikeCount))
	}
	s.BikeCount -= qty
}

// Increment adds qty bikes to id.
func (l *Ledger) Increment(id string, qty int) {
	if qty < 0 {
		panic(fmt.Sprintf("ledger: negative increment %d for station %s", qty, id))
	}
	l.mustGet(id).BikeCount += qty
}

func (l *Ledger) mustGet(id string) *model.Station {
	s, ok := l.stations[id]
	if !ok {
		panic(fmt.Sprintf("ledger: unknown station %s", id))
	}
	return s
}

// SampleAccounting updates the empty/full/healthy counters and the
// availability sum from the current bike count. Call once per tick.
func (l *Ledger) SampleAccounting(id string) {
	s := l.mustGet(id)
	switch {
	case s.BikeCount == 0:
		s.WasEmptyTicks++
	case s.BikeCount >= s.Capacity:
		s.WasFullTicks++
	default:
		s.HealthyTicks++
	}
	if s.Capacity > 0 {
		s.AvailabilitySum += math.Min(float64(s.BikeCount)/float64(s.Capacity), 1) * 100
	}
}

// SampleAll samples every station.
func (l *Ledger) SampleAll() {
	for _, id := range l.ids {
		l.SampleAccounting(id)
	}
}

// DynamicCapacity is base + min(demand(hour..hour+2)/divisor, bonusCap),
// never above the static maximum.
func (l *Ledger) DynamicCapacity(id string, hour int) int {
	bonus := 0
	if l.demand != nil {
		bonus = int(l.demand.OutgoingSpan(id, hour, 3) / l.cap.DemandDivisor)
	}
	if bonus > l.cap.BonusCap {
		bonus = l.cap.BonusCap
	}
	c := l.cap.Base + bonus
	if l.cap.StaticMax > 0 && c > l.cap.StaticMax {
		c = l.cap.StaticMax
	}
	return c
}

// RefreshCapacity recomputes the capacity of every station for hour.
func (l *Ledger) RefreshCapacity(hour int) {
	for _, id := range l.ids {
		l.stations[id].Capacity = l.DynamicCapacity(id, hour)
	}
}

// DynamicIdeal is the target count: base + outgoing(hour)/2.
func (l *Ledger) DynamicIdeal(id string, hour int) float64 {
	d := 0.0
	if l.demand != nil {
		d = l.demand.Outgoing(id, hour)
	}
	return float64(l.cap.Base) + d/2
}

// Headroom is how many redistribution bikes id can still accept.
func (l *Ledger) Headroom(id string) int {
	s := l.mustGet(id)
	h := s.Capacity - s.BikeCount - s.PendingInbound
	if h < 0 {
		return 0
	}
	return h
}

// Reserve books qty inbound redistribution bikes against id's headroom.
func (l *Ledger) Reserve(id string, qty int) { l.mustGet(id).PendingInbound += qty }

// Release frees a reservation once the bikes have arrived.
func (l *Ledger) Release(id string, qty int) {
	s := l.mustGet(id)
	s.PendingInbound -= qty
	if s.PendingInbound < 0 {
		s.PendingInbound = 0
	}
}

// RecordCompleted counts a fulfilled trip at id.
func (l *Ledger) RecordCompleted(id string) { l.mustGet(id).CompletedTrips++ }

// RecordMissed counts a trip that found id empty.
func (l *Ledger) RecordMissed(id string) {
	s := l.mustGet(id)
	s.MissedTrips++
	s.WindowMissed++
	s.JustMissed = true
}

// MarkSent adds to id's sent-bikes window and tick counters.
func (l *Ledger) MarkSent(id string, qty int) {
	s := l.mustGet(id)
	s.SentBikes += qty
	s.TickSent += qty
}

// MarkReceived adds to id's received-bikes window and tick counters.
func (l *Ledger) MarkReceived(id string, qty int) {
	s := l.mustGet(id)
	s.ReceivedBikes += qty
	s.TickReceived += qty
}

// AddOverflow charges qty unfulfilled transfer bikes to id.
func (l *Ledger) AddOverflow(id string, qty int) { l.mustGet(id).OverflowAttempts += qty }

// SetPreviousAction stores the last redistribution decision of id.
func (l *Ledger) SetPreviousAction(id string, a model.Action) { l.mustGet(id).PreviousAction = a }

// ResetWindow clears the per-decision window counters of id.
func (l *Ledger) ResetWindow(id string) {
	s := l.mustGet(id)
	s.SentBikes = 0
	s.ReceivedBikes = 0
	s.WindowMissed = 0
	s.OverflowAttempts = 0
}

// ClearTickFlags resets the just-missed markers and the per-tick transfer
// deltas before a new tick.
func (l *Ledger) ClearTickFlags() {
	for _, s := range l.stations {
		s.JustMissed = false
		s.TickSent = 0
		s.TickReceived = 0
	}
}

// Counts returns a copy of every station's bike count.
func (l *Ledger) Counts() map[string]int {
	out := make(map[string]int, len(l.stations))
	for id, s := range l.stations {
		out[id] = s.BikeCount
	}
	return out
}
