// Package forecast builds per-station hourly demand tables from trip history.
package forecast

import "BikeRebalancer/internal/model"

// Table counts trips leaving and arriving at each station per hour of day.
type Table struct {
	outgoing map[string]*[24]float64
	incoming map[string]*[24]float64
}

// New returns an empty table.
func New() *Table {
	return &Table{
		outgoing: make(map[string]*[24]float64),
		incoming: make(map[string]*[24]float64),
	}
}

// FromTrips tallies start hours per origin and end hours per destination.
func FromTrips(trips []model.TripRecord) *Table {
	t := New()
	for _, tr := range trips {
		t.Add(tr)
	}
	return t
}

// Add records one trip.
func (t *Table) Add(tr model.TripRecord) {
	row(t.outgoing, tr.Origin)[tr.Start.Hour()]++
	row(t.incoming, tr.Destination)[tr.End.Hour()]++
}

func row(m map[string]*[24]float64, id string) *[24]float64 {
	r, ok := m[id]
	if !ok {
		r = new([24]float64)
		m[id] = r
	}
	return r
}

// Outgoing is the forecast number of departures from id during hour.
func (t *Table) Outgoing(id string, hour int) float64 {
	if t == nil || hour < 0 || hour > 23 {
		return 0
	}
	if r, ok := t.outgoing[id]; ok {
		return r[hour]
	}
	return 0
}

// Incoming is the forecast number of arrivals at id during hour.
func (t *Table) Incoming(id string, hour int) float64 {
	if t == nil || hour < 0 || hour > 23 {
		return 0
	}
	if r, ok := t.incoming[id]; ok {
		return r[hour]
	}
	return 0
}

// OutgoingSpan sums departures over [hour, hour+span), clipped at midnight.
func (t *Table) OutgoingSpan(id string, hour, span int) float64 {
	sum := 0.0
	for h := hour; h < hour+span && h < 24; h++ {
		sum += t.Outgoing(id, h)
	}
	return sum
}
