// Package matcher fulfils trip starts against the fleet ledger.
package matcher

import (
	"time"

	"github.com/charmbracelet/log"

	"BikeRebalancer/internal/model"
)

// Inventory is the subset of the ledger the matcher mutates.
type Inventory interface {
	Has(id string) bool
	CanFulfill(id string) bool
	Decrement(id string)
	RecordCompleted(id string)
	RecordMissed(id string)
}

// Scheduler accepts the organic return of a fulfilled trip.
type Scheduler interface {
	Schedule(ev model.TransitEvent) error
}

// Result summarises one Match call.
type Result struct {
	Completed int
	Missed    int
	Skipped   int
	Missing   []model.MissedTripRecord
}

// Matcher walks a day's trips, which are expected in ascending start order.
type Matcher struct {
	day    string
	trips  []model.TripRecord
	cursor int
	logger *log.Logger
}

// New creates a matcher over trips for day.
func New(day string, trips []model.TripRecord, logger *log.Logger) *Matcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Matcher{day: day, trips: trips, logger: logger}
}

// Remaining is the number of trips not yet consumed.
func (m *Matcher) Remaining() int { return len(m.trips) - m.cursor }

// Match consumes every trip with from <= start < to. Records that start
// before from (out of order), end before they start, or reference unknown
// stations are skipped with a warning.
func (m *Matcher) Match(from, to time.Time, inv Inventory, sched Scheduler) Result {
	var res Result
	for m.cursor < len(m.trips) {
		tr := m.trips[m.cursor]
		if !tr.Start.Before(to) {
			break
		}
		m.cursor++

		if tr.Start.Before(from) {
			m.logger.Warn("trip out of order, skipping", "day", m.day, "trip", tr.ID, "start", tr.Start.Format(time.TimeOnly))
			res.Skipped++
			continue
		}
		if tr.End.Before(tr.Start) {
			m.logger.Warn("trip ends before it starts, skipping", "day", m.day, "trip", tr.ID)
			res.Skipped++
			continue
		}
		if !inv.Has(tr.Origin) || !inv.Has(tr.Destination) {
			m.logger.Warn("trip references unknown station, skipping", "day", m.day, "trip", tr.ID,
				"origin", tr.Origin, "destination", tr.Destination)
			res.Skipped++
			continue
		}

		if !inv.CanFulfill(tr.Origin) {
			inv.RecordMissed(tr.Origin)
			res.Missed++
			res.Missing = append(res.Missing, model.MissedTripRecord{
				TripID:      tr.ID,
				Start:       tr.Start,
				End:         tr.End,
				Origin:      tr.Origin,
				Destination: tr.Destination,
				Day:         m.day,
			})
			continue
		}

		inv.Decrement(tr.Origin)
		inv.RecordCompleted(tr.Origin)
		if err := sched.Schedule(model.TransitEvent{
			Destination: tr.Destination,
			Origin:      tr.Origin,
			Quantity:    1,
			ArrivalTime: tr.End,
			Kind:        model.KindOrganic,
		}); err != nil {
			// Quantity is fixed at 1, so this only fires on a broken scheduler.
			m.logger.Error("schedule trip return", "trip", tr.ID, "err", err)
		}
		res.Completed++
	}
	return res
}
