// Package recorder persists what the simulation reports: per-tick snapshots,
// end-of-day summaries and the deduplicated missed-trip log.
package recorder

import (
	"errors"

	"BikeRebalancer/internal/model"
)

// Recorder is the reporting sink of the simulation.
type Recorder interface {
	RecordTick(snap *model.TickSnapshot) error
	RecordDay(sum *model.DaySummary) error
	RecordMissed(trips []model.MissedTripRecord) error
	Close() error
}

// Multi fans every record out to several recorders. All of them are called
// even when one fails; the errors are joined.
type Multi []Recorder

func (m Multi) RecordTick(snap *model.TickSnapshot) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordTick(snap))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordDay(sum *model.DaySummary) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordDay(sum))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordMissed(trips []model.MissedTripRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordMissed(trips))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
