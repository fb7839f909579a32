package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"BikeRebalancer/internal/config"
	"BikeRebalancer/internal/model"
	"BikeRebalancer/internal/recorder"
	"BikeRebalancer/internal/source"
)

// Runner simulates the configured days side by side, one epoch at a time.
// Final counts of a day can seed the next epoch of the same day.
type Runner struct {
	cfg      *config.Config
	catalog  source.StationCatalog
	trips    source.TripSource
	trainer  Trainer
	sink     recorder.Recorder
	logger   *log.Logger
	registry *Registry

	stations []model.StationInfo
	tripsBy  map[string][]model.TripRecord
	carry    map[string]map[string]int
	epoch    atomic.Int64
}

// NewRunner wires a runner. trainer may be nil for the static policies.
func NewRunner(cfg *config.Config, catalog source.StationCatalog, trips source.TripSource,
	trainer Trainer, sink recorder.Recorder, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if sink == nil {
		sink = recorder.NewNoopRecorder()
	}
	return &Runner{
		cfg:      cfg,
		catalog:  catalog,
		trips:    trips,
		trainer:  trainer,
		sink:     sink,
		logger:   logger,
		registry: NewRegistry(),
		tripsBy:  make(map[string][]model.TripRecord),
		carry:    make(map[string]map[string]int),
	}
}

// Epochs is how many epochs have completed.
func (r *Runner) Epochs() int { return int(r.epoch.Load()) }

func (r *Runner) load() error {
	if r.stations == nil {
		st, err := r.catalog.Stations()
		if err != nil {
			return fmt.Errorf("load stations: %w", err)
		}
		if len(st) == 0 {
			return fmt.Errorf("load stations: catalog is empty")
		}
		r.stations = st
	}
	for _, day := range r.cfg.Simulation.Days {
		if _, ok := r.tripsBy[day]; ok {
			continue
		}
		trips, err := r.trips.Trips(day)
		if err != nil {
			return fmt.Errorf("load trips: %w", err)
		}
		r.tripsBy[day] = trips
	}
	return nil
}

func (r *Runner) initial(day string) map[string]int {
	if c, ok := r.carry[day]; ok && r.cfg.Simulation.CarryOver {
		return c
	}
	counts := make(map[string]int, len(r.stations))
	for _, st := range r.stations {
		if st.InitialBikes != nil {
			counts[st.ID] = *st.InitialBikes
		} else {
			counts[st.ID] = r.cfg.Simulation.InitialBikes
		}
	}
	return counts
}

// RunEpoch simulates every configured day once. Days advance tick by tick in
// lockstep but never share state. Cancelling ctx abandons the open days.
func (r *Runner) RunEpoch(ctx context.Context) ([]*model.DaySummary, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	ids := make([]string, len(r.stations))
	for i, st := range r.stations {
		ids[i] = st.ID
	}

	handles := r.cfg.Simulation.Days
	defer func() {
		for _, h := range handles {
			r.registry.Close(h)
		}
	}()
	for _, day := range handles {
		start, err := source.DayStart(day)
		if err != nil {
			return nil, err
		}
		d, err := NewDay(Options{
			Day:      day,
			Start:    start,
			Stations: ids,
			Initial:  r.initial(day),
			Trips:    r.tripsBy[day],
			RunID:    runID,
		}, r.cfg, r.trainer, r.sink, r.logger)
		if err != nil {
			return nil, err
		}
		if err := r.registry.Open(day, d); err != nil {
			return nil, err
		}
		if err := d.Begin(); err != nil {
			return nil, err
		}
	}

	for k := 0; k <= r.cfg.Simulation.TicksPerDay; k++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("epoch %d interrupted at tick %d: %w", r.Epochs()+1, k, err)
		}
		for _, h := range handles {
			if d, ok := r.registry.Get(h); ok {
				d.Tick(k)
			}
		}
	}

	out := make([]*model.DaySummary, 0, len(handles))
	for _, h := range handles {
		d, _ := r.registry.Get(h)
		sum := d.Summary()
		if sum == nil {
			return nil, fmt.Errorf("day %s did not finish", h)
		}
		r.carry[h] = sum.FinalCounts
		out = append(out, sum)
	}
	n := r.epoch.Add(1)
	r.logger.Info("epoch finished", "epoch", n, "run", runID, "days", len(out))
	return out, nil
}

// Run executes n epochs, calling onDay after each finished day.
func (r *Runner) Run(ctx context.Context, n int, onDay func(epoch int, sum *model.DaySummary)) error {
	for i := 0; i < n; i++ {
		sums, err := r.RunEpoch(ctx)
		if err != nil {
			return err
		}
		if onDay != nil {
			for _, s := range sums {
				onDay(r.Epochs(), s)
			}
		}
	}
	return nil
}
