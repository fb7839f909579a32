// Package engine drives simulated days: one Day arena per calendar day, a
// registry of open days, and a runner that advances several days side by side.
package engine

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/stat"

	"BikeRebalancer/internal/agent"
	"BikeRebalancer/internal/config"
	"BikeRebalancer/internal/forecast"
	"BikeRebalancer/internal/ledger"
	"BikeRebalancer/internal/matcher"
	"BikeRebalancer/internal/model"
	"BikeRebalancer/internal/policy"
	"BikeRebalancer/internal/recorder"
	"BikeRebalancer/internal/transit"
)

// State is the lifecycle phase of a Day.
type State int

const (
	Idle State = iota
	Running
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Finalizing:
		return "finalizing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Trainer is the shared learning agent as seen by a Day.
type Trainer interface {
	agent.Learner
	Update() bool
	Epsilon() float64
}

// Options describes one simulated day.
type Options struct {
	Day      string
	Start    time.Time // midnight of Day
	Stations []string
	Initial  map[string]int
	Trips    []model.TripRecord
	RunID    string
}

// Day is the arena holding everything one simulated day owns. Nothing in it
// is shared with other days except the Trainer.
type Day struct {
	opts    Options
	cfg     *config.Config
	trainer Trainer
	sink    recorder.Recorder
	logger  *log.Logger

	ticks  int
	step   time.Duration
	demand *forecast.Table

	ledger   *ledger.Ledger
	queue    *transit.Queue
	matcher  *matcher.Matcher
	exec     *policy.Executor
	policies []policy.Policy
	learned  *policy.Learned

	state     State
	next      int
	prev      time.Time
	completed int
	missed    []model.MissedTripRecord
	seen      map[string]struct{}
	summary   *model.DaySummary
}

// NewDay validates opts and returns an Idle day. trainer may be nil unless
// the configured policy is the learned one.
func NewDay(opts Options, cfg *config.Config, trainer Trainer, sink recorder.Recorder, logger *log.Logger) (*Day, error) {
	if cfg.Simulation.TicksPerDay <= 0 {
		return nil, fmt.Errorf("day %s: ticks per day must be positive", opts.Day)
	}
	if len(opts.Stations) == 0 {
		return nil, fmt.Errorf("day %s: no stations", opts.Day)
	}
	if cfg.Policy.Kind == "learned" && trainer == nil {
		return nil, fmt.Errorf("day %s: learned policy needs an agent", opts.Day)
	}
	if sink == nil {
		sink = recorder.NewNoopRecorder()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Day{
		opts:    opts,
		cfg:     cfg,
		trainer: trainer,
		sink:    sink,
		logger:  logger.With("day", opts.Day),
		ticks:   cfg.Simulation.TicksPerDay,
		step:    24 * time.Hour / time.Duration(cfg.Simulation.TicksPerDay),
		demand:  forecast.FromTrips(opts.Trips),
	}, nil
}

// Name is the day identifier.
func (d *Day) Name() string { return d.opts.Day }

// State returns the current lifecycle phase.
func (d *Day) State() State { return d.state }

// Ticks is the number of the final tick.
func (d *Day) Ticks() int { return d.ticks }

// Next is the tick the day expects next.
func (d *Day) Next() int { return d.next }

// Begin builds a fresh arena and moves Idle to Running.
func (d *Day) Begin() error {
	if d.state != Idle {
		return fmt.Errorf("day %s: begin while %s", d.opts.Day, d.state)
	}
	d.ledger = ledger.New(d.cfg.Capacity, d.demand)
	d.ledger.Initialize(d.opts.Stations, d.opts.Initial)
	d.queue = transit.New()
	d.matcher = matcher.New(d.opts.Day, d.opts.Trips, d.logger)
	d.exec = policy.NewExecutor(d.ledger, d.queue, d.cfg.Simulation.CostPerBike, d.logger)
	d.policies, d.learned = buildPolicies(d.cfg, d.trainer, d.logger)

	d.next = 0
	d.prev = d.opts.Start
	d.completed = 0
	d.missed = nil
	d.seen = make(map[string]struct{})
	d.summary = nil
	d.state = Running
	d.logger.Info("day started", "stations", d.ledger.Len(), "trips", len(d.opts.Trips), "bikes", d.ledger.TotalBikes())
	return nil
}

// Abandon discards the arena without emitting a summary.
func (d *Day) Abandon() {
	if d.state == Idle && d.ledger == nil {
		return
	}
	d.ledger, d.queue, d.matcher, d.exec = nil, nil, nil, nil
	d.policies, d.learned = nil, nil
	d.missed, d.seen = nil, nil
	d.state = Idle
	d.logger.Warn("day abandoned", "at_tick", d.next)
}

// TimeOf returns the simulated time of tick k.
func (d *Day) TimeOf(k int) time.Time { return d.opts.Start.Add(time.Duration(k) * d.step) }

func (d *Day) hourOf(k int) int {
	h := int(d.TimeOf(k).Sub(d.opts.Start) / time.Hour)
	return min(max(h, 0), 23)
}

// Tick applies tick k. Anything but the next expected tick of a running day
// is ignored and reported as false. The final tick finalizes the day.
func (d *Day) Tick(k int) bool {
	if d.state != Running || k != d.next {
		d.logger.Debug("tick ignored", "tick", k, "expected", d.next, "state", d.state)
		return false
	}
	now := d.TimeOf(k)
	hour := d.hourOf(k)

	d.ledger.ClearTickFlags()
	d.ledger.RefreshCapacity(hour)
	d.applyArrivals(now)
	d.ledger.SampleAll()

	res := d.matcher.Match(d.prev, now, d.ledger, d.queue)
	d.completed += res.Completed
	d.logMissed(res.Missing)

	ctx := d.context(k, now, hour)
	decided := false
	for _, p := range d.policies {
		if !p.Due(k, hour) {
			continue
		}
		out := p.Run(ctx, d.exec)
		if out.Transfers > 0 {
			d.logger.Debug("redistribution", "policy", p.Name(), "tick", k, "transfers", out.Transfers, "bikes", out.Moved)
		}
		decided = decided || out.Decided
	}
	if decided && d.trainer != nil {
		d.trainer.Update()
	}

	if err := d.sink.RecordTick(d.snapshot(k, now)); err != nil {
		d.logger.Error("record tick", "tick", k, "err", err)
	}

	d.prev = now
	d.next++
	if k == d.ticks {
		d.finalize()
	}
	return true
}

func (d *Day) applyArrivals(now time.Time) {
	for _, ev := range d.queue.DrainDue(now) {
		d.ledger.Increment(ev.Destination, ev.Quantity)
		if ev.Kind == model.KindRedistribution {
			d.ledger.MarkReceived(ev.Destination, ev.Quantity)
			d.ledger.Release(ev.Destination, ev.Quantity)
		}
	}
}

func (d *Day) logMissed(recs []model.MissedTripRecord) {
	for _, r := range recs {
		key := r.TripID + "|" + r.Day
		if _, dup := d.seen[key]; dup {
			continue
		}
		d.seen[key] = struct{}{}
		d.missed = append(d.missed, r)
	}
}

func (d *Day) context(k int, now time.Time, hour int) *policy.Context {
	return &policy.Context{Day: d.opts.Day, Tick: k, Now: now, Hour: hour, Ledger: d.ledger, Demand: d.demand}
}

func (d *Day) snapshot(k int, now time.Time) *model.TickSnapshot {
	snap := &model.TickSnapshot{
		Day:       d.opts.Day,
		Tick:      k,
		Time:      now,
		InTransit: d.queue.InTransit(),
		Completed: d.completed,
		Missed:    len(d.missed),
		Stations:  make([]model.StationSnapshot, 0, d.ledger.Len()),
	}
	for _, id := range d.ledger.IDs() {
		st, _ := d.ledger.Station(id)
		snap.Stations = append(snap.Stations, model.StationSnapshot{
			ID:         id,
			BikeCount:  st.BikeCount,
			Capacity:   st.Capacity,
			JustMissed: st.JustMissed,
			Sent:       st.TickSent,
			Received:   st.TickReceived,
			Band:       model.Band(st.BikeCount),
		})
	}
	return snap
}

func (d *Day) finalize() {
	d.state = Finalizing
	sim := d.cfg.Simulation

	missedTotal := 0
	statuses := make(map[string]model.StationStatus, d.ledger.Len())
	avail := make([]float64, 0, d.ledger.Len())
	for _, id := range d.ledger.IDs() {
		st, _ := d.ledger.Station(id)
		missedTotal += st.MissedTrips
		statuses[id] = Classify(st, sim.BusyThreshold, sim.IdleThreshold, sim.StatusRatio)
		avail = append(avail, st.AvgAvailability())
	}

	sum := &model.DaySummary{
		RunID:           d.opts.RunID,
		Day:             d.opts.Day,
		Policy:          PolicyName(d.cfg),
		Completed:       d.completed,
		Missed:          missedTotal,
		RebalancingCost: d.exec.Cost(),
		BikesMoved:      d.exec.Moved(),
		Statuses:        statuses,
		FinalCounts:     d.settledCounts(),
		FinishedAt:      time.Now(),
	}
	if total := sum.Completed + sum.Missed; total > 0 {
		sum.CompletionRate = float64(sum.Completed) / float64(total)
	}
	if len(avail) > 0 {
		sum.AvgAvailability = stat.Mean(avail, nil)
	}

	if d.learned != nil {
		stored := d.learned.Finish(d.context(d.ticks, d.TimeOf(d.ticks), 23))
		steps := 0
		for i := 0; i < d.cfg.Agent.OffTickUpdates; i++ {
			if d.trainer.Update() {
				steps++
			}
		}
		d.logger.Debug("end-of-day learning", "transitions", stored, "updates", steps)
	}
	if d.trainer != nil {
		sum.Epsilon = d.trainer.Epsilon()
	}

	if err := d.sink.RecordMissed(d.missed); err != nil {
		d.logger.Error("record missed trips", "err", err)
	}
	if err := d.sink.RecordDay(sum); err != nil {
		d.logger.Error("record day summary", "err", err)
	}
	d.logger.Info("day finished", "completed", sum.Completed, "missed", sum.Missed,
		"rate", fmt.Sprintf("%.3f", sum.CompletionRate), "cost", sum.RebalancingCost)

	d.summary = sum
	d.state = Idle
}

// settledCounts is every station's count once all bikes still on the road
// have arrived.
func (d *Day) settledCounts() map[string]int {
	counts := d.ledger.Counts()
	for _, ev := range d.queue.Pending() {
		counts[ev.Destination] += ev.Quantity
	}
	return counts
}

// Summary returns the summary of the last finished run, or nil.
func (d *Day) Summary() *model.DaySummary { return d.summary }

// Missed returns the deduplicated missed-trip log.
func (d *Day) Missed() []model.MissedTripRecord { return d.missed }

// Station returns a copy of one station's state.
func (d *Day) Station(id string) (model.Station, bool) {
	if d.ledger == nil {
		return model.Station{}, false
	}
	return d.ledger.Station(id)
}

// FleetSize is the number of bikes docked plus those in transit.
func (d *Day) FleetSize() int {
	if d.ledger == nil {
		return 0
	}
	return d.ledger.TotalBikes() + d.queue.InTransit()
}

// Classify assigns the end-of-day status of a station.
func Classify(st model.Station, busy, idle int, ratio float64) model.StationStatus {
	switch a := st.Activity(); {
	case a > busy:
		return model.StatusBusy
	case a < idle:
		return model.StatusUnderused
	case st.EmptyRatio() > ratio:
		return model.StatusAlwaysEmpty
	case st.FullRatio() > ratio:
		return model.StatusAlwaysFull
	}
	return model.StatusBalanced
}
