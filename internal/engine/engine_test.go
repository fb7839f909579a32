package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"BikeRebalancer/internal/agent"
	"BikeRebalancer/internal/config"
	"BikeRebalancer/internal/model"
	"BikeRebalancer/internal/recorder"
	"BikeRebalancer/internal/source"
)

const testDay = "2022-05-05"

func testConfig(kind string) *config.Config {
	cfg := &config.Config{}
	cfg.Policy.Kind = kind
	cfg.Simulation.TicksPerDay = 48
	cfg.Simulation.Days = []string{testDay}
	cfg.Agent.OffTickUpdates = 5
	config.ApplyDefaults(cfg)
	return cfg
}

func testTrainer() *agent.DQN {
	return agent.New(agent.Params{
		Hidden: 8, BufferCapacity: 200, BatchSize: 4, LearningRate: 1e-3, Gamma: 0.9,
		TargetSync: 10, EpsilonStart: 1, EpsilonMin: 0.05, EpsilonDecay: 0.9, Seed: 3,
	})
}

func dayStart(t *testing.T) time.Time {
	t.Helper()
	s, err := source.DayStart(testDay)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func runDay(t *testing.T, d *Day) {
	t.Helper()
	if err := d.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for k := 0; k <= d.Ticks(); k++ {
		if !d.Tick(k) {
			t.Fatalf("tick %d rejected", k)
		}
	}
}

func TestDay_EmptyStationMissesSecondTrip(t *testing.T) {
	start := dayStart(t)
	at := start.Add(8 * time.Hour)
	trips := []model.TripRecord{
		{ID: "t1", Start: at, End: at.Add(time.Hour), Origin: "A", Destination: "A"},
		{ID: "t2", Start: at.Add(30 * time.Second), End: at.Add(time.Hour), Origin: "A", Destination: "A"},
	}
	d, err := NewDay(Options{Day: testDay, Start: start, Stations: []string{"A"}, Initial: map[string]int{"A": 1}, Trips: trips},
		testConfig("none"), nil, nil, nil)
	if err != nil {
		t.Fatalf("new day: %v", err)
	}
	runDay(t, d)

	sum := d.Summary()
	if sum == nil || sum.Completed != 1 || sum.Missed != 1 {
		t.Fatalf("expected 1 completed and 1 missed, got %+v", sum)
	}
	if sum.CompletionRate != 0.5 {
		t.Errorf("expected rate 0.5, got %.2f", sum.CompletionRate)
	}
	if m := d.Missed(); len(m) != 1 || m[0].TripID != "t2" || m[0].Day != testDay {
		t.Errorf("unexpected missed log %+v", m)
	}
	if st, _ := d.Station("A"); st.BikeCount != 1 || st.MissedTrips != 1 {
		t.Errorf("bike should be back at A, got %+v", st)
	}
	if d.State() != Idle {
		t.Errorf("finished day should be idle, got %s", d.State())
	}
}

func TestDay_UnknownStationsSkipped(t *testing.T) {
	start := dayStart(t)
	at := start.Add(9 * time.Hour)
	trips := []model.TripRecord{
		{ID: "t1", Start: at, End: at.Add(time.Hour), Origin: "A", Destination: "Z"},
		{ID: "t2", Start: at, End: at.Add(time.Hour), Origin: "Y", Destination: "A"},
	}
	d, _ := NewDay(Options{Day: testDay, Start: start, Stations: []string{"A"}, Initial: map[string]int{"A": 5}, Trips: trips},
		testConfig("none"), nil, nil, nil)
	runDay(t, d)
	if sum := d.Summary(); sum.Completed != 0 || sum.Missed != 0 {
		t.Errorf("unknown stations should be skipped, got %+v", sum)
	}
}

func TestDay_TickOrdering(t *testing.T) {
	d, _ := NewDay(Options{Day: testDay, Start: dayStart(t), Stations: []string{"A", "B"}}, testConfig("none"), nil, nil, nil)
	if d.Tick(0) {
		t.Fatal("idle day must reject ticks")
	}
	_ = d.Begin()
	if err := d.Begin(); err == nil {
		t.Error("begin twice should fail")
	}
	if !d.Tick(0) || d.Tick(0) {
		t.Fatal("tick 0 must apply exactly once")
	}
	if d.Tick(5) {
		t.Error("skipping ahead must be rejected")
	}
	if !d.Tick(1) || d.Next() != 2 {
		t.Errorf("expected next tick 2, got %d", d.Next())
	}
	d.Abandon()
	if d.State() != Idle || d.Summary() != nil {
		t.Error("abandoned day must be idle without summary")
	}
}

func TestDay_ConservesFleet(t *testing.T) {
	syn := source.Synthetic{NumStations: 6, TripsPerHour: 3, Seed: 11}
	info, _ := syn.Stations()
	trips, _ := syn.Trips(testDay)
	ids := make([]string, len(info))
	initial := map[string]int{}
	for i, st := range info {
		ids[i] = st.ID
		initial[st.ID] = 4 + 6*i
	}

	cfg := testConfig("demand_ranked")
	cfg.Policy.EqualSpread.Enabled = true
	d, _ := NewDay(Options{Day: testDay, Start: dayStart(t), Stations: ids, Initial: initial, Trips: trips}, cfg, nil, nil, nil)
	_ = d.Begin()
	want := d.FleetSize()
	moves := 0
	for k := 0; k <= d.Ticks(); k++ {
		before := inFlight(d)
		d.Tick(k)
		if got := d.FleetSize(); got != want {
			t.Fatalf("tick %d: fleet size %d, want %d", k, got, want)
		}
		for _, id := range ids {
			if st, _ := d.Station(id); st.BikeCount < 0 {
				t.Fatalf("tick %d: station %s negative", k, id)
			}
		}
		for ev, n := range inFlight(d) {
			if n <= before[ev] || ev.Kind != model.KindRedistribution {
				continue
			}
			moves++
			st, _ := d.Station(ev.Destination)
			if st.BikeCount+st.PendingInbound > st.Capacity {
				t.Fatalf("tick %d: receiver %s holds %d+%d over capacity %d",
					k, ev.Destination, st.BikeCount, st.PendingInbound, st.Capacity)
			}
		}
	}
	if moves == 0 {
		t.Fatal("expected redistribution moves to check")
	}
	sum := d.Summary()
	if sum.BikesMoved == 0 {
		t.Error("expected the redistribution passes to move bikes")
	}
	total := 0
	for _, c := range sum.FinalCounts {
		total += c
	}
	if total != want {
		t.Errorf("settled counts %d, want %d", total, want)
	}
}

// inFlight counts the queued transit events of d.
func inFlight(d *Day) map[model.TransitEvent]int {
	out := make(map[model.TransitEvent]int)
	for _, ev := range d.queue.Pending() {
		out[ev]++
	}
	return out
}

func TestDay_RepeatedTickLeavesStateUnchanged(t *testing.T) {
	syn := source.Synthetic{NumStations: 6, TripsPerHour: 4, Seed: 13}
	info, _ := syn.Stations()
	trips, _ := syn.Trips(testDay)
	ids := make([]string, len(info))
	initial := map[string]int{}
	for i, st := range info {
		ids[i] = st.ID
		initial[st.ID] = 2 + 5*i
	}
	d, _ := NewDay(Options{Day: testDay, Start: dayStart(t), Stations: ids, Initial: initial, Trips: trips},
		testConfig("equal_spread"), nil, nil, nil)
	_ = d.Begin()

	// Equal spread fires at 03:00, tick 6; its bikes land an hour later.
	for k := 0; k <= 7; k++ {
		d.Tick(k)
	}
	queued := inFlight(d)
	redistributing := 0
	for ev := range queued {
		if ev.Kind == model.KindRedistribution {
			redistributing++
		}
	}
	if redistributing == 0 {
		t.Fatal("expected redistribution bikes on the road at tick 7")
	}
	stations := make(map[string]model.Station, len(ids))
	for _, id := range ids {
		stations[id], _ = d.Station(id)
	}

	for _, k := range []int{7, 6, 0} {
		if d.Tick(k) {
			t.Fatalf("tick %d applied twice", k)
		}
	}
	for _, id := range ids {
		if st, _ := d.Station(id); st != stations[id] {
			t.Errorf("station %s changed by a repeated tick:\n%+v\n%+v", id, stations[id], st)
		}
	}
	after := inFlight(d)
	if len(after) != len(queued) {
		t.Fatalf("transit queue changed: %d events, want %d", len(after), len(queued))
	}
	for ev, n := range queued {
		if after[ev] != n {
			t.Errorf("transit event %+v changed", ev)
		}
	}
	if d.Next() != 8 {
		t.Errorf("expected next tick 8, got %d", d.Next())
	}
}

type tickCapture struct {
	recorder.NoopRecorder
	ticks []*model.TickSnapshot
}

func (c *tickCapture) RecordTick(snap *model.TickSnapshot) error {
	c.ticks = append(c.ticks, snap)
	return nil
}

func TestDay_SnapshotsReportTickDeltas(t *testing.T) {
	capture := &tickCapture{}
	d, _ := NewDay(Options{Day: testDay, Start: dayStart(t), Stations: []string{"A", "B"}, Initial: map[string]int{"A": 25, "B": 5}},
		testConfig("equal_spread"), nil, capture, nil)
	runDay(t, d)

	if len(capture.ticks) != d.Ticks()+1 {
		t.Fatalf("expected %d snapshots, got %d", d.Ticks()+1, len(capture.ticks))
	}
	var sentAt, receivedAt []int
	for _, snap := range capture.ticks {
		for _, st := range snap.Stations {
			if st.ID == "A" && st.Sent > 0 {
				sentAt = append(sentAt, snap.Tick)
				if st.Sent != 10 {
					t.Errorf("tick %d: A sent %d, want 10", snap.Tick, st.Sent)
				}
			}
			if st.ID == "B" && st.Received > 0 {
				receivedAt = append(receivedAt, snap.Tick)
				if st.Received != 10 {
					t.Errorf("tick %d: B received %d, want 10", snap.Tick, st.Received)
				}
			}
		}
	}
	if len(sentAt) != 1 || sentAt[0] != 6 {
		t.Errorf("A should report a send only on tick 6, got %v", sentAt)
	}
	if len(receivedAt) != 1 || receivedAt[0] != 8 {
		t.Errorf("B should report a receipt only on tick 8, got %v", receivedAt)
	}
}

func TestDay_LearnedPolicyTrains(t *testing.T) {
	syn := source.Synthetic{NumStations: 4, TripsPerHour: 2, Seed: 5}
	trainer := testTrainer()
	cfg := testConfig("learned")
	r := NewRunner(cfg, syn, syn, trainer, nil, nil)
	sums, err := r.RunEpoch(context.Background())
	if err != nil {
		t.Fatalf("epoch: %v", err)
	}
	if trainer.BufferLen() < 4 {
		t.Errorf("expected end-of-day transitions, buffer has %d", trainer.BufferLen())
	}
	if sums[0].Epsilon >= 1 || sums[0].Epsilon != trainer.Epsilon() {
		t.Errorf("expected decayed epsilon in summary, got %.3f", sums[0].Epsilon)
	}
	if sums[0].Policy != "learned" {
		t.Errorf("unexpected policy label %q", sums[0].Policy)
	}
}

func TestNewDay_LearnedNeedsTrainer(t *testing.T) {
	if _, err := NewDay(Options{Day: testDay, Stations: []string{"A"}}, testConfig("learned"), nil, nil, nil); err == nil {
		t.Error("expected error without a trainer")
	}
}

func summaryKey(s *model.DaySummary) [4]float64 {
	return [4]float64{float64(s.Completed), float64(s.Missed), s.RebalancingCost, s.AvgAvailability}
}

func TestRunner_DaysAreIsolated(t *testing.T) {
	syn := source.Synthetic{NumStations: 5, TripsPerHour: 2, Seed: 9}

	both := testConfig("demand_ranked")
	both.Simulation.Days = []string{"2022-05-05", "2022-05-11"}
	together, err := NewRunner(both, syn, syn, nil, nil, nil).RunEpoch(context.Background())
	if err != nil {
		t.Fatalf("epoch: %v", err)
	}

	for i, day := range both.Simulation.Days {
		solo := testConfig("demand_ranked")
		solo.Simulation.Days = []string{day}
		alone, err := NewRunner(solo, syn, syn, nil, nil, nil).RunEpoch(context.Background())
		if err != nil {
			t.Fatalf("epoch %s: %v", day, err)
		}
		if summaryKey(alone[0]) != summaryKey(together[i]) {
			t.Errorf("day %s differs when run alongside another: %v vs %v", day, summaryKey(alone[0]), summaryKey(together[i]))
		}
	}
	if together[0].RunID == "" || together[0].RunID != together[1].RunID {
		t.Error("days of one epoch share a run id")
	}
}

func TestRunner_Deterministic(t *testing.T) {
	syn := source.Synthetic{NumStations: 4, TripsPerHour: 2, Seed: 21}
	run := func() *model.DaySummary {
		sums, err := NewRunner(testConfig("learned"), syn, syn, testTrainer(), nil, nil).RunEpoch(context.Background())
		if err != nil {
			t.Fatalf("epoch: %v", err)
		}
		return sums[0]
	}
	a, b := run(), run()
	if summaryKey(a) != summaryKey(b) || a.Epsilon != b.Epsilon {
		t.Fatalf("runs differ: %v vs %v", summaryKey(a), summaryKey(b))
	}
	for id, c := range a.FinalCounts {
		if b.FinalCounts[id] != c {
			t.Errorf("station %s: %d vs %d", id, c, b.FinalCounts[id])
		}
	}
}

func TestRunner_CarryOver(t *testing.T) {
	syn := source.Synthetic{NumStations: 4, TripsPerHour: 2, Seed: 2}
	cfg := testConfig("none")
	cfg.Simulation.CarryOver = true
	r := NewRunner(cfg, syn, syn, nil, nil, nil)

	var counts []map[string]int
	err := r.Run(context.Background(), 2, func(_ int, s *model.DaySummary) { counts = append(counts, s.FinalCounts) })
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(counts) != 2 || r.Epochs() != 2 {
		t.Fatalf("expected 2 epochs, got %d", len(counts))
	}
	for i, c := range counts {
		total := 0
		for _, n := range c {
			total += n
		}
		if total != 4*cfg.Simulation.InitialBikes {
			t.Errorf("epoch %d: fleet %d, want %d", i+1, total, 4*cfg.Simulation.InitialBikes)
		}
	}
}

func TestRunner_CancelAbandonsDays(t *testing.T) {
	syn := source.Synthetic{NumStations: 3, TripsPerHour: 1, Seed: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(testConfig("none"), syn, syn, nil, nil, nil)
	if _, err := r.RunEpoch(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if h := r.registry.Handles(); len(h) != 0 {
		t.Errorf("handles left open: %v", h)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		st   model.Station
		want model.StationStatus
	}{
		{"busy", model.Station{CompletedTrips: 90, MissedTrips: 20}, model.StatusBusy},
		{"underused", model.Station{CompletedTrips: 2}, model.StatusUnderused},
		{"empty", model.Station{CompletedTrips: 20, WasEmptyTicks: 40, HealthyTicks: 60}, model.StatusAlwaysEmpty},
		{"full", model.Station{CompletedTrips: 20, WasFullTicks: 30, HealthyTicks: 70}, model.StatusAlwaysFull},
		{"balanced", model.Station{CompletedTrips: 20, HealthyTicks: 100}, model.StatusBalanced},
	}
	for _, c := range cases {
		if got := Classify(c.st, 100, 5, 0.25); got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func TestPolicyName(t *testing.T) {
	cfg := testConfig("demand_ranked")
	cfg.Policy.EqualSpread.Enabled = true
	if got := PolicyName(cfg); got != "equal_spread+demand_ranked" {
		t.Errorf("unexpected name %q", got)
	}
	if got := PolicyName(testConfig("equal_spread")); got != "equal_spread" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestRunner_EpochsReadableDuringRun(t *testing.T) {
	syn := source.Synthetic{NumStations: 3, TripsPerHour: 1, Seed: 4}
	r := NewRunner(testConfig("none"), syn, syn, nil, nil, nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), 3, nil) }()
	seen := 0
	for running := true; running; {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			running = false
		default:
			n := r.Epochs()
			if n < seen || n > 3 {
				t.Fatalf("epoch count went from %d to %d", seen, n)
			}
			seen = n
		}
	}
	if r.Epochs() != 3 {
		t.Errorf("expected 3 epochs, got %d", r.Epochs())
	}
}
