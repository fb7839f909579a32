package agent

import (
	"math/rand/v2"
	"testing"

	"BikeRebalancer/internal/model"
)

func TestReplayBuffer_EvictsOldestFirst(t *testing.T) {
	b := NewReplayBuffer(3)
	for i := 0; i < 4; i++ {
		b.Push(model.Transition{Action: i})
	}
	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
	seen := map[int]bool{}
	for _, tr := range b.Sample(3, rand.New(rand.NewPCG(1, 2))) {
		seen[tr.Action] = true
	}
	if seen[0] || !seen[1] || !seen[2] || !seen[3] {
		t.Errorf("expected transitions 1..3 after evicting 0, got %v", seen)
	}
	if old, _ := b.Oldest(); old.Action != 1 {
		t.Errorf("expected oldest 1, got %d", old.Action)
	}
	b.Push(model.Transition{Action: 4})
	if old, _ := b.Oldest(); old.Action != 2 {
		t.Errorf("expected oldest 2 after another push, got %d", old.Action)
	}
}

func TestReplayBuffer_SampleDistinct(t *testing.T) {
	b := NewReplayBuffer(10)
	for i := 0; i < 10; i++ {
		b.Push(model.Transition{Action: i})
	}
	got := b.Sample(10, rand.New(rand.NewPCG(3, 4)))
	seen := map[int]bool{}
	for _, tr := range got {
		if seen[tr.Action] {
			t.Fatalf("duplicate sample %d", tr.Action)
		}
		seen[tr.Action] = true
	}
	if len(b.Sample(50, rand.New(rand.NewPCG(5, 6)))) != 10 {
		t.Error("sample size should clip to buffer length")
	}
}

type recordingLearner struct {
	action int
	stored []model.Transition
}

func (r *recordingLearner) SelectAction([]float64) int { return r.action }
func (r *recordingLearner) Store(t model.Transition) error {
	r.stored = append(r.stored, t)
	return nil
}

func TestStationAgent_Trajectory(t *testing.T) {
	l := &recordingLearner{action: int(model.ActionSend2)}
	sa := NewStationAgent("A", l)
	if err := sa.Record(1, model.Observation{}, false); err != nil || len(l.stored) != 0 {
		t.Fatal("record without an action must be a no-op")
	}
	if a := sa.Act(model.Observation{BikeCount: 7}); a != model.ActionSend2 {
		t.Fatalf("expected send_2, got %s", a)
	}
	_ = sa.Record(-2, model.Observation{BikeCount: 3}, true)
	if len(l.stored) != 1 || l.stored[0].State[0] != 7 || l.stored[0].NextState[0] != 3 || !l.stored[0].Done {
		t.Fatalf("unexpected transition %+v", l.stored)
	}
	if sa.Pending() {
		t.Error("terminal record should close the trajectory")
	}
	_ = sa.Bonus(model.Observation{BikeCount: 3}, 10)
	if got := l.stored[1]; got.Reward != 10 || !got.Done {
		t.Errorf("unexpected bonus transition %+v", got)
	}
}

func TestReward(t *testing.T) {
	st := model.Station{BikeCount: 10, WindowMissed: 2, SentBikes: 5, ReceivedBikes: 0, OverflowAttempts: 5}
	w := Weights{Missed: 1, Move: 0.1, Overflow: 0.5, Ideal: 0.05}
	// -2 - 0.5 - 2.5 - 0.05*|10-30| = -6
	if got := Reward(st, 30, w); got < -6.0001 || got > -5.9999 {
		t.Errorf("expected reward -6, got %.4f", got)
	}
}
