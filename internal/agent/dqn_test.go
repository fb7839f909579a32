package agent

import (
	"math"
	"path/filepath"
	"testing"

	"BikeRebalancer/internal/model"
)

func testParams() Params {
	return Params{
		StateDim:       model.StateDim,
		ActionDim:      model.NumActions,
		Hidden:         16,
		BufferCapacity: 100,
		BatchSize:      8,
		LearningRate:   1e-2,
		Gamma:          0.99,
		TargetSync:     1000,
		EpsilonStart:   1.0,
		EpsilonMin:     0.5,
		EpsilonDecay:   0.5,
		Seed:           1,
	}
}

func state(v float64) []float64 {
	s := make([]float64, model.StateDim)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestUpdate_NoOpBelowBatchSize(t *testing.T) {
	d := New(testParams())
	before := d.OnlineSnapshot()
	for i := 0; i < d.BatchSize()-1; i++ {
		if err := d.Store(model.Transition{State: state(1), Action: 1, Reward: 1, NextState: state(1)}); err != nil {
			t.Fatalf("store: %v", err)
		}
	}
	if d.Update() {
		t.Fatal("update should be a no-op with a short buffer")
	}
	if !d.WeightsEqual(before) {
		t.Error("weights changed on a no-op update")
	}
	if d.Epsilon() != 1.0 || d.Steps() != 0 {
		t.Errorf("no-op update must not decay epsilon or count a step, eps=%.3f steps=%d", d.Epsilon(), d.Steps())
	}
}

func TestUpdate_DecaysEpsilonToFloor(t *testing.T) {
	d := New(testParams())
	for i := 0; i < 8; i++ {
		_ = d.Store(model.Transition{State: state(float64(i)), Action: i % model.NumActions, NextState: state(0)})
	}
	if !d.Update() {
		t.Fatal("expected update to run")
	}
	if d.Epsilon() != 0.5 {
		t.Errorf("expected epsilon 0.5 after one decay, got %.3f", d.Epsilon())
	}
	d.Update()
	if d.Epsilon() != 0.5 {
		t.Errorf("epsilon must stay at the floor, got %.3f", d.Epsilon())
	}
	d.ResetEpsilon(0.9)
	if d.Epsilon() != 0.9 {
		t.Error("explicit reset should raise epsilon")
	}
}

func TestUpdate_LearnsTerminalReward(t *testing.T) {
	d := New(testParams())
	s := state(0.5)
	for i := 0; i < 20; i++ {
		_ = d.Store(model.Transition{State: s, Action: 2, Reward: 1, NextState: s, Done: true})
	}
	initial := math.Abs(d.QValues(s)[2] - 1)
	for i := 0; i < 300; i++ {
		d.Update()
	}
	final := math.Abs(d.QValues(s)[2] - 1)
	if final > initial/2 {
		t.Errorf("expected TD error to shrink, initial=%.4f final=%.4f", initial, final)
	}
}

func TestTargetSync(t *testing.T) {
	p := testParams()
	p.TargetSync = 2
	d := New(p)
	for i := 0; i < 8; i++ {
		_ = d.Store(model.Transition{State: state(1), Action: 3, Reward: -1, NextState: state(1)})
	}
	d.Update()
	if d.target.Equal(d.online) {
		t.Fatal("target should lag the online network before the sync step")
	}
	d.Update()
	if !d.target.Equal(d.online) {
		t.Error("target should match the online network after the sync step")
	}
}

func TestStore_RejectsBadShapes(t *testing.T) {
	d := New(testParams())
	if err := d.Store(model.Transition{State: []float64{1}, NextState: state(0)}); err == nil {
		t.Error("expected error for short state")
	}
	if err := d.Store(model.Transition{State: state(0), NextState: state(0), Action: 7}); err == nil {
		t.Error("expected error for out-of-range action")
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	p := testParams()
	d := New(p)
	for i := 0; i < 8; i++ {
		_ = d.Store(model.Transition{State: state(1), Action: 0, Reward: 1, NextState: state(1)})
	}
	d.Update()
	path := filepath.Join(t.TempDir(), "ckpt", "agent.json")
	if err := d.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	p.Seed = 99
	other := New(p)
	ok, err := other.Load(path)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !other.WeightsEqual(d.OnlineSnapshot()) {
		t.Error("restored weights differ")
	}
	if other.Epsilon() != d.Epsilon() || other.Steps() != d.Steps() {
		t.Errorf("restored eps/steps %.3f/%d, want %.3f/%d", other.Epsilon(), other.Steps(), d.Epsilon(), d.Steps())
	}
	if other.BufferLen() != 0 {
		t.Error("replay buffer is not part of the checkpoint")
	}

	missing, err := other.Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil || missing {
		t.Errorf("missing checkpoint should be ignored, ok=%v err=%v", missing, err)
	}
}

func TestCheckpoint_ShapeMismatch(t *testing.T) {
	d := New(testParams())
	cp := d.Checkpoint()
	p := testParams()
	p.Hidden = 4
	if err := New(p).Restore(cp); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestCheckpoint_FailedRestoreLeavesAgentUntouched(t *testing.T) {
	d := New(testParams())
	before := d.OnlineSnapshot()
	target := d.target.Clone()
	eps := d.Epsilon()

	p := testParams()
	p.Seed = 99
	cp := New(p).Checkpoint()
	cp.Epsilon = 0.1
	cp.AdamV = cp.AdamV[:1]
	if err := d.Restore(cp); err == nil {
		t.Fatal("expected error for a truncated optimizer state")
	}
	if !d.WeightsEqual(before) || !d.target.Equal(target) {
		t.Error("a rejected checkpoint must not overwrite any network")
	}
	if d.Epsilon() != eps {
		t.Errorf("epsilon changed to %.3f", d.Epsilon())
	}
}
