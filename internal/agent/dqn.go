// Package agent implements the shared deep Q-learning redistribution agent.
//
// One DQN instance is shared by every station (parameter sharing); each
// station only keeps its own last observation and action in a StationAgent.
// Update is the single mutation point of the shared weights and is meant to
// be called from one place, the day orchestrator.
package agent

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/mat"

	"BikeRebalancer/internal/config"
	"BikeRebalancer/internal/model"
)

// Learner is what a station-level trajectory holder needs from the shared agent.
type Learner interface {
	SelectAction(state []float64) int
	Store(t model.Transition) error
}

// Params configures a DQN.
type Params struct {
	StateDim       int
	ActionDim      int
	Hidden         int
	BufferCapacity int
	BatchSize      int
	LearningRate   float64
	Gamma          float64
	TargetSync     int
	EpsilonStart   float64
	EpsilonMin     float64
	EpsilonDecay   float64
	Seed           int64
}

// ParamsFromConfig maps the agent config section onto Params.
func ParamsFromConfig(a config.Agent) Params {
	return Params{
		StateDim:       model.StateDim,
		ActionDim:      model.NumActions,
		Hidden:         a.Hidden,
		BufferCapacity: a.BufferCapacity,
		BatchSize:      a.BatchSize,
		LearningRate:   a.LearningRate,
		Gamma:          a.Gamma,
		TargetSync:     a.TargetSync,
		EpsilonStart:   a.EpsilonStart,
		EpsilonMin:     a.EpsilonMin,
		EpsilonDecay:   a.EpsilonDecay,
		Seed:           a.Seed,
	}
}

// DQN is a deep Q-network agent with a periodically synced target network.
// It is safe for concurrent use.
type DQN struct {
	mu sync.Mutex

	p       Params
	online  *QNetwork
	target  *QNetwork
	opt     *Adam
	buffer  *ReplayBuffer
	rng     *rand.Rand
	epsilon float64
	steps   int
	loss    float64
}

// New creates an agent with freshly initialised weights.
func New(p Params) *DQN {
	if p.StateDim == 0 {
		p.StateDim = model.StateDim
	}
	if p.ActionDim == 0 {
		p.ActionDim = model.NumActions
	}
	if p.Hidden == 0 {
		p.Hidden = 128
	}
	if p.TargetSync <= 0 {
		p.TargetSync = 250
	}
	rng := rand.New(rand.NewPCG(uint64(p.Seed), uint64(p.Seed)^0x9e3779b97f4a7c15))
	online := NewQNetwork(p.StateDim, p.Hidden, p.ActionDim, rng)
	return &DQN{
		p:       p,
		online:  online,
		target:  online.Clone(),
		opt:     NewAdam(online, p.LearningRate),
		buffer:  NewReplayBuffer(p.BufferCapacity),
		rng:     rng,
		epsilon: p.EpsilonStart,
	}
}

// SelectAction picks a random action with probability epsilon, otherwise
// the action with the highest estimated value.
func (d *DQN) SelectAction(state []float64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rng.Float64() < d.epsilon {
		return d.rng.IntN(d.p.ActionDim)
	}
	return argmax(d.online.Predict(state))
}

// Greedy returns the highest-valued action without exploration.
func (d *DQN) Greedy(state []float64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return argmax(d.online.Predict(state))
}

// QValues returns the online network's estimates for state.
func (d *DQN) QValues(state []float64) []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online.Predict(state)
}

// Store pushes a transition into the replay buffer.
func (d *DQN) Store(t model.Transition) error {
	if len(t.State) != d.p.StateDim || len(t.NextState) != d.p.StateDim {
		return fmt.Errorf("transition state length %d/%d, want %d", len(t.State), len(t.NextState), d.p.StateDim)
	}
	if t.Action < 0 || t.Action >= d.p.ActionDim {
		return fmt.Errorf("transition action %d out of range", t.Action)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffer.Push(t)
	return nil
}

// Update runs one learning step on a uniformly sampled minibatch. It is a
// no-op returning false while the buffer holds fewer than BatchSize entries.
func (d *DQN) Update() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.buffer.Len() < d.p.BatchSize || d.p.BatchSize <= 0 {
		return false
	}
	batch := d.buffer.Sample(d.p.BatchSize, d.rng)
	n := len(batch)

	states := mat.NewDense(n, d.p.StateDim, nil)
	next := mat.NewDense(n, d.p.StateDim, nil)
	for i, t := range batch {
		states.SetRow(i, t.State)
		next.SetRow(i, t.NextState)
	}

	nextQ := d.target.PredictBatch(next)
	acts := d.online.forward(states)
	q := acts[len(acts)-1]

	dOut := mat.NewDense(n, d.p.ActionDim, nil)
	loss := 0.0
	for i, t := range batch {
		maxNext := math.Inf(-1)
		for _, v := range nextQ.RawRowView(i) {
			maxNext = math.Max(maxNext, v)
		}
		notDone := 1.0
		if t.Done {
			notDone = 0
		}
		target := t.Reward + d.p.Gamma*maxNext*notDone
		diff := q.At(i, t.Action) - target
		loss += diff * diff
		dOut.Set(i, t.Action, 2*diff/float64(n))
	}
	d.loss = loss / float64(n)

	d.opt.Step(d.online, d.online.backward(acts, dOut))

	d.epsilon = math.Max(d.p.EpsilonMin, d.epsilon*d.p.EpsilonDecay)
	d.steps++
	if d.steps%d.p.TargetSync == 0 {
		d.target.CopyFrom(d.online)
	}
	return true
}

// Epsilon is the current exploration rate.
func (d *DQN) Epsilon() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.epsilon
}

// ResetEpsilon sets the exploration rate explicitly. Nothing else ever raises it.
func (d *DQN) ResetEpsilon(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.epsilon = v
}

// Steps is the number of learning steps taken.
func (d *DQN) Steps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.steps
}

// Loss is the mean squared TD error of the last learning step.
func (d *DQN) Loss() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loss
}

// BufferLen is the number of stored transitions.
func (d *DQN) BufferLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffer.Len()
}

// BatchSize is the configured minibatch size.
func (d *DQN) BatchSize() int { return d.p.BatchSize }

// WeightsEqual reports whether the online network of d matches o's.
func (d *DQN) WeightsEqual(o *QNetwork) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online.Equal(o)
}

// OnlineSnapshot returns a copy of the online network.
func (d *DQN) OnlineSnapshot() *QNetwork {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online.Clone()
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
