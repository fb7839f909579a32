package agent

import (
	"math"

	"BikeRebalancer/internal/model"
)

// StationAgent is the per-station trajectory holder around a shared Learner.
type StationAgent struct {
	ID string

	learner    Learner
	lastState  []float64
	lastAction int
	pending    bool
}

// NewStationAgent wraps l for station id.
func NewStationAgent(id string, l Learner) *StationAgent {
	return &StationAgent{ID: id, learner: l}
}

// Act chooses an action for obs and remembers it for the next Record.
func (s *StationAgent) Act(obs model.Observation) model.Action {
	state := obs.Vector()
	a := s.learner.SelectAction(state)
	s.lastState = state
	s.lastAction = a
	s.pending = true
	return model.Action(a)
}

// Pending reports whether an action is awaiting its reward.
func (s *StationAgent) Pending() bool { return s.pending }

// LastAction returns the action awaiting its reward.
func (s *StationAgent) LastAction() model.Action { return model.Action(s.lastAction) }

// Record stores the transition from the last action into next. Terminal
// transitions close the trajectory. Without a pending action it does nothing.
func (s *StationAgent) Record(reward float64, next model.Observation, done bool) error {
	if !s.pending {
		return nil
	}
	err := s.learner.Store(model.Transition{
		State:     s.lastState,
		Action:    s.lastAction,
		Reward:    reward,
		NextState: next.Vector(),
		Done:      done,
	})
	if done {
		s.pending = false
	}
	return err
}

// Bonus injects a terminal transition carrying reward for the final state.
func (s *StationAgent) Bonus(final model.Observation, reward float64) error {
	state := final.Vector()
	return s.learner.Store(model.Transition{
		State:     state,
		Action:    s.lastAction,
		Reward:    reward,
		NextState: state,
		Done:      true,
	})
}

// Weights are the reward coefficients.
type Weights struct {
	Missed   float64
	Move     float64
	Overflow float64
	Ideal    float64
}

// Reward scores a station's window:
// -missed·m - move·(sent+received) - overflow·o - ideal·|count - ideal level|.
func Reward(st model.Station, idealLevel float64, w Weights) float64 {
	return -w.Missed*float64(st.WindowMissed) -
		w.Move*float64(st.SentBikes+st.ReceivedBikes) -
		w.Overflow*float64(st.OverflowAttempts) -
		w.Ideal*math.Abs(float64(st.BikeCount)-idealLevel)
}
