package model

// Action is one of the seven discrete redistribution decisions.
type Action int

const (
	ActionNone Action = iota
	ActionSend1
	ActionSend2
	ActionSend3
	ActionRequest1
	ActionRequest2
	ActionRequest3
)

// NumActions is the size of the action space.
const NumActions = 7

// StateDim is the length of Observation.Vector.
const StateDim = 8

var actionNames = [NumActions]string{
	"do_nothing",
	"send_1", "send_2", "send_3",
	"request_1", "request_2", "request_3",
}

func (a Action) String() string {
	if a < 0 || int(a) >= NumActions {
		return "invalid"
	}
	return actionNames[a]
}

// IsSend reports whether the action moves bikes away from the actor.
func (a Action) IsSend() bool { return a >= ActionSend1 && a <= ActionSend3 }

// IsRequest reports whether the action pulls bikes toward the actor.
func (a Action) IsRequest() bool { return a >= ActionRequest1 && a <= ActionRequest3 }

// Partner returns the zero-based candidate partner index, or -1 for ActionNone.
func (a Action) Partner() int {
	switch {
	case a.IsSend():
		return int(a - ActionSend1)
	case a.IsRequest():
		return int(a - ActionRequest1)
	}
	return -1
}

// Observation is the per-station input to the learned policy.
type Observation struct {
	BikeCount      int
	DemandNextHour float64
	InflowNextHour float64
	DemandHorizon  float64 // outgoing demand summed over the next five hours
	EmptyRatio     float64
	FullRatio      float64
	Hour           int
	PreviousAction Action
	Partners       []string
}

// Vector encodes the observation as the network input.
func (o Observation) Vector() []float64 {
	prev := 0.0
	if o.PreviousAction != ActionNone {
		prev = 1
	}
	return []float64{
		float64(o.BikeCount),
		o.DemandNextHour,
		o.InflowNextHour,
		o.DemandHorizon,
		o.EmptyRatio,
		o.FullRatio,
		float64(o.Hour),
		prev,
	}
}

// Transition is one replay buffer entry.
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Done      bool
}
