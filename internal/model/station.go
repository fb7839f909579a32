package model

// StationInfo is the static catalog entry for a station.
type StationInfo struct {
	ID           string
	Name         string
	Lat          float64
	Lon          float64
	InitialBikes *int // nil means use the configured default
}

// Station holds the mutable inventory and accounting state of one station
// for a single simulated day.
type Station struct {
	ID        string
	BikeCount int
	Capacity  int

	CompletedTrips  int
	MissedTrips     int
	WasEmptyTicks   int
	WasFullTicks    int
	HealthyTicks    int
	AvailabilitySum float64

	// Window counters, reset after every agent decision.
	SentBikes        int
	ReceivedBikes    int
	WindowMissed     int
	OverflowAttempts int

	// Current tick only.
	TickSent     int
	TickReceived int
	JustMissed   bool

	PreviousAction Action
	PendingInbound int // redistribution bikes scheduled toward this station
}

// SampledTicks returns how many ticks have been sampled so far.
func (s *Station) SampledTicks() int {
	return s.WasEmptyTicks + s.WasFullTicks + s.HealthyTicks
}

// EmptyRatio is the share of sampled ticks the station had no bikes.
func (s *Station) EmptyRatio() float64 {
	n := s.SampledTicks()
	if n == 0 {
		return 0
	}
	return float64(s.WasEmptyTicks) / float64(n)
}

// FullRatio is the share of sampled ticks the station was at capacity.
func (s *Station) FullRatio() float64 {
	n := s.SampledTicks()
	if n == 0 {
		return 0
	}
	return float64(s.WasFullTicks) / float64(n)
}

// AvgAvailability is the mean percent-full over sampled ticks.
func (s *Station) AvgAvailability() float64 {
	n := s.SampledTicks()
	if n == 0 {
		return 0
	}
	return s.AvailabilitySum / float64(n)
}

// Activity counts trip requests that originated at the station.
func (s *Station) Activity() int {
	return s.CompletedTrips + s.MissedTrips
}

// StationStatus classifies a station at the end of a day.
type StationStatus string

const (
	StatusBusy        StationStatus = "busy"
	StatusUnderused   StationStatus = "underused"
	StatusAlwaysEmpty StationStatus = "always_empty"
	StatusAlwaysFull  StationStatus = "always_full"
	StatusBalanced    StationStatus = "balanced"
)

// Band is the display colour bucket for a bike count.
func Band(count int) string {
	switch {
	case count == 0:
		return "red"
	case count <= 15:
		return "orange"
	case count <= 30:
		return "green"
	default:
		return "blue"
	}
}
