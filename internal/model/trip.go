package model

import "time"

// TripRecord is one historical ride as delivered by a trip source.
type TripRecord struct {
	ID          string
	Start       time.Time
	End         time.Time
	Origin      string
	Destination string
}

// EventKind distinguishes organic returns from redistribution moves.
type EventKind string

const (
	KindOrganic        EventKind = "organic"
	KindRedistribution EventKind = "redistribution"
)

// TransitEvent is a pending "bikes arrive at station X at time T".
type TransitEvent struct {
	Destination string
	Origin      string
	Quantity    int
	ArrivalTime time.Time
	Kind        EventKind
}

// MissedTripRecord is a trip that found no bike at its origin.
type MissedTripRecord struct {
	TripID      string
	Start       time.Time
	End         time.Time
	Origin      string
	Destination string
	Day         string
}

// Transfer is a redistribution instruction before clamping.
type Transfer struct {
	From      string
	To        string
	Requester string
	Requested int
}
