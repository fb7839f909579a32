package model

import "time"

// StationSnapshot is the per-station part of a tick snapshot.
type StationSnapshot struct {
	ID         string `json:"id"`
	BikeCount  int    `json:"bike_count"`
	Capacity   int    `json:"capacity"`
	JustMissed bool   `json:"just_missed"`
	Sent       int    `json:"sent"`
	Received   int    `json:"received"`
	Band       string `json:"band"`
}

// TickSnapshot is emitted to the reporting sink after every applied tick.
type TickSnapshot struct {
	Day       string            `json:"day"`
	Tick      int               `json:"tick"`
	Time      time.Time         `json:"time"`
	Stations  []StationSnapshot `json:"stations"`
	InTransit int               `json:"in_transit"`
	Completed int               `json:"completed"`
	Missed    int               `json:"missed"`
}

// DaySummary is emitted once when a day finalizes.
type DaySummary struct {
	RunID           string                   `json:"run_id"`
	Day             string                   `json:"day"`
	Policy          string                   `json:"policy"`
	Completed       int                      `json:"completed"`
	Missed          int                      `json:"missed"`
	CompletionRate  float64                  `json:"completion_rate"`
	AvgAvailability float64                  `json:"avg_availability"`
	RebalancingCost float64                  `json:"rebalancing_cost"`
	BikesMoved      int                      `json:"bikes_moved"`
	Epsilon         float64                  `json:"epsilon"`
	Statuses        map[string]StationStatus `json:"statuses"`
	FinalCounts     map[string]int           `json:"final_counts"`
	FinishedAt      time.Time                `json:"finished_at"`
}

// StatusCounts tallies stations per status.
func (d *DaySummary) StatusCounts() map[StationStatus]int {
	out := make(map[StationStatus]int)
	for _, st := range d.Statuses {
		out[st]++
	}
	return out
}
