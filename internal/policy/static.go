package policy

import (
	"sort"
	"time"

	"BikeRebalancer/internal/config"
	"BikeRebalancer/internal/model"
)

// EqualSpread moves bikes from stations above the fleet mean to stations below it.
type EqualSpread struct {
	gate  *Gate
	delay time.Duration
}

// NewEqualSpread builds the early-morning equal-spread pass.
func NewEqualSpread(w config.Window, delayMinutes int) *EqualSpread {
	return &EqualSpread{gate: NewGate(w), delay: Minutes(delayMinutes)}
}

func (p *EqualSpread) Name() string             { return "equal_spread" }
func (p *EqualSpread) Due(tick, hour int) bool { return p.gate.Due(tick, hour) }

// Run pairs donors and receivers greedily in station id order.
func (p *EqualSpread) Run(ctx *Context, exec *Executor) Outcome {
	l := ctx.Ledger
	ids := l.IDs()
	if len(ids) == 0 {
		return Outcome{}
	}
	target := l.TotalBikes() / len(ids)

	type need struct {
		id  string
		qty int
	}
	var donors, receivers []need
	for _, id := range ids {
		c := l.Count(id)
		switch {
		case c > target:
			donors = append(donors, need{id, c - target})
		case c < target:
			receivers = append(receivers, need{id, target - c})
		}
	}

	var out Outcome
	i, j := 0, 0
	for i < len(donors) && j < len(receivers) {
		qty := min(donors[i].qty, receivers[j].qty)
		moved := exec.Execute(model.Transfer{
			From:      donors[i].id,
			To:        receivers[j].id,
			Requester: donors[i].id,
			Requested: qty,
		}, ctx.Now, p.delay)
		if moved > 0 {
			out.Transfers++
			out.Moved += moved
		}
		donors[i].qty -= qty
		receivers[j].qty -= qty
		if donors[i].qty == 0 {
			i++
		}
		if receivers[j].qty == 0 {
			j++
		}
	}
	return out
}

// DemandRanked pairs the stations with the most slack against forecast
// demand with the stations that are furthest short of it.
type DemandRanked struct {
	gate       *Gate
	delay      time.Duration
	k          int
	donorFloor int
}

// NewDemandRanked builds the midday demand-ranked pass.
func NewDemandRanked(w config.Window, delayMinutes, k, donorFloor int) *DemandRanked {
	return &DemandRanked{gate: NewGate(w), delay: Minutes(delayMinutes), k: k, donorFloor: donorFloor}
}

func (p *DemandRanked) Name() string             { return "demand_ranked" }
func (p *DemandRanked) Due(tick, hour int) bool { return p.gate.Due(tick, hour) }

// Rank returns station ids ordered by demand(hour) - count, ascending, ties by id.
func Rank(ctx *Context) []string {
	l := ctx.Ledger
	ids := append([]string(nil), l.IDs()...)
	score := make(map[string]float64, len(ids))
	for _, id := range ids {
		score[id] = ctx.Demand.Outgoing(id, ctx.Hour) - float64(l.Count(id))
	}
	sort.SliceStable(ids, func(a, b int) bool {
		if score[ids[a]] == score[ids[b]] {
			return ids[a] < ids[b]
		}
		return score[ids[a]] < score[ids[b]]
	})
	return ids
}

// Run moves min(donor surplus above floor, receiver shortfall below its
// ideal level) between the i-th donor and the i-th receiver.
func (p *DemandRanked) Run(ctx *Context, exec *Executor) Outcome {
	l := ctx.Ledger
	ranked := Rank(ctx)
	k := min(p.k, len(ranked)/2)

	var out Outcome
	for i := 0; i < k; i++ {
		donor := ranked[i]
		receiver := ranked[len(ranked)-1-i]

		surplus := l.Count(donor) - p.donorFloor
		receiverSt, _ := l.Station(receiver)
		ceiling := min(int(l.DynamicIdeal(receiver, ctx.Hour)), receiverSt.Capacity)
		deficit := ceiling - receiverSt.BikeCount
		qty := min(surplus, deficit)
		if qty <= 0 {
			continue
		}
		moved := exec.Execute(model.Transfer{
			From:      donor,
			To:        receiver,
			Requester: receiver,
			Requested: qty,
		}, ctx.Now, p.delay)
		if moved > 0 {
			out.Transfers++
			out.Moved += moved
		}
	}
	return out
}
