// Package policy holds the redistribution strategies and the clamped
// transfer executor they all share.
package policy

import (
	"time"

	"github.com/charmbracelet/log"

	"BikeRebalancer/internal/config"
	"BikeRebalancer/internal/ledger"
	"BikeRebalancer/internal/model"
	"BikeRebalancer/internal/transit"
)

// Demand is the forecast the policies rank stations with.
type Demand interface {
	Outgoing(id string, hour int) float64
	Incoming(id string, hour int) float64
	OutgoingSpan(id string, hour, span int) float64
}

// Context is the read view a policy gets for one tick.
type Context struct {
	Day    string
	Tick   int
	Now    time.Time
	Hour   int
	Ledger *ledger.Ledger
	Demand Demand
}

// Outcome reports what a policy did on one tick.
type Outcome struct {
	Transfers int
	Moved     int
	Decided   bool // the learned policy took decisions and wants a learning step
}

// Policy is one redistribution strategy. Implementations keep per-day state
// (their window gate), so build a fresh one for every simulated day.
type Policy interface {
	Name() string
	Due(tick, hour int) bool
	Run(ctx *Context, exec *Executor) Outcome
}

// Gate decides when a windowed policy fires.
type Gate struct {
	w         config.Window
	fired     bool
	firstTick int
	entered   bool
}

// NewGate returns a gate for w.
func NewGate(w config.Window) *Gate { return &Gate{w: w} }

// Due reports whether the policy fires on tick. Once-windows fire on the
// first tick inside the window; otherwise every EveryTicks ticks from there.
func (g *Gate) Due(tick, hour int) bool {
	if !g.w.Contains(hour) {
		return false
	}
	if !g.entered {
		g.entered = true
		g.firstTick = tick
	}
	if g.w.Once {
		if g.fired {
			return false
		}
		g.fired = true
		return true
	}
	every := g.w.EveryTicks
	if every <= 1 {
		return true
	}
	return (tick-g.firstTick)%every == 0
}

// Executor applies transfers to the live ledger and schedules their arrival.
type Executor struct {
	ledger      *ledger.Ledger
	queue       *transit.Queue
	costPerBike float64
	logger      *log.Logger

	cost  float64
	moved int
}

// NewExecutor creates an executor bound to one day's ledger and queue.
func NewExecutor(l *ledger.Ledger, q *transit.Queue, costPerBike float64, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{ledger: l, queue: q, costPerBike: costPerBike, logger: logger}
}

// Execute moves up to tr.Requested bikes, clamped to the sender's count and
// the receiver's remaining capacity. The shortfall is charged to the
// requester as overflow. Returns the quantity actually moved.
func (e *Executor) Execute(tr model.Transfer, now time.Time, delay time.Duration) int {
	if tr.Requested <= 0 || tr.From == tr.To {
		return 0
	}
	if !e.ledger.Has(tr.From) || !e.ledger.Has(tr.To) {
		e.logger.Warn("transfer references unknown station", "from", tr.From, "to", tr.To)
		return 0
	}

	qty := tr.Requested
	if c := e.ledger.Count(tr.From); qty > c {
		qty = c
	}
	if h := e.ledger.Headroom(tr.To); qty > h {
		qty = h
	}
	if short := tr.Requested - qty; short > 0 && tr.Requester != "" && e.ledger.Has(tr.Requester) {
		e.ledger.AddOverflow(tr.Requester, short)
	}
	if qty == 0 {
		return 0
	}

	if err := e.queue.Schedule(model.TransitEvent{
		Destination: tr.To,
		Origin:      tr.From,
		Quantity:    qty,
		ArrivalTime: now.Add(delay),
		Kind:        model.KindRedistribution,
	}); err != nil {
		e.logger.Error("schedule transfer", "from", tr.From, "to", tr.To, "err", err)
		return 0
	}
	e.ledger.Take(tr.From, qty)
	e.ledger.MarkSent(tr.From, qty)
	e.ledger.Reserve(tr.To, qty)
	e.cost += float64(qty) * e.costPerBike
	e.moved += qty
	return qty
}

// Cost is the accumulated rebalancing cost.
func (e *Executor) Cost() float64 { return e.cost }

// Moved is the number of bikes dispatched so far.
func (e *Executor) Moved() int { return e.moved }

// Minutes converts a configured delay to a duration.
func Minutes(m int) time.Duration { return time.Duration(m) * time.Minute }
