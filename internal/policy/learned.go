package policy

import (
	"time"

	"github.com/charmbracelet/log"

	"BikeRebalancer/internal/agent"
	"BikeRebalancer/internal/config"
	"BikeRebalancer/internal/model"
)

// MaxPartners is the number of candidate partners offered to each station.
const MaxPartners = 3

// Learned lets every station choose among the seven redistribution actions
// through the shared agent.
type Learned struct {
	gate         *Gate
	delay        time.Duration
	learner      agent.Learner
	weights      agent.Weights
	bonus        float64
	transferSize int
	logger       *log.Logger

	agents map[string]*agent.StationAgent
}

// LearnedOptions groups the learned policy's tunables.
type LearnedOptions struct {
	Window        config.Window
	DelayMinutes  int
	TransferSize  int
	Weights       agent.Weights
	ZeroMissBonus float64
}

// NewLearned builds a learned policy backed by learner.
func NewLearned(learner agent.Learner, opt LearnedOptions, logger *log.Logger) *Learned {
	if opt.TransferSize <= 0 {
		opt.TransferSize = 5
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Learned{
		gate:         NewGate(opt.Window),
		delay:        Minutes(opt.DelayMinutes),
		learner:      learner,
		weights:      opt.Weights,
		bonus:        opt.ZeroMissBonus,
		transferSize: opt.TransferSize,
		logger:       logger,
		agents:       make(map[string]*agent.StationAgent),
	}
}

func (p *Learned) Name() string             { return "learned" }
func (p *Learned) Due(tick, hour int) bool { return p.gate.Due(tick, hour) }

func (p *Learned) station(id string) *agent.StationAgent {
	sa, ok := p.agents[id]
	if !ok {
		sa = agent.NewStationAgent(id, p.learner)
		p.agents[id] = sa
	}
	return sa
}

// Observe builds the observation of station id on the current tick.
func Observe(ctx *Context, id string) model.Observation {
	st, _ := ctx.Ledger.Station(id)
	return model.Observation{
		BikeCount:      st.BikeCount,
		DemandNextHour: ctx.Demand.Outgoing(id, ctx.Hour),
		InflowNextHour: ctx.Demand.Incoming(id, ctx.Hour),
		DemandHorizon:  ctx.Demand.OutgoingSpan(id, ctx.Hour, 5),
		EmptyRatio:     st.EmptyRatio(),
		FullRatio:      st.FullRatio(),
		Hour:           ctx.Hour,
		PreviousAction: st.PreviousAction,
		Partners:       Partners(ctx, id),
	}
}

// Partners ranks up to three redistribution targets for id. A station above
// its ideal level is offered the neediest stations; otherwise the ones with
// the most slack.
func Partners(ctx *Context, id string) []string {
	l := ctx.Ledger
	ranked := Rank(ctx)
	surplus := float64(l.Count(id)) > l.DynamicIdeal(id, ctx.Hour)
	if surplus {
		reversed := make([]string, len(ranked))
		for i, s := range ranked {
			reversed[len(ranked)-1-i] = s
		}
		ranked = reversed
	}
	out := make([]string, 0, MaxPartners)
	for _, cand := range ranked {
		if cand == id {
			continue
		}
		out = append(out, cand)
		if len(out) == MaxPartners {
			break
		}
	}
	return out
}

// Run closes each station's previous decision with its reward, then lets it
// act again. Stations are visited in id order against the live ledger.
func (p *Learned) Run(ctx *Context, exec *Executor) Outcome {
	l := ctx.Ledger
	out := Outcome{Decided: true}
	for _, id := range l.IDs() {
		obs := Observe(ctx, id)
		sa := p.station(id)
		if sa.Pending() {
			st, _ := l.Station(id)
			r := agent.Reward(st, l.DynamicIdeal(id, ctx.Hour), p.weights)
			if err := sa.Record(r, obs, false); err != nil {
				p.logger.Error("store transition", "station", id, "err", err)
			}
		}
		l.ResetWindow(id)

		act := sa.Act(obs)
		l.SetPreviousAction(id, act)
		k := act.Partner()
		if k < 0 {
			continue
		}
		if k >= len(obs.Partners) {
			// No such partner: the whole request goes unserved.
			l.AddOverflow(id, p.transferSize)
			continue
		}
		tr := p.transfer(id, act, obs.Partners[k])
		if moved := exec.Execute(tr, ctx.Now, p.delay); moved > 0 {
			out.Transfers++
			out.Moved += moved
		}
	}
	return out
}

func (p *Learned) transfer(id string, act model.Action, partner string) model.Transfer {
	tr := model.Transfer{Requester: id, Requested: p.transferSize}
	if act.IsSend() {
		tr.From, tr.To = id, partner
	} else {
		tr.From, tr.To = partner, id
	}
	return tr
}

// Finish stores terminal transitions for every open trajectory and injects
// the zero-miss bonus. Returns the number of transitions stored.
func (p *Learned) Finish(ctx *Context) int {
	l := ctx.Ledger
	stored := 0
	for _, id := range l.IDs() {
		sa, ok := p.agents[id]
		if !ok {
			continue
		}
		st, _ := l.Station(id)
		obs := Observe(ctx, id)
		if sa.Pending() {
			r := agent.Reward(st, l.DynamicIdeal(id, ctx.Hour), p.weights)
			if err := sa.Record(r, obs, true); err != nil {
				p.logger.Error("store terminal transition", "station", id, "err", err)
			} else {
				stored++
			}
		}
		if st.MissedTrips == 0 {
			if err := sa.Bonus(obs, p.bonus); err != nil {
				p.logger.Error("store zero-miss bonus", "station", id, "err", err)
			} else {
				stored++
			}
		}
	}
	return stored
}
