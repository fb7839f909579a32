package engine

import (
	"github.com/charmbracelet/log"

	"BikeRebalancer/internal/agent"
	"BikeRebalancer/internal/config"
	"BikeRebalancer/internal/policy"
)

// PolicyName labels a run in summaries: the midday policy, prefixed with the
// early equal-spread pass when it is enabled alongside.
func PolicyName(cfg *config.Config) string {
	kind := cfg.Policy.Kind
	if cfg.Policy.EqualSpread.Enabled && kind != "equal_spread" {
		if kind == "none" {
			return "equal_spread"
		}
		return "equal_spread+" + kind
	}
	return kind
}

// buildPolicies returns a fresh policy set for one day, in the order they run
// within a tick, plus the learned policy when it is among them.
func buildPolicies(cfg *config.Config, trainer Trainer, logger *log.Logger) ([]policy.Policy, *policy.Learned) {
	p := cfg.Policy
	var out []policy.Policy
	if p.EqualSpread.Enabled || p.Kind == "equal_spread" {
		out = append(out, policy.NewEqualSpread(p.EqualSpread.Window, p.EqualSpread.Delay))
	}

	var learned *policy.Learned
	switch p.Kind {
	case "demand_ranked":
		out = append(out, policy.NewDemandRanked(p.DemandRanked.Window, p.DemandRanked.Delay, p.DemandRanked.K, p.DemandRanked.DonorFloor))
	case "learned":
		learned = policy.NewLearned(trainer, policy.LearnedOptions{
			Window:       p.Learned.Window,
			DelayMinutes: p.Learned.Delay,
			TransferSize: cfg.Agent.TransferSize,
			Weights: agent.Weights{
				Missed:   cfg.Reward.Missed,
				Move:     cfg.Reward.Move,
				Overflow: cfg.Reward.Overflow,
				Ideal:    cfg.Reward.Ideal,
			},
			ZeroMissBonus: cfg.Reward.ZeroMissBonus,
		}, logger)
		out = append(out, learned)
	}
	return out, learned
}
