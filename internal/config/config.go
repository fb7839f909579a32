package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Window is an hour range [StartHour, EndHour) in simulated time.
type Window struct {
	StartHour  int  `yaml:"start_hour"`
	EndHour    int  `yaml:"end_hour"`
	Once       bool `yaml:"once"`        // fire only on the first tick inside the window
	EveryTicks int  `yaml:"every_ticks"` // otherwise fire every N ticks inside the window
}

// Contains reports whether hour falls inside the window.
func (w Window) Contains(hour int) bool {
	return hour >= w.StartHour && hour < w.EndHour
}

// Capacity shapes the dynamic station capacity.
type Capacity struct {
	Base      int `yaml:"base"`
	BonusCap  int `yaml:"bonus_cap"`
	StaticMax int `yaml:"static_max"`
	// DemandDivisor converts forecast demand over the next three hours into bonus slots.
	DemandDivisor float64 `yaml:"demand_divisor"`
}

// Reward holds the learned-policy reward weights.
type Reward struct {
	Missed        float64 `yaml:"missed"`
	Move          float64 `yaml:"move"`
	Overflow      float64 `yaml:"overflow"`
	Ideal         float64 `yaml:"ideal"`
	ZeroMissBonus float64 `yaml:"zero_miss_bonus"`
}

// Agent holds DQN hyperparameters.
type Agent struct {
	Hidden         int     `yaml:"hidden"`
	BufferCapacity int     `yaml:"buffer_capacity"`
	BatchSize      int     `yaml:"batch_size"`
	LearningRate   float64 `yaml:"learning_rate"`
	Gamma          float64 `yaml:"gamma"`
	TargetSync     int     `yaml:"target_sync"`
	EpsilonStart   float64 `yaml:"epsilon_start"`
	EpsilonMin     float64 `yaml:"epsilon_min"`
	EpsilonDecay   float64 `yaml:"epsilon_decay"`
	OffTickUpdates int     `yaml:"offtick_updates"`
	TransferSize   int     `yaml:"transfer_size"`
	Seed           int64   `yaml:"seed"`
}

// Config holds all application configuration.
type Config struct {
	Simulation struct {
		Days          []string `yaml:"days"`
		Epochs        int      `yaml:"epochs"`
		TicksPerDay   int      `yaml:"ticks_per_day"`
		InitialBikes  int      `yaml:"initial_bikes"`
		CarryOver     bool     `yaml:"carry_over"`
		BusyThreshold int      `yaml:"busy_threshold"`
		IdleThreshold int      `yaml:"underused_threshold"`
		StatusRatio   float64  `yaml:"status_ratio"`
		RecordTicks   bool     `yaml:"record_ticks"`
		CostPerBike   float64  `yaml:"cost_per_bike"`
	} `yaml:"simulation"`
	Capacity Capacity `yaml:"capacity"`
	Policy   struct {
		Kind        string `yaml:"kind"` // none | equal_spread | demand_ranked | learned
		EqualSpread struct {
			Enabled bool   `yaml:"enabled"`
			Window  Window `yaml:"window"`
			Delay   int    `yaml:"delay_minutes"`
		} `yaml:"equal_spread"`
		DemandRanked struct {
			Window     Window `yaml:"window"`
			Delay      int    `yaml:"delay_minutes"`
			K          int    `yaml:"k"`
			DonorFloor int    `yaml:"donor_floor"`
		} `yaml:"demand_ranked"`
		Learned struct {
			Window Window `yaml:"window"`
			Delay  int    `yaml:"delay_minutes"`
		} `yaml:"learned"`
	} `yaml:"policy"`
	Reward Reward `yaml:"reward"`
	Agent  Agent  `yaml:"agent"`
	Data   struct {
		StationsCSV string            `yaml:"stations_csv"`
		TripsCSV    map[string]string `yaml:"trips_csv"` // day -> file
		Synthetic   struct {
			Stations     int     `yaml:"stations"`
			TripsPerHour float64 `yaml:"trips_per_hour"`
			Seed         int64   `yaml:"seed"`
		} `yaml:"synthetic"`
	} `yaml:"data"`
	Checkpoint struct {
		Path string `yaml:"path"`
	} `yaml:"checkpoint"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Schedule struct {
		EpochCron      string `yaml:"epoch_cron"`
		CheckpointCron string `yaml:"checkpoint_cron"`
	} `yaml:"schedule"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Default returns a config with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. Values set in the file win, zeros included.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FLEETSIM_EPOCHS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.Epochs = n
		}
	}
	if v := os.Getenv("FLEETSIM_POLICY"); v != "" {
		cfg.Policy.Kind = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("CHECKPOINT_PATH"); v != "" {
		cfg.Checkpoint.Path = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// ApplyDefaults fills every zero field. Values mirror the calibration of the
// Madrid dataset runs and are meant to be overridden.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Simulation
	if len(s.Days) == 0 {
		s.Days = []string{"2022-05-05", "2022-05-11"}
	}
	if s.Epochs == 0 {
		s.Epochs = 1
	}
	if s.TicksPerDay == 0 {
		s.TicksPerDay = 300
	}
	if s.InitialBikes == 0 {
		s.InitialBikes = 30
	}
	if s.BusyThreshold == 0 {
		s.BusyThreshold = 100
	}
	if s.IdleThreshold == 0 {
		s.IdleThreshold = 5
	}
	if s.StatusRatio == 0 {
		s.StatusRatio = 0.25
	}
	if s.CostPerBike == 0 {
		s.CostPerBike = 1
	}

	c := &cfg.Capacity
	if c.Base == 0 {
		c.Base = 30
	}
	if c.BonusCap == 0 {
		c.BonusCap = 10
	}
	if c.StaticMax == 0 {
		c.StaticMax = 40
	}
	if c.DemandDivisor == 0 {
		c.DemandDivisor = 5
	}

	p := &cfg.Policy
	if p.Kind == "" {
		p.Kind = "learned"
	}
	if p.EqualSpread.Window == (Window{}) {
		p.EqualSpread.Window = Window{StartHour: 3, EndHour: 4, Once: true}
	}
	if p.EqualSpread.Delay == 0 {
		p.EqualSpread.Delay = 60
	}
	if p.DemandRanked.Window == (Window{}) {
		p.DemandRanked.Window = Window{StartHour: 12, EndHour: 13, Once: true}
	}
	if p.DemandRanked.Delay == 0 {
		p.DemandRanked.Delay = 45
	}
	if p.DemandRanked.K == 0 {
		p.DemandRanked.K = 10
	}
	if p.DemandRanked.DonorFloor == 0 {
		p.DemandRanked.DonorFloor = 5
	}
	if p.Learned.Window == (Window{}) {
		p.Learned.Window = Window{StartHour: 12, EndHour: 13, EveryTicks: 5}
	}
	if p.Learned.Delay == 0 {
		p.Learned.Delay = 45
	}

	r := &cfg.Reward
	if r.Missed == 0 {
		r.Missed = 1.0
	}
	if r.Move == 0 {
		r.Move = 0.1
	}
	if r.Overflow == 0 {
		r.Overflow = 0.5
	}
	if r.Ideal == 0 {
		r.Ideal = 0.05
	}
	if r.ZeroMissBonus == 0 {
		r.ZeroMissBonus = 10
	}

	a := &cfg.Agent
	if a.Hidden == 0 {
		a.Hidden = 128
	}
	if a.BufferCapacity == 0 {
		a.BufferCapacity = 50000
	}
	if a.BatchSize == 0 {
		a.BatchSize = 64
	}
	if a.LearningRate == 0 {
		a.LearningRate = 5e-5
	}
	if a.Gamma == 0 {
		a.Gamma = 0.99
	}
	if a.TargetSync == 0 {
		a.TargetSync = 250
	}
	if a.EpsilonStart == 0 {
		a.EpsilonStart = 1.0
	}
	if a.EpsilonMin == 0 {
		a.EpsilonMin = 0.01
	}
	if a.EpsilonDecay == 0 {
		a.EpsilonDecay = 0.9995
	}
	if a.OffTickUpdates == 0 {
		a.OffTickUpdates = 50
	}
	if a.TransferSize == 0 {
		a.TransferSize = 5
	}
	if a.Seed == 0 {
		a.Seed = 42
	}

	if cfg.Data.Synthetic.Stations == 0 {
		cfg.Data.Synthetic.Stations = 40
	}
	if cfg.Data.Synthetic.TripsPerHour == 0 {
		cfg.Data.Synthetic.TripsPerHour = 1.5
	}
	if cfg.Data.Synthetic.Seed == 0 {
		cfg.Data.Synthetic.Seed = 7
	}
	if cfg.Checkpoint.Path == "" {
		cfg.Checkpoint.Path = "checkpoints/dqn_agent.json"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/fleetsim.db"
	}
	if cfg.Schedule.EpochCron == "" {
		cfg.Schedule.EpochCron = "0 */10 * * * *"
	}
	if cfg.Schedule.CheckpointCron == "" {
		cfg.Schedule.CheckpointCron = "0 0 * * * *"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Policy.Kind {
	case "none", "equal_spread", "demand_ranked", "learned":
	default:
		return fmt.Errorf("policy.kind %q is not one of none, equal_spread, demand_ranked, learned", c.Policy.Kind)
	}
	if len(c.Simulation.Days) == 0 {
		return fmt.Errorf("simulation.days must list at least one day")
	}
	if c.Simulation.TicksPerDay <= 0 {
		return fmt.Errorf("simulation.ticks_per_day must be positive")
	}
	if c.Simulation.InitialBikes < 0 {
		return fmt.Errorf("simulation.initial_bikes must not be negative")
	}
	if c.Capacity.Base <= 0 || c.Capacity.StaticMax < c.Capacity.Base {
		return fmt.Errorf("capacity.base must be positive and not above capacity.static_max")
	}
	for name, w := range map[string]Window{
		"equal_spread":  c.Policy.EqualSpread.Window,
		"demand_ranked": c.Policy.DemandRanked.Window,
		"learned":       c.Policy.Learned.Window,
	} {
		if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
			return fmt.Errorf("policy.%s.window must satisfy 0 <= start_hour < end_hour <= 24", name)
		}
	}
	if c.Agent.BatchSize <= 0 || c.Agent.BufferCapacity < c.Agent.BatchSize {
		return fmt.Errorf("agent.buffer_capacity must be at least agent.batch_size")
	}
	if c.Agent.EpsilonMin < 0 || c.Agent.EpsilonMin > c.Agent.EpsilonStart {
		return fmt.Errorf("agent.epsilon_min must be in [0, agent.epsilon_start]")
	}
	if c.Agent.OffTickUpdates < 0 || c.Simulation.CostPerBike < 0 {
		return fmt.Errorf("agent.offtick_updates and simulation.cost_per_bike must not be negative")
	}
	if c.Agent.EpsilonDecay <= 0 || c.Agent.EpsilonDecay > 1 {
		return fmt.Errorf("agent.epsilon_decay must be in (0, 1]")
	}
	return nil
}
