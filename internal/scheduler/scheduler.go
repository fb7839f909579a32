package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"BikeRebalancer/internal/model"
	"BikeRebalancer/internal/notifier"
)

// EpochRunner simulates one epoch of the configured days.
type EpochRunner interface {
	RunEpoch(ctx context.Context) ([]*model.DaySummary, error)
	Epochs() int
}

// Checkpointer persists the learning agent.
type Checkpointer interface {
	Save(path string) error
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron           *cron.Cron
	Runner         EpochRunner
	Agent          Checkpointer // nil for the static policies
	CheckpointPath string
	OnDay          func(epoch int, sum *model.DaySummary)
	Ctx            context.Context

	mu     sync.Mutex // held for the duration of an epoch
	statMu sync.Mutex
	latest []*model.DaySummary
	epochs int
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, runner EpochRunner, agent Checkpointer, checkpointPath string) *Scheduler {
	return &Scheduler{
		Cron:           cron.New(cron.WithSeconds()),
		Runner:         runner,
		Agent:          agent,
		CheckpointPath: checkpointPath,
		Ctx:            ctx,
	}
}

// RegisterAll registers the epoch task and, when an agent is present, the
// checkpoint task.
func (s *Scheduler) RegisterAll(epochCron, checkpointCron string) error {
	if _, err := s.Cron.AddFunc(epochCron, s.epochTask); err != nil {
		return fmt.Errorf("register epoch task: %w", err)
	}
	if s.Agent == nil {
		return nil
	}
	if _, err := s.Cron.AddFunc(checkpointCron, s.checkpointTask); err != nil {
		return fmt.Errorf("register checkpoint task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info("scheduler started")
}

// Stop stops the cron scheduler, waits for a running epoch and saves a
// final checkpoint.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpointTask()
	log.Info("scheduler stopped")
}

// RunEpochNow executes one epoch immediately (for RUN_ON_START).
// Returns false when another epoch is still running.
func (s *Scheduler) RunEpochNow() bool {
	return s.epoch()
}

func (s *Scheduler) epochTask() { s.epoch() }

func (s *Scheduler) epoch() bool {
	if !s.mu.TryLock() {
		log.Warn("previous epoch still running, skipping")
		return false
	}
	defer s.mu.Unlock()

	log.Info("running epoch", "epoch", s.Runner.Epochs()+1)
	sums, err := s.Runner.RunEpoch(s.Ctx)
	if err != nil {
		log.Error("epoch failed", "err", err)
		return true
	}
	n := s.Runner.Epochs()
	s.statMu.Lock()
	s.latest = sums
	s.epochs = n
	s.statMu.Unlock()
	if s.OnDay != nil {
		for _, sum := range sums {
			s.OnDay(n, sum)
		}
	}
	return true
}

func (s *Scheduler) checkpointTask() {
	if s.Agent == nil || s.CheckpointPath == "" {
		return
	}
	if err := s.Agent.Save(s.CheckpointPath); err != nil {
		log.Error("save checkpoint", "path", s.CheckpointPath, "err", err)
		return
	}
	log.Info("checkpoint saved", "path", s.CheckpointPath)
}

// Latest returns the number of finished epochs and the summaries of the
// most recent one.
func (s *Scheduler) Latest() (int, []*model.DaySummary) {
	s.statMu.Lock()
	defer s.statMu.Unlock()
	return s.epochs, s.latest
}

// HandleCommand answers chat commands.
func (s *Scheduler) HandleCommand(cmd string) string {
	switch cmd {
	case "/status":
		return notifier.FormatStatus(s.Latest())
	case "/checkpoint":
		if s.Agent == nil {
			return "No learning agent configured"
		}
		s.checkpointTask()
		return "Checkpoint saved"
	}
	return ""
}
