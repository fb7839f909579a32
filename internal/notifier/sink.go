package notifier

import (
	"context"

	"github.com/charmbracelet/log"

	"BikeRebalancer/internal/model"
)

// SummarySender delivers a finished day's report.
type SummarySender interface {
	SendSummary(ctx context.Context, sum *model.DaySummary) error
}

// Sink is a reporting sink that pushes each day summary to a chat. Tick
// snapshots and missed trips are not forwarded.
type Sink struct {
	ctx    context.Context
	sender SummarySender
}

func NewSink(ctx context.Context, sender SummarySender) *Sink {
	return &Sink{ctx: ctx, sender: sender}
}

func (s *Sink) RecordTick(*model.TickSnapshot) error         { return nil }
func (s *Sink) RecordMissed([]model.MissedTripRecord) error { return nil }
func (s *Sink) Close() error                                { return nil }

func (s *Sink) RecordDay(sum *model.DaySummary) error {
	if err := s.sender.SendSummary(s.ctx, sum); err != nil {
		log.Error("push day summary", "day", sum.Day, "err", err)
		return err
	}
	return nil
}
