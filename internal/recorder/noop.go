package recorder

import "BikeRebalancer/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordTick(_ *model.TickSnapshot) error         { return nil }
func (n *NoopRecorder) RecordDay(_ *model.DaySummary) error            { return nil }
func (n *NoopRecorder) RecordMissed(_ []model.MissedTripRecord) error { return nil }
func (n *NoopRecorder) Close() error                                  { return nil }
