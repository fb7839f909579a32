package transit

import (
	"testing"
	"time"

	"BikeRebalancer/internal/model"
)

var base = time.Date(2022, 5, 5, 0, 0, 0, 0, time.UTC)

func TestDrainDue_OrderAndBoundary(t *testing.T) {
	q := New()
	mustSchedule(t, q, model.TransitEvent{Destination: "C", Quantity: 1, ArrivalTime: base.Add(30 * time.Minute)})
	mustSchedule(t, q, model.TransitEvent{Destination: "A", Quantity: 2, ArrivalTime: base.Add(10 * time.Minute)})
	mustSchedule(t, q, model.TransitEvent{Destination: "B", Quantity: 3, ArrivalTime: base.Add(10 * time.Minute)})

	if q.InTransit() != 6 {
		t.Fatalf("expected 6 bikes in transit, got %d", q.InTransit())
	}

	due := q.DrainDue(base.Add(10 * time.Minute))
	if len(due) != 2 {
		t.Fatalf("expected 2 due events, got %d", len(due))
	}
	if due[0].Destination != "A" || due[1].Destination != "B" {
		t.Errorf("ties should keep insertion order, got %s then %s", due[0].Destination, due[1].Destination)
	}
	if q.Len() != 1 || q.InTransit() != 1 {
		t.Errorf("expected one event with one bike left, got len=%d bikes=%d", q.Len(), q.InTransit())
	}
	if next, ok := q.Peek(); !ok || next.Destination != "C" {
		t.Errorf("expected C to be next, got %+v", next)
	}
	if got := q.DrainDue(base); len(got) != 0 {
		t.Errorf("nothing should be due at the start, got %d", len(got))
	}
}

func TestSchedule_RejectsEmpty(t *testing.T) {
	q := New()
	if err := q.Schedule(model.TransitEvent{Destination: "A", Quantity: 0}); err != ErrEmptyEvent {
		t.Fatalf("expected ErrEmptyEvent, got %v", err)
	}
	if q.Len() != 0 {
		t.Error("rejected event must not be queued")
	}
}

func TestPending_DoesNotConsume(t *testing.T) {
	q := New()
	mustSchedule(t, q, model.TransitEvent{Destination: "B", Quantity: 1, ArrivalTime: base.Add(2 * time.Hour)})
	mustSchedule(t, q, model.TransitEvent{Destination: "A", Quantity: 1, ArrivalTime: base.Add(time.Hour)})
	p := q.Pending()
	if len(p) != 2 || p[0].Destination != "A" {
		t.Fatalf("unexpected pending list %+v", p)
	}
	if q.Len() != 2 {
		t.Error("Pending must not drain the queue")
	}
}

func mustSchedule(t *testing.T, q *Queue, ev model.TransitEvent) {
	t.Helper()
	if err := q.Schedule(ev); err != nil {
		t.Fatalf("schedule: %v", err)
	}
}
