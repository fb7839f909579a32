package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"

	"BikeRebalancer/internal/model"
)

type fakeRunner struct {
	epochs  int
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRunner) RunEpoch(context.Context) ([]*model.DaySummary, error) {
	if f.started != nil {
		close(f.started)
		<-f.block
	}
	f.epochs++
	return []*model.DaySummary{{Day: "2022-05-05", Completed: 10}}, nil
}

func (f *fakeRunner) Epochs() int { return f.epochs }

type fakeAgent struct {
	mu    sync.Mutex
	saves []string
}

func (a *fakeAgent) Save(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saves = append(a.saves, path)
	return nil
}

func TestRunEpochNow_ReportsDays(t *testing.T) {
	r := &fakeRunner{}
	s := NewScheduler(context.Background(), r, nil, "")
	var rows []int
	s.OnDay = func(epoch int, sum *model.DaySummary) { rows = append(rows, epoch) }

	if !s.RunEpochNow() || !s.RunEpochNow() {
		t.Fatal("epochs should run when idle")
	}
	if len(rows) != 2 || rows[1] != 2 {
		t.Errorf("unexpected epoch callbacks %v", rows)
	}
	if got := s.HandleCommand("/status"); !strings.Contains(got, "Epochs run: 2") || !strings.Contains(got, "2022-05-05") {
		t.Errorf("unexpected status %q", got)
	}
}

func TestEpochs_DoNotOverlap(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{}), started: make(chan struct{})}
	s := NewScheduler(context.Background(), r, nil, "")

	done := make(chan bool)
	go func() { done <- s.RunEpochNow() }()
	<-r.started
	if s.RunEpochNow() {
		t.Error("second epoch must be skipped while the first runs")
	}
	close(r.block)
	if !<-done {
		t.Error("first epoch should have run")
	}
}

func TestRegisterAll(t *testing.T) {
	a := &fakeAgent{}
	s := NewScheduler(context.Background(), &fakeRunner{}, a, "ckpt.json")
	if err := s.RegisterAll("0 */10 * * * *", "0 0 * * * *"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if n := len(s.Cron.Entries()); n != 2 {
		t.Errorf("expected 2 cron entries, got %d", n)
	}
	if err := s.RegisterAll("not a cron", "0 0 * * * *"); err == nil {
		t.Error("expected error for a bad spec")
	}

	if got := s.HandleCommand("/checkpoint"); got != "Checkpoint saved" || len(a.saves) != 1 || a.saves[0] != "ckpt.json" {
		t.Errorf("unexpected checkpoint reply %q saves=%v", got, a.saves)
	}

	static := NewScheduler(context.Background(), &fakeRunner{}, nil, "")
	_ = static.RegisterAll("0 */10 * * * *", "0 0 * * * *")
	if n := len(static.Cron.Entries()); n != 1 {
		t.Errorf("static policies need no checkpoint task, got %d entries", n)
	}
}

func TestStatus_ServedWhileEpochsRun(t *testing.T) {
	r := &fakeRunner{}
	s := NewScheduler(context.Background(), r, nil, "")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			s.RunEpochNow()
		}
	}()
	for i := 0; i < 200; i++ {
		if got := s.HandleCommand("/status"); !strings.Contains(got, "Epochs run") {
			t.Fatalf("unexpected status %q", got)
		}
	}
	wg.Wait()

	if n, latest := s.Latest(); n != 5 || len(latest) != 1 {
		t.Errorf("expected 5 epochs with one day, got %d and %d", n, len(latest))
	}
}
