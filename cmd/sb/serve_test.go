package main

import (
	"context"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/bus"
)

func TestNextCronDuration(t *testing.T) {
	d := nextCronDuration("30 3 * * *")
	if d <= 0 {
		t.Errorf("duration = %v, want > 0", d)
	}
	if d > 24*time.Hour {
		t.Errorf("duration = %v, want within a day", d)
	}

	if d := nextCronDuration("not a cron expr"); d != 0 {
		t.Errorf("invalid expr duration = %v, want 0", d)
	}
	// 6-field expressions are not accepted; schedules are 5-field.
	if d := nextCronDuration("0 30 3 * * *"); d != 0 {
		t.Errorf("6-field expr duration = %v, want 0", d)
	}
}

type fakePruner struct {
	calls int
}

func (f *fakePruner) Prune(maxAge time.Duration) (bus.PruneResult, error) {
	f.calls++
	return bus.PruneResult{}, nil
}

func TestRunRetentionLoop_InvalidScheduleStops(t *testing.T) {
	p := &fakePruner{}
	done := make(chan struct{})
	go func() {
		runRetentionLoop(context.Background(), p, "bogus", time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention loop did not stop on invalid schedule")
	}
	if p.calls != 0 {
		t.Errorf("prune calls = %d, want 0", p.calls)
	}
}

func TestRunRetentionLoop_CancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runRetentionLoop(ctx, &fakePruner{}, "30 3 * * *", time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention loop did not stop on cancel")
	}
}

func TestServeCmd_Flags(t *testing.T) {
	cmd := newServeCmd()
	for _, name := range []string{"config", "socket", "dashboard"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag", name)
		}
	}
}
