package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerStartIsIdempotentWhileArmed(t *testing.T) {
	clock := NewFakeClock(time.Unix(1_700_000_000, 0))
	timer := NewTimer("refresh", clock)
	var fired int32

	if !timer.Start(10*time.Second, func() { atomic.AddInt32(&fired, 1) }) {
		t.Fatalf("first start should arm timer")
	}
	if timer.Start(time.Second, func() { atomic.AddInt32(&fired, 100) }) {
		t.Fatalf("second start should be a no-op")
	}
	if got := clock.Pending(); len(got) != 1 || got[0] != 10*time.Second {
		t.Fatalf("unexpected pending timers: %v", got)
	}

	clock.Advance(5 * time.Second)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("timer fired early")
	}
	clock.Advance(5 * time.Second)
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatalf("expected timer to fire once, got %d", fired)
	}
	if timer.IsRunning() {
		t.Fatalf("timer should be idle after firing")
	}
	if !timer.Start(time.Second, func() {}) {
		t.Fatalf("timer should be re-armable after firing")
	}
}

func TestTimerStopCancelsPending(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	timer := NewTimer("retry", clock)
	var fired int32
	timer.Start(5*time.Second, func() { atomic.AddInt32(&fired, 1) })
	timer.Stop()
	if timer.IsRunning() {
		t.Fatalf("timer should not run after stop")
	}
	clock.Advance(10 * time.Second)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("stopped timer should not fire")
	}
}

func TestRandomDelayWithinBounds(t *testing.T) {
	max := 300 * time.Second
	for i := 0; i < 1000; i++ {
		d := RandomDelay(max)
		if d < 0 || d >= max {
			t.Fatalf("delay out of range: %v", d)
		}
	}
	if RandomDelay(0) != 0 {
		t.Fatalf("zero max should yield zero delay")
	}
}

func TestSchedulerShutdownWaitsAndRejects(t *testing.T) {
	s := New(NewFakeClock(time.Unix(0, 0)))
	release := make(chan struct{})
	var finished int32
	s.Go("slow", func(ctx context.Context) {
		<-release
		atomic.StoreInt32(&finished, 1)
	})

	timer := s.NewTimer("refresh")
	timer.Start(time.Minute, func() {})

	done := make(chan error, 1)
	go func() { done <- s.Shutdown(context.Background()) }()
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if atomic.LoadInt32(&finished) != 1 {
		t.Fatalf("shutdown should wait for running tasks")
	}
	if timer.IsRunning() {
		t.Fatalf("shutdown should stop timers")
	}
	if s.Go("late", func(context.Context) {}) {
		t.Fatalf("closed scheduler should reject new tasks")
	}
}

func TestSchedulerTimerRunsAsTrackedTask(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	s := New(clock)
	timer := s.NewTimer("retry")
	var fired int32
	timer.Start(5*time.Second, func() { atomic.AddInt32(&fired, 1) })
	clock.Advance(5 * time.Second)
	s.Wait()
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatalf("expected timer callback to run, got %d", fired)
	}
}
