package scheduler

import (
	"sort"
	"sync"
	"time"
)

// FakeClock 手动推进的时钟
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *FakeClock
	at    time.Time
	delay time.Duration
	fn    func()
	done  bool
}

// NewFakeClock 创建手动时钟
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

// Now 当前时间
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc 登记定时任务
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, at: c.now.Add(d), delay: d, fn: fn}
	c.timers = append(c.timers, timer)
	return timer
}

// Advance 推进时间并同步执行到期任务
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := make([]*fakeTimer, 0)
	for _, timer := range c.timers {
		if !timer.done && !timer.at.After(c.now) {
			timer.done = true
			due = append(due, timer)
		}
	}
	c.compact()
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, timer := range due {
		timer.fn()
	}
}

// Pending 返回尚未触发的任务延迟
func (c *FakeClock) Pending() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	delays := make([]time.Duration, 0, len(c.timers))
	for _, timer := range c.timers {
		if !timer.done {
			delays = append(delays, timer.delay)
		}
	}
	return delays
}

func (c *FakeClock) compact() {
	kept := c.timers[:0]
	for _, timer := range c.timers {
		if !timer.done {
			kept = append(kept, timer)
		}
	}
	c.timers = kept
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}
