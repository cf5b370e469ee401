package scheduler

import (
	"sync"
	"time"
)

// Timer 单次定时器，已布置时重复 Start 不生效
type Timer struct {
	name   string
	clock  Clock
	run    func(name string, fn func())
	mu     sync.Mutex
	seq    uint64
	active Stopper
}

// NewTimer 创建独立定时器，回调在时钟协程中直接执行
func NewTimer(name string, clock Clock) *Timer {
	if clock == nil {
		clock = SystemClock()
	}
	return &Timer{name: name, clock: clock}
}

// Name 定时器名称
func (t *Timer) Name() string {
	return t.name
}

// Start 布置定时器，已有待触发任务时返回 false
func (t *Timer) Start(d time.Duration, fn func()) bool {
	if d < 0 {
		d = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil {
		return false
	}
	t.seq++
	seq := t.seq
	t.active = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if t.seq != seq || t.active == nil {
			t.mu.Unlock()
			return
		}
		t.active = nil
		t.mu.Unlock()
		if t.run != nil {
			t.run(t.name, fn)
			return
		}
		fn()
	})
	return true
}

// Stop 取消待触发任务
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return
	}
	t.active.Stop()
	t.active = nil
	t.seq++
}

// IsRunning 是否存在待触发任务
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active != nil
}
