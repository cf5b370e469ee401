package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rewards-ledger/internal/logger"
)

// ErrClosed 调度器已关闭
var ErrClosed = errors.New("scheduler closed")

// Scheduler 管理定时器与后台任务的生命周期
type Scheduler struct {
	clock  Clock
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	timers []*Timer
}

// New 创建调度器
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{clock: clock, ctx: ctx, cancel: cancel}
}

// Clock 返回调度器时钟
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Context 后台任务的基础上下文，Shutdown 后被取消
func (s *Scheduler) Context() context.Context {
	return s.ctx
}

// NewTimer 创建受调度器管理的定时器，回调作为后台任务执行
func (s *Scheduler) NewTimer(name string) *Timer {
	timer := NewTimer(name, s.clock)
	timer.run = func(name string, fn func()) {
		s.Go(name, func(context.Context) { fn() })
	}
	s.mu.Lock()
	s.timers = append(s.timers, timer)
	s.mu.Unlock()
	return timer
}

// Go 启动后台任务，关闭后返回 false
func (s *Scheduler) Go(name string, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		logger.Debugw("scheduler_task_skip_closed", "task", name)
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("scheduler_task_panic", "task", name, "panic", r)
			}
		}()
		fn(s.ctx)
	}()
	return true
}

// RandomDelay 返回 [0, max) 内的随机时长
func (s *Scheduler) RandomDelay(max time.Duration) time.Duration {
	return RandomDelay(max)
}

// RandomDelay 返回 [0, max) 内的随机时长
func RandomDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

// Shutdown 停止全部定时器并等待后台任务结束
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timers := append([]*Timer(nil), s.timers...)
	s.mu.Unlock()

	for _, timer := range timers {
		timer.Stop()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait 等待当前后台任务结束（测试使用）
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
