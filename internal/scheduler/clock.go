package scheduler

import "time"

// Stopper 可取消的定时任务
type Stopper interface {
	Stop() bool
}

// Clock 时钟抽象
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Stopper
}

type systemClock struct{}

// SystemClock 返回系统时钟
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Stopper {
	return time.AfterFunc(d, fn)
}
