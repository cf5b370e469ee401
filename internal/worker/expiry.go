package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/rewards-ledger/internal/logger"

	"github.com/robfig/cron/v3"
)

// ExpiryHandler 过期活动处理接口
type ExpiryHandler interface {
	HandleExpiredPromotions(ctx context.Context) error
}

// ExpirySweeper 按 cron 表达式周期性地把过期活动置为 OVER
type ExpirySweeper struct {
	spec    string
	handler ExpiryHandler
	cron    *cron.Cron
	done    chan struct{}
}

// NewExpirySweeper 创建过期巡检服务
func NewExpirySweeper(spec string, handler ExpiryHandler) (*ExpirySweeper, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("expiry spec is empty")
	}
	if handler == nil {
		return nil, errors.New("expiry handler is nil")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, err
	}
	return &ExpirySweeper{
		spec:    spec,
		handler: handler,
		cron:    cron.New(),
		done:    make(chan struct{}),
	}, nil
}

// Name 服务名称
func (s *ExpirySweeper) Name() string {
	return "expiry"
}

// Start 启动巡检，阻塞直到 Stop 或 ctx 结束
func (s *ExpirySweeper) Start(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return errors.New("expiry sweeper not initialized")
	}
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	logger.Infow("worker_expiry_sweeper_started", "spec", s.spec)
	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

// RunOnce 执行一次巡检
func (s *ExpirySweeper) RunOnce(ctx context.Context) {
	if err := s.handler.HandleExpiredPromotions(ctx); err != nil {
		logger.Warnw("worker_expiry_sweep_failed", "error", err)
	}
}

// Stop 停止巡检
func (s *ExpirySweeper) Stop(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return nil
	}
	stopped := s.cron.Stop()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
