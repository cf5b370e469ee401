package app

import (
	"context"
	"errors"

	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/provider"
)

// LedgerService 账本引擎生命周期：启动时巡检损坏数据并恢复未完成的领取
type LedgerService struct {
	container *provider.Container
}

// NewLedgerService 创建账本服务
func NewLedgerService(c *provider.Container) *LedgerService {
	return &LedgerService{container: c}
}

// Name 服务名称
func (s *LedgerService) Name() string {
	return "ledger"
}

// Start 初始化活动引擎并阻塞到 ctx 结束
func (s *LedgerService) Start(ctx context.Context) error {
	if s == nil || s.container == nil || s.container.PromotionService == nil {
		return errors.New("ledger not initialized")
	}
	if err := s.container.PromotionService.Initialize(ctx); err != nil {
		logger.Errorw("ledger_initialize_failed", "error", err)
		return err
	}
	logger.Infow("ledger_initialized")
	<-ctx.Done()
	return nil
}

// Stop 停止定时器与后台任务，并关闭外部客户端
func (s *LedgerService) Stop(ctx context.Context) error {
	if s == nil || s.container == nil {
		return nil
	}
	s.container.Close()
	if s.container.Scheduler == nil {
		return nil
	}
	return s.container.Scheduler.Shutdown(ctx)
}
