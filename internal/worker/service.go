package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rewards-ledger/internal/config"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 消费 sku/promotion 重试任务的 asynq 服务
type Service struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	stopOnce sync.Once
}

// NewService 创建队列消费服务，队列未启用时返回错误
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		server: asynq.NewServer(opt, serverCfg),
		mux:    mux,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	return "worker"
}

// Start 启动消费者并阻塞到 ctx 结束；信号由 Runner 统一处理
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	logger.Infow("worker_started", "tasks", []string{queue.TaskSKUOrderRetry, queue.TaskPromotionRetry})
	<-ctx.Done()
	return nil
}

// Stop 等待处理中的任务结束后关闭
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	s.stopOnce.Do(s.server.Shutdown)
	return nil
}
