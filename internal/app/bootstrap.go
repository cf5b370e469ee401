package app

import (
	"errors"
	"strings"

	"github.com/rewards-ledger/internal/config"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/provider"
	"github.com/rewards-ledger/internal/router"
	"github.com/rewards-ledger/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	mode, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}

	container, err := provider.NewContainer(cfg)
	if err != nil {
		return nil, err
	}

	// 账本服务最先启动，Runner 逆序停止时最后关闭外部客户端
	services := []Service{NewLedgerService(container)}

	// 初始化 HTTP 服务
	if mode == ModeAll || mode == ModeAPI {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server.Addr(), engine, cfg.Server.ReadHeaderTimeout()))
	}

	// 初始化 Worker 服务
	if mode == ModeWorker || (mode == ModeAll && cfg.Queue.Enabled) {
		consumer := worker.NewConsumer(container)
		workerService, err := worker.NewService(&cfg.Queue, consumer)
		if err != nil {
			container.Close()
			return nil, err
		}
		services = append(services, workerService)
	} else if mode == ModeAll {
		logger.Infow("app_worker_skipped_queue_disabled")
	}

	// 过期活动巡检
	if spec := strings.TrimSpace(cfg.Queue.ExpirySpec); spec != "" {
		sweeper, err := worker.NewExpirySweeper(spec, container.PromotionService)
		if err != nil {
			container.Close()
			return nil, err
		}
		services = append(services, sweeper)
	}

	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if opts.Config == nil {
		return errors.New("config is nil")
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start", "addr", opts.Config.Server.Addr(), "mode", opts.Mode)
	return RunWithOptions(runner, opts)
}
