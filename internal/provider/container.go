package provider

import (
	"fmt"

	"github.com/rewards-ledger/internal/cache"
	"github.com/rewards-ledger/internal/config"
	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/queue"
	"github.com/rewards-ledger/internal/repository"
	"github.com/rewards-ledger/internal/scheduler"
	"github.com/rewards-ledger/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Scheduler   *scheduler.Scheduler
	Locker      *cache.Locker

	// Clients
	IssuerClient    *endpoint.Client
	CustodianClient *endpoint.CustodianClient

	// Repositories
	StateRepo           repository.StateRepository
	PromotionRepo       repository.PromotionRepository
	CredsBatchRepo      repository.CredsBatchRepository
	UnblindedTokenRepo  repository.UnblindedTokenRepository
	BalanceReportRepo   repository.BalanceReportRepository
	SKUOrderRepo        repository.SKUOrderRepository
	SKUTransactionRepo  repository.SKUTransactionRepository
	ServerPublisherRepo repository.ServerPublisherRepository

	// Services
	AuthService        *service.AuthService
	StateService       *service.StateService
	WalletService      *service.WalletService
	CredentialsService *service.CredentialsService
	AttestationService *service.AttestationService
	PromotionService   *service.PromotionService
	SKUService         *service.SKUService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithDB(cfg, models.DB, nil)
}

// NewContainerWithDB 使用指定数据库与时钟初始化容器
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, clock scheduler.Clock) (*Container, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("config and database are required")
	}
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Scheduler:   scheduler.New(clock),
		Locker:      cache.NewLocker(cfg.Promotion.LockTTL()),
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化 Services
	if err := c.initServices(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.StateRepo = repository.NewStateRepository(db)
	c.PromotionRepo = repository.NewPromotionRepository(db)
	c.CredsBatchRepo = repository.NewCredsBatchRepository(db)
	c.UnblindedTokenRepo = repository.NewUnblindedTokenRepository(db)
	c.BalanceReportRepo = repository.NewBalanceReportRepository(db)
	c.SKUOrderRepo = repository.NewSKUOrderRepository(db)
	c.SKUTransactionRepo = repository.NewSKUTransactionRepository(db)
	c.ServerPublisherRepo = repository.NewServerPublisherRepository(db)
}

func (c *Container) initServices() error {
	c.AuthService = service.NewAuthService(c.Config.API.JWTSecret, c.Config.API.TokenTTL())
	c.StateService = service.NewStateService(c.StateRepo)
	c.WalletService = service.NewWalletService(c.StateService, c.Config.Wallet.EncryptionKey)
	if err := c.WalletService.Bootstrap(c.Config.Wallet); err != nil {
		logger.Errorw("provider_wallet_bootstrap_failed", "error", err)
		return err
	}

	issuer, err := endpoint.NewClient(endpoint.Config{
		BaseURL:           c.Config.Issuer.BaseURL,
		Timeout:           c.Config.Issuer.Timeout(),
		RequestsPerSecond: c.Config.Issuer.RequestsPerSecond,
		Burst:             c.Config.Issuer.Burst,
		Platform:          c.Config.App.Platform,
	}, c.WalletService)
	if err != nil {
		logger.Errorw("provider_init_issuer_client_failed", "error", err)
		return err
	}
	c.IssuerClient = issuer

	skuDeps := service.SKUDeps{
		OrderRepo:       c.SKUOrderRepo,
		TransactionRepo: c.SKUTransactionRepo,
		PublisherRepo:   c.ServerPublisherRepo,
		TokenRepo:       c.UnblindedTokenRepo,
		Issuer:          issuer,
		TokenValue:      c.Config.Promotion.TokenValue,
	}
	if c.Config.Custodian.BaseURL != "" {
		custodian, err := endpoint.NewCustodianClient(c.Config.Custodian.BaseURL, c.Config.Custodian.Timeout(), c.WalletService)
		if err != nil {
			logger.Errorw("provider_init_custodian_client_failed", "error", err)
			return err
		}
		c.CustodianClient = custodian
		skuDeps.Custodian = custodian
	}
	var promotionQueue service.PromotionRetryQueue
	if c.QueueClient != nil {
		skuDeps.Queue = c.QueueClient
		promotionQueue = c.QueueClient
	}

	c.CredentialsService = service.NewCredentialsService(c.CredsBatchRepo, c.PromotionRepo, c.UnblindedTokenRepo, issuer, c.WalletService, c.Locker)
	c.AttestationService = service.NewAttestationService(issuer, c.WalletService)
	c.PromotionService = service.NewPromotionService(service.PromotionDeps{
		PromotionRepo:     c.PromotionRepo,
		CredsBatchRepo:    c.CredsBatchRepo,
		TokenRepo:         c.UnblindedTokenRepo,
		BalanceReportRepo: c.BalanceReportRepo,
		State:             c.StateService,
		Wallet:            c.WalletService,
		Issuer:            issuer,
		Credentials:       c.CredentialsService,
		Attestation:       c.AttestationService,
		Scheduler:         c.Scheduler,
		Queue:             promotionQueue,
		Options:           service.PromotionOptionsFromConfig(c.Config.Promotion),
	})

	skuService, err := service.NewSKUService(skuDeps)
	if err != nil {
		logger.Errorw("provider_init_sku_service_failed", "error", err)
		return err
	}
	c.SKUService = skuService
	return nil
}

// Close 关闭外部客户端
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.IssuerClient != nil {
		c.IssuerClient.Close()
	}
	if c.CustodianClient != nil {
		c.CustodianClient.Close()
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_client_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
