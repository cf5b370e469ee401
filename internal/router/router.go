package router

import (
	"fmt"
	"strings"

	"github.com/rewards-ledger/internal/cache"
	"github.com/rewards-ledger/internal/config"
	ledgerhandlers "github.com/rewards-ledger/internal/http/handlers/ledger"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	ledgerHandler := ledgerhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "rl"
	}
	claimRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:claim", redisPrefix),
		WindowSeconds: cfg.API.ClaimRateLimit.WindowSeconds,
		MaxRequests:   cfg.API.ClaimRateLimit.MaxRequests,
	}
	claimLimiter := RateLimitMiddleware(cache.Client(), claimRule, KeyBySubjectAndParam("id"))

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(APIAuthMiddleware(c.AuthService))
	{
		// 奖励活动
		apiV1.GET("/promotions", ledgerHandler.ListPromotions)
		apiV1.POST("/promotions/:id/claim", claimLimiter, ledgerHandler.ClaimPromotion)
		apiV1.POST("/promotions/:id/attest", claimLimiter, ledgerHandler.AttestPromotion)

		// SKU 订单
		apiV1.POST("/sku/orders", ledgerHandler.CreateSKUOrder)
		apiV1.GET("/sku/orders/:id", ledgerHandler.GetSKUOrder)
		apiV1.PATCH("/sku/orders/:id", ledgerHandler.UpdateSKUOrderStatus)
		apiV1.POST("/sku/orders/:id/retry", ledgerHandler.RetrySKUOrder)
		apiV1.POST("/sku/orders/:id/contribution", ledgerHandler.AttachSKUOrderContribution)
		apiV1.GET("/sku/contributions/:contribution_id", ledgerHandler.GetSKUOrderByContribution)

		// 代币与统计
		apiV1.POST("/tokens/transfer", ledgerHandler.TransferTokens)
		apiV1.GET("/balance-reports", ledgerHandler.ListBalanceReports)
	}

	// 指标
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
