package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/issuersim"
	"github.com/rewards-ledger/internal/logger"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// 本地开发用的模拟发行服务
func main() {
	var addr string
	var demo bool
	flag.StringVar(&addr, "addr", "127.0.0.1:8090", "监听地址")
	flag.BoolVar(&demo, "demo", true, "预置演示活动、SKU 与发布者")
	flag.Parse()

	_ = godotenv.Load()
	logger.Init("debug", logger.Options{})
	stdLog := logger.StdLogger()

	sim, err := issuersim.New(nil)
	if err != nil {
		stdLog.Fatalf("issuer simulator init failed: %v", err)
	}
	if demo {
		seedDemo(sim)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           sim.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infow("issuersim_start", "addr", addr, "public_key", sim.PublicKey())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stdLog.Fatalf("issuer simulator failed: %v", err)
	}
	logger.Infow("issuersim_stopped")
}

func seedDemo(sim *issuersim.Server) {
	now := time.Now().UTC()
	sim.AddPromotion(endpoint.Promotion{
		ID:                  "demo-grant",
		CreatedAt:           now,
		ExpiresAt:           now.Add(30 * 24 * time.Hour),
		Version:             5,
		SuggestionsPerGrant: 40,
		ApproximateValue:    "10",
		Type:                "ugp",
		Available:           true,
		Platform:            "desktop",
		PublicKeys:          []string{sim.PublicKey()},
	})
	sim.AddPromotion(endpoint.Promotion{
		ID:                  "demo-ads",
		CreatedAt:           now,
		Version:             5,
		SuggestionsPerGrant: 8,
		ApproximateValue:    "2",
		Type:                "ads",
		Available:           true,
		Platform:            "desktop",
		PublicKeys:          []string{sim.PublicKey()},
	})
	sim.AddSKU("vote-pack", issuersim.SKU{
		Price:       decimal.RequireFromString("1.5"),
		Name:        "Vote pack",
		Description: "six votes",
		Type:        "single-use",
	})
	sim.AddPublisher(endpoint.Publisher{
		PublisherKey: "rewards.test",
		Status:       "verified",
		Address:      "addr-merchant",
	})
}
