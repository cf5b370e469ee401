package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"

	"github.com/rewards-ledger/internal/config"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/repository"
	"github.com/rewards-ledger/internal/service"

	"github.com/joho/godotenv"
)

// 初始化本地钱包身份，并签发一个账本接口访问令牌
func main() {
	var subject string
	flag.StringVar(&subject, "subject", "desktop", "访问令牌主体")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	defer func() { _ = models.CloseDB() }()

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	state := service.NewStateService(repository.NewStateRepository(models.DB))
	wallet := service.NewWalletService(state, cfg.Wallet.EncryptionKey)
	if err := wallet.Bootstrap(cfg.Wallet); err != nil {
		stdLog.Fatalf("Failed to bootstrap wallet: %v", err)
	}

	// 未配置恢复种子时生成一个
	pub, err := wallet.PublicKey()
	if err != nil {
		stdLog.Fatalf("Failed to load wallet key: %v", err)
	}
	if pub == nil {
		seed := make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			stdLog.Fatalf("Failed to generate seed: %v", err)
		}
		if err := wallet.StoreSeed(seed); err != nil {
			stdLog.Fatalf("Failed to store seed: %v", err)
		}
		if pub, err = wallet.PublicKey(); err != nil || pub == nil {
			stdLog.Fatalf("Failed to derive wallet key: %v", err)
		}
		stdLog.Printf("Generated wallet recovery seed")
	}

	current, err := wallet.Current()
	if err != nil {
		stdLog.Fatalf("Failed to load wallet: %v", err)
	}
	if current == nil {
		stdLog.Printf("Wallet payment id not configured; set wallet.payment_id before claiming")
	} else {
		stdLog.Printf("Wallet %s (%s)", current.PaymentID, current.Type)
	}

	token, err := service.NewAuthService(cfg.API.JWTSecret, cfg.API.TokenTTL()).GenerateToken(subject, "ledger")
	if err != nil {
		stdLog.Fatalf("Failed to issue api token: %v", err)
	}
	fmt.Printf("wallet_public_key=%s\n", base64.StdEncoding.EncodeToString(pub))
	fmt.Printf("api_token=%s\n", token)
}
