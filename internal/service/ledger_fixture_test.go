package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rewards-ledger/internal/cache"
	"github.com/rewards-ledger/internal/config"
	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/issuersim"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/queue"
	"github.com/rewards-ledger/internal/repository"
	"github.com/rewards-ledger/internal/scheduler"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type recordingRetryQueue struct {
	mu       sync.Mutex
	payloads []queue.PromotionRetryPayload
	delays   []time.Duration
}

func (q *recordingRetryQueue) EnqueuePromotionRetry(payload queue.PromotionRetryPayload, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, payload)
	q.delays = append(q.delays, delay)
	return nil
}

func (q *recordingRetryQueue) snapshot() []queue.PromotionRetryPayload {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.PromotionRetryPayload(nil), q.payloads...)
}

func (q *recordingRetryQueue) lastDelay() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.delays) == 0 {
		return 0
	}
	return q.delays[len(q.delays)-1]
}

type ledgerFixture struct {
	db    *gorm.DB
	sim   *issuersim.Server
	url   string
	clock *scheduler.FakeClock
	sched *scheduler.Scheduler

	state  *StateService
	wallet *WalletService
	client *endpoint.Client

	promoRepo       repository.PromotionRepository
	batchRepo       repository.CredsBatchRepository
	tokenRepo       repository.UnblindedTokenRepository
	balanceRepo     repository.BalanceReportRepository
	orderRepo       repository.SKUOrderRepository
	transactionRepo repository.SKUTransactionRepository
	publisherRepo   repository.ServerPublisherRepository

	creds       *CredentialsService
	attestation *AttestationService
	promotions  *PromotionService
	retryQueue  *recordingRetryQueue
}

func setupLedgerTest(t *testing.T) *ledgerFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	sim, err := issuersim.New(nil)
	if err != nil {
		t.Fatalf("new sim failed: %v", err)
	}
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)

	f := &ledgerFixture{
		db:              db,
		sim:             sim,
		url:             srv.URL,
		clock:           scheduler.NewFakeClock(time.Now().Truncate(time.Second)),
		promoRepo:       repository.NewPromotionRepository(db),
		batchRepo:       repository.NewCredsBatchRepository(db),
		tokenRepo:       repository.NewUnblindedTokenRepository(db),
		balanceRepo:     repository.NewBalanceReportRepository(db),
		orderRepo:       repository.NewSKUOrderRepository(db),
		transactionRepo: repository.NewSKUTransactionRepository(db),
		publisherRepo:   repository.NewServerPublisherRepository(db),
		retryQueue:      &recordingRetryQueue{},
	}
	f.sched = scheduler.New(f.clock)
	t.Cleanup(func() { f.sched.Wait() })

	f.state = NewStateService(repository.NewStateRepository(db))
	f.wallet = NewWalletService(f.state, "test-secret")
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := f.wallet.Bootstrap(config.WalletConfig{
		PaymentID:    "pay-1",
		RecoverySeed: base64.StdEncoding.EncodeToString(seed),
		Type:         "anonymous",
	}); err != nil {
		t.Fatalf("bootstrap wallet failed: %v", err)
	}
	pub, err := f.wallet.PublicKey()
	if err != nil || pub == nil {
		t.Fatalf("wallet public key failed: %v", err)
	}
	sim.RequireWalletSignature(pub)

	f.client, err = endpoint.NewClient(endpoint.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, f.wallet)
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	f.creds = NewCredentialsService(f.batchRepo, f.promoRepo, f.tokenRepo, f.client, f.wallet, cache.NewLocker(0))
	f.attestation = NewAttestationService(f.client, f.wallet)
	f.promotions = NewPromotionService(PromotionDeps{
		PromotionRepo:     f.promoRepo,
		CredsBatchRepo:    f.batchRepo,
		TokenRepo:         f.tokenRepo,
		BalanceReportRepo: f.balanceRepo,
		State:             f.state,
		Wallet:            f.wallet,
		Issuer:            f.client,
		Credentials:       f.creds,
		Attestation:       f.attestation,
		Scheduler:         f.sched,
		Queue:             f.retryQueue,
		Options:           PromotionOptionsFromConfig(config.Defaults().Promotion),
	})
	return f
}

func (f *ledgerFixture) addPromotion(id, promotionType string, suggestions int, value string) endpoint.Promotion {
	p := endpoint.Promotion{
		ID:                  id,
		CreatedAt:           time.Now().UTC(),
		ExpiresAt:           time.Now().Add(72 * time.Hour).UTC(),
		Version:             5,
		SuggestionsPerGrant: suggestions,
		ApproximateValue:    value,
		Type:                promotionType,
		Available:           true,
		Platform:            "desktop",
		PublicKeys:          []string{f.sim.PublicKey()},
	}
	f.sim.AddPromotion(p)
	return p
}

func (f *ledgerFixture) promotion(t *testing.T, id string) *models.Promotion {
	t.Helper()
	p, err := f.promoRepo.GetByID(id)
	if err != nil || p == nil {
		t.Fatalf("load promotion %s failed: %v", id, err)
	}
	return p
}

func (f *ledgerFixture) countTokens(t *testing.T, triggerID string) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&models.UnblindedToken{}).Where("trigger_id = ?", triggerID).Count(&count).Error; err != nil {
		t.Fatalf("count tokens failed: %v", err)
	}
	return count
}
