package worker

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rewards-ledger/internal/config"
	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/issuersim"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/provider"
	"github.com/rewards-ledger/internal/queue"
	"github.com/rewards-ledger/internal/scheduler"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupConsumerTest(t *testing.T) (*Consumer, *scheduler.Scheduler) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	cfg := config.Defaults()
	cfg.Issuer.BaseURL = srv.URL
	cfg.Wallet = config.WalletConfig{
		PaymentID:     "pay-worker",
		RecoverySeed:  base64.StdEncoding.EncodeToString(seed),
		Type:          "anonymous",
		EncryptionKey: "worker-secret",
	}
	clock := scheduler.NewFakeClock(time.Now())
	c, err := provider.NewContainerWithDB(cfg, db, clock)
	if err != nil {
		t.Fatalf("new container failed: %v", err)
	}
	t.Cleanup(c.Close)
	t.Cleanup(c.Scheduler.Wait)
	return NewConsumer(c), c.Scheduler
}

func TestHandleSKUOrderRetryRejectsBadPayload(t *testing.T) {
	consumer, _ := setupConsumerTest(t)
	task := asynq.NewTask(queue.TaskSKUOrderRetry, []byte("{bad"))
	err := consumer.handleSKUOrderRetry(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry, got %v", err)
	}
}

func TestHandleSKUOrderRetrySkipsUnknownOrder(t *testing.T) {
	consumer, _ := setupConsumerTest(t)
	task, err := queue.NewSKUOrderRetryTask(queue.SKUOrderRetryPayload{OrderID: "missing"})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if err := consumer.handleSKUOrderRetry(context.Background(), task); err != nil {
		t.Fatalf("unknown order should be dropped, got %v", err)
	}
}

func TestHandleSKUOrderRetrySkipsCanceledOrder(t *testing.T) {
	consumer, _ := setupConsumerTest(t)
	order := &models.SKUOrder{
		OrderID:     "order-canceled",
		TotalAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(1)),
		Location:    "rewards.test",
		Status:      constants.SKUOrderStatusCanceled,
		PaymentPath: constants.SKUPaymentPathTokens,
	}
	if err := consumer.SKUOrderRepo.InsertOrUpdate(order); err != nil {
		t.Fatalf("insert order failed: %v", err)
	}
	body, _ := json.Marshal(queue.SKUOrderRetryPayload{OrderID: order.OrderID})
	if err := consumer.handleSKUOrderRetry(context.Background(), asynq.NewTask(queue.TaskSKUOrderRetry, body)); err != nil {
		t.Fatalf("canceled order should be dropped, got %v", err)
	}
}

func TestHandlePromotionRetryWithoutPromotions(t *testing.T) {
	consumer, sched := setupConsumerTest(t)
	task, err := queue.NewPromotionRetryTask(queue.PromotionRetryPayload{})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if err := consumer.handlePromotionRetry(context.Background(), task); err != nil {
		t.Fatalf("empty retry should succeed, got %v", err)
	}
	sched.Wait()
}

func TestHandlePromotionRetryExpiresStalePromotions(t *testing.T) {
	consumer, sched := setupConsumerTest(t)
	stale := &models.Promotion{
		ID:        "stale",
		Type:      constants.PromotionTypeGrant,
		Status:    constants.PromotionStatusAttested,
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}
	if err := consumer.PromotionRepo.Save(stale); err != nil {
		t.Fatalf("save promotion failed: %v", err)
	}
	body, _ := json.Marshal(queue.PromotionRetryPayload{PromotionIDs: []string{" stale ", "stale"}})
	if err := consumer.handlePromotionRetry(context.Background(), asynq.NewTask(queue.TaskPromotionRetry, body)); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	sched.Wait()
	got, err := consumer.PromotionRepo.GetByID("stale")
	if err != nil || got == nil {
		t.Fatalf("load promotion failed: %v", err)
	}
	if got.Status != constants.PromotionStatusOver {
		t.Fatalf("expected stale promotion to be over, got %s", got.Status)
	}
}

func TestPendingPromotionsKeepsAttestedForRetry(t *testing.T) {
	consumer, _ := setupConsumerTest(t)
	attested := &models.Promotion{
		ID:     "waiting",
		Type:   constants.PromotionTypeGrant,
		Status: constants.PromotionStatusAttested,
	}
	if err := consumer.PromotionRepo.Save(attested); err != nil {
		t.Fatalf("save promotion failed: %v", err)
	}
	if err := consumer.pendingPromotions([]string{"waiting"}); err == nil {
		t.Fatalf("attested promotion should keep the task retrying")
	}

	if err := consumer.PromotionRepo.UpdateStatus("waiting", constants.PromotionStatusFinished); err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if err := consumer.pendingPromotions([]string{"waiting"}); err != nil {
		t.Fatalf("finished promotion should end the task, got %v", err)
	}
}

func TestNormalizeIDs(t *testing.T) {
	got := normalizeIDs([]string{" a ", "", "b", "a"})
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
}

type countingExpiryHandler struct {
	calls atomic.Int32
	err   error
}

func (h *countingExpiryHandler) HandleExpiredPromotions(context.Context) error {
	h.calls.Add(1)
	return h.err
}

func TestNewExpirySweeperValidatesSpec(t *testing.T) {
	handler := &countingExpiryHandler{}
	if _, err := NewExpirySweeper("", handler); err == nil {
		t.Fatalf("expected empty spec to fail")
	}
	if _, err := NewExpirySweeper("not a cron", handler); err == nil {
		t.Fatalf("expected invalid spec to fail")
	}
	if _, err := NewExpirySweeper("@every 1m", nil); err == nil {
		t.Fatalf("expected nil handler to fail")
	}
	if _, err := NewExpirySweeper("*/5 * * * *", handler); err != nil {
		t.Fatalf("standard spec should parse: %v", err)
	}
}

func TestExpirySweeperRunOnceAndStop(t *testing.T) {
	handler := &countingExpiryHandler{err: errors.New("boom")}
	sweeper, err := NewExpirySweeper("@every 1h", handler)
	if err != nil {
		t.Fatalf("new sweeper failed: %v", err)
	}
	sweeper.RunOnce(context.Background())
	if handler.calls.Load() != 1 {
		t.Fatalf("expected one call, got %d", handler.calls.Load())
	}

	done := make(chan error, 1)
	go func() { done <- sweeper.Start(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("start did not return after stop")
	}
}
