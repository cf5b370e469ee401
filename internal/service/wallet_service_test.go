package service

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rewards-ledger/internal/config"
	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupStateServiceTest(t *testing.T) *StateService {
	t.Helper()
	dsn := fmt.Sprintf("file:state_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.LedgerState{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewStateService(repository.NewStateRepository(db))
}

func randomSeed(t *testing.T) string {
	t.Helper()
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return base64.StdEncoding.EncodeToString(seed)
}

func TestWalletCurrentWithoutPaymentID(t *testing.T) {
	wallet := NewWalletService(setupStateServiceTest(t), "secret")
	current, err := wallet.Current()
	if err != nil || current != nil {
		t.Fatalf("expected no wallet, got %+v %v", current, err)
	}
}

func TestWalletBootstrapValidatesSeed(t *testing.T) {
	state := setupStateServiceTest(t)
	if err := NewWalletService(state, "secret").Bootstrap(config.WalletConfig{PaymentID: "pay-1", RecoverySeed: "short"}); !errors.Is(err, ErrWalletSeedInvalid) {
		t.Fatalf("expected invalid seed, got %v", err)
	}
	if err := NewWalletService(state, "").Bootstrap(config.WalletConfig{PaymentID: "pay-1", RecoverySeed: randomSeed(t)}); !errors.Is(err, ErrWalletKeyMissing) {
		t.Fatalf("expected missing key, got %v", err)
	}
}

func TestWalletSignsRequestsWithStoredSeed(t *testing.T) {
	state := setupStateServiceTest(t)
	seed := randomSeed(t)
	wallet := NewWalletService(state, "secret")
	if err := wallet.Bootstrap(config.WalletConfig{PaymentID: "pay-1", RecoverySeed: seed, Type: constants.WalletTypeCustodial, Address: "addr"}); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	stored, err := state.GetString(constants.StateKeyWalletRecoverySeed)
	if err != nil || stored == "" || stored == seed {
		t.Fatalf("seed should be stored encrypted, got %q %v", stored, err)
	}
	current, err := wallet.Current()
	if err != nil || current == nil || !current.IsCustodial() || current.Address != "addr" {
		t.Fatalf("unexpected wallet: %+v %v", current, err)
	}

	// 新实例从密文恢复出同一把签名密钥
	reloaded := NewWalletService(state, "secret")
	pub, err := reloaded.PublicKey()
	if err != nil || pub == nil {
		t.Fatalf("public key failed: %v", err)
	}
	body := []byte(`{"paymentId":"pay-1"}`)
	req, err := http.NewRequest(http.MethodPost, "http://issuer/v1/promotions/p1", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if err := wallet.SignRequest(req, body); err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	keyID, err := endpoint.VerifyRequestSignature(req.Header, body, pub)
	if err != nil || keyID != "pay-1" {
		t.Fatalf("verify failed: %q %v", keyID, err)
	}

	if _, err := NewWalletService(state, "wrong").PublicKey(); !errors.Is(err, ErrWalletSeedInvalid) {
		t.Fatalf("expected seed invalid with wrong key, got %v", err)
	}
}

func TestStateLastFetchAndMigrationFlag(t *testing.T) {
	state := setupStateServiceTest(t)
	last, err := state.LastFetch()
	if err != nil || !last.IsZero() {
		t.Fatalf("expected zero last fetch, got %v %v", last, err)
	}
	now := time.Unix(1_700_000_000, 0)
	if err := state.SetLastFetch(now); err != nil {
		t.Fatalf("set last fetch failed: %v", err)
	}
	if last, err = state.LastFetch(); err != nil || !last.Equal(now) {
		t.Fatalf("unexpected last fetch %v %v", last, err)
	}
	if migrated, _ := state.CorruptionMigrated(); migrated {
		t.Fatalf("flag should start unset")
	}
	if err := state.MarkCorruptionMigrated(); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if migrated, _ := state.CorruptionMigrated(); !migrated {
		t.Fatalf("flag should be set")
	}
}

func TestInjectFields(t *testing.T) {
	raw, err := injectFields([]byte(`{"a":1}`), map[string]string{"promotionId": "p1"})
	if err != nil {
		t.Fatalf("inject failed: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"promotionId":"p1"`)) || !bytes.Contains(raw, []byte(`"a":1`)) {
		t.Fatalf("unexpected payload %s", raw)
	}
	if _, err := injectFields([]byte(`[1,2]`), map[string]string{"x": "y"}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}
