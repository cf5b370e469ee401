package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/models"

	"github.com/shopspring/decimal"
)

func claimAndAttest(t *testing.T, f *ledgerFixture, promotionID string) (*models.Promotion, error) {
	t.Helper()
	ctx := context.Background()
	raw, err := f.promotions.Claim(ctx, promotionID, json.RawMessage(`{}`))
	if err != nil {
		return nil, err
	}
	var challenge struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &challenge); err != nil || challenge.ID == "" {
		t.Fatalf("decode challenge failed: %v %s", err, string(raw))
	}
	answer := f.sim.AttestationAnswer(challenge.ID)
	solution, err := json.Marshal(map[string]interface{}{
		"id":       challenge.ID,
		"solution": map[string]string{"answer": answer},
	})
	if err != nil {
		t.Fatalf("encode solution failed: %v", err)
	}
	return f.promotions.Attest(ctx, promotionID, solution)
}

func TestPromotionAdsClaimFinishesWithTokens(t *testing.T) {
	f := setupLedgerTest(t)
	f.addPromotion("p1", "ads", 5, "1.25")

	list, err := f.promotions.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	f.sched.Wait()
	if len(list) != 1 || list[0].ID != "p1" {
		t.Fatalf("unexpected promotions: %+v", list)
	}
	stored := f.promotion(t, "p1")
	if stored.Status != constants.PromotionStatusActive || stored.ExpiresAt != 0 || stored.Type != constants.PromotionTypeAds {
		t.Fatalf("unexpected stored promotion: %+v", stored)
	}

	promotion, err := claimAndAttest(t, f, "p1")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if promotion.Status != constants.PromotionStatusFinished {
		t.Fatalf("expected finished, got %s", promotion.Status)
	}
	if promotion.ClaimID == "" {
		t.Fatalf("expected claim id to be recorded")
	}
	if got := f.countTokens(t, "p1"); got != 5 {
		t.Fatalf("expected 5 tokens, got %d", got)
	}

	now := f.clock.Now()
	report, err := f.balanceRepo.Get(now.Year(), int(now.Month()))
	if err != nil || report == nil {
		t.Fatalf("load balance report failed: %v", err)
	}
	if !report.AdsAmount.Decimal.Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("unexpected ads amount: %s", report.AdsAmount.String())
	}

	if _, err := f.promotions.Claim(context.Background(), "p1", nil); !errors.Is(err, ErrGrantAlreadyClaimed) {
		t.Fatalf("expected grant already claimed, got %v", err)
	}
}

func TestPromotionGetCredentialsIsIdempotentOnceFinished(t *testing.T) {
	f := setupLedgerTest(t)
	f.addPromotion("p1", "ugp", 4, "2")
	if _, err := f.promotions.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	f.sched.Wait()
	promotion, err := claimAndAttest(t, f, "p1")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if err := f.promotions.GetCredentials(context.Background(), *promotion); err != nil {
		t.Fatalf("second get credentials failed: %v", err)
	}
	if got := f.countTokens(t, "p1"); got != 4 {
		t.Fatalf("expected 4 tokens, got %d", got)
	}
	now := f.clock.Now()
	report, err := f.balanceRepo.Get(now.Year(), int(now.Month()))
	if err != nil || report == nil {
		t.Fatalf("load balance report failed: %v", err)
	}
	if !report.GrantAmount.Decimal.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("balance counted twice: %s", report.GrantAmount.String())
	}
	if f.sim.ClaimCount() != 1 {
		t.Fatalf("expected a single issuer claim, got %d", f.sim.ClaimCount())
	}
}

func TestPromotionFetchMarksMissingActiveAsOver(t *testing.T) {
	f := setupLedgerTest(t)
	f.addPromotion("p1", "ugp", 3, "1")
	if err := f.promoRepo.Save(&models.Promotion{ID: "p2", Type: constants.PromotionTypeGrant, Status: constants.PromotionStatusActive, Suggestions: 3}); err != nil {
		t.Fatalf("save p2 failed: %v", err)
	}
	if err := f.promoRepo.Save(&models.Promotion{ID: "p3", Type: constants.PromotionTypeGrant, Status: constants.PromotionStatusFinished, Suggestions: 3}); err != nil {
		t.Fatalf("save p3 failed: %v", err)
	}

	list, err := f.promotions.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	f.sched.Wait()
	if len(list) != 1 || list[0].ID != "p1" {
		t.Fatalf("unexpected promotions: %+v", list)
	}
	if got := f.promotion(t, "p2").Status; got != constants.PromotionStatusOver {
		t.Fatalf("expected p2 over, got %s", got)
	}
	if got := f.promotion(t, "p3").Status; got != constants.PromotionStatusFinished {
		t.Fatalf("expected p3 to stay finished, got %s", got)
	}
}

func TestPromotionFetchLegacyClaimedIsAttested(t *testing.T) {
	f := setupLedgerTest(t)
	p := f.addPromotion("legacy", "ugp", 2, "1")
	p.LegacyClaimed = true
	f.sim.AddPromotion(p)

	list, err := f.promotions.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	f.sched.Wait()
	if len(list) != 0 {
		t.Fatalf("legacy claimed promotion should not be listed: %+v", list)
	}
	got := f.promotion(t, "legacy").Status
	if got != constants.PromotionStatusAttested && got != constants.PromotionStatusFinished {
		t.Fatalf("expected attested or finished, got %s", got)
	}
}

func TestPromotionFetchWithinThresholdUsesLocalRows(t *testing.T) {
	f := setupLedgerTest(t)
	f.addPromotion("p1", "ugp", 3, "1")
	if _, err := f.promotions.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	f.sched.Wait()

	f.addPromotion("p4", "ugp", 3, "1")
	f.clock.Advance(time.Minute)
	f.sched.Wait()
	list, err := f.promotions.Fetch(context.Background())
	if err != nil {
		t.Fatalf("cached fetch failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "p1" {
		t.Fatalf("expected cached list with p1 only, got %+v", list)
	}
}

func TestPromotionFetchWithoutWalletIsCorrupted(t *testing.T) {
	f := setupLedgerTest(t)
	if err := f.state.SetString(constants.StateKeyWalletPaymentID, ""); err != nil {
		t.Fatalf("clear wallet failed: %v", err)
	}
	list, err := f.promotions.Fetch(context.Background())
	if !errors.Is(err, ErrCorruptedData) {
		t.Fatalf("expected corrupted data, got %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
}

func TestPromotionFetchNotFoundSkipsReconcile(t *testing.T) {
	f := setupLedgerTest(t)
	if err := f.promoRepo.Save(&models.Promotion{ID: "p2", Type: constants.PromotionTypeGrant, Status: constants.PromotionStatusActive, Suggestions: 3}); err != nil {
		t.Fatalf("save p2 failed: %v", err)
	}
	f.sim.SetListStatus(http.StatusNotFound)

	_, err := f.promotions.Fetch(context.Background())
	f.sched.Wait()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := f.promotion(t, "p2").Status; got != constants.PromotionStatusActive {
		t.Fatalf("expected p2 untouched, got %s", got)
	}
	pending := f.clock.Pending()
	if len(pending) != 1 || pending[0] != f.promotions.opts.RefreshInterval {
		t.Fatalf("expected refresh after full interval, got %v", pending)
	}
}

func TestPromotionFetchTransportErrorSchedulesJitteredRefresh(t *testing.T) {
	f := setupLedgerTest(t)
	f.sim.SetListStatus(http.StatusBadGateway)

	_, err := f.promotions.Fetch(context.Background())
	f.sched.Wait()
	if !errors.Is(err, ErrLedger) || ResultCode(err) != constants.ResultError {
		t.Fatalf("expected ledger error, got %v", err)
	}
	pending := f.clock.Pending()
	if len(pending) != 1 || pending[0] < 0 || pending[0] >= f.promotions.opts.ErrorJitter {
		t.Fatalf("expected jittered refresh, got %v", pending)
	}
}

func TestPromotionFetchCorruptedItemsKeepsGoodList(t *testing.T) {
	f := setupLedgerTest(t)
	f.addPromotion("good", "ugp", 3, "1")
	f.addPromotion("bad", "ugp", 0, "1")
	if err := f.promoRepo.Save(&models.Promotion{ID: "bad", Type: constants.PromotionTypeGrant, Status: constants.PromotionStatusActive, Suggestions: 3}); err != nil {
		t.Fatalf("save bad failed: %v", err)
	}

	list, err := f.promotions.Fetch(context.Background())
	f.sched.Wait()
	if !errors.Is(err, ErrCorruptedData) {
		t.Fatalf("expected corrupted data, got %v", err)
	}
	if len(list) != 1 || list[0].ID != "good" {
		t.Fatalf("unexpected promotions: %+v", list)
	}
	if got := f.promotion(t, "bad").Status; got != constants.PromotionStatusActive {
		t.Fatalf("corrupted item should not be marked over, got %s", got)
	}
}

func TestPromotionClaimGuards(t *testing.T) {
	f := setupLedgerTest(t)
	rows := []models.Promotion{
		{ID: "done", Type: constants.PromotionTypeGrant, Status: constants.PromotionStatusFinished, Suggestions: 1},
		{ID: "over", Type: constants.PromotionTypeGrant, Status: constants.PromotionStatusOver, Suggestions: 1},
		{ID: "attested", Type: constants.PromotionTypeGrant, Status: constants.PromotionStatusAttested, Suggestions: 1},
	}
	for i := range rows {
		if err := f.promoRepo.Save(&rows[i]); err != nil {
			t.Fatalf("save promotion failed: %v", err)
		}
	}
	ctx := context.Background()
	if _, err := f.promotions.Claim(ctx, "done", nil); !errors.Is(err, ErrGrantAlreadyClaimed) {
		t.Fatalf("expected grant already claimed, got %v", err)
	}
	if _, err := f.promotions.Claim(ctx, "over", nil); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected in progress, got %v", err)
	}
	if _, err := f.promotions.Attest(ctx, "attested", json.RawMessage(`{"id":"x","solution":{"answer":"y"}}`)); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected in progress, got %v", err)
	}
	if _, err := f.promotions.Claim(ctx, "missing", nil); !errors.Is(err, ErrPromotionNotFound) {
		t.Fatalf("expected promotion not found, got %v", err)
	}
	if ResultCode(ErrPromotionNotFound) != constants.ResultError {
		t.Fatalf("unknown promotion should map to error")
	}
}

type hookedAttestationIssuer struct {
	AttestationIssuer
	afterConfirm func()
}

func (i hookedAttestationIssuer) ConfirmAttestation(ctx context.Context, attestationID string, solution json.RawMessage) error {
	if err := i.AttestationIssuer.ConfirmAttestation(ctx, attestationID, solution); err != nil {
		return err
	}
	i.afterConfirm()
	return nil
}

func TestPromotionAttestStopsWhenPromotionEndsConcurrently(t *testing.T) {
	f := setupLedgerTest(t)
	f.addPromotion("p1", "ugp", 3, "2")
	if _, err := f.promotions.fetch(context.Background(), true); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	f.sched.Wait()
	f.promotions.attestation = NewAttestationService(hookedAttestationIssuer{
		AttestationIssuer: f.client,
		afterConfirm: func() {
			if err := f.promoRepo.UpdateStatus("p1", constants.PromotionStatusOver); err != nil {
				t.Errorf("expire promotion failed: %v", err)
			}
		},
	}, f.wallet)

	if _, err := claimAndAttest(t, f, "p1"); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected in progress, got %v", err)
	}
	if got := f.promotion(t, "p1").Status; got != constants.PromotionStatusOver {
		t.Fatalf("promotion should stay over, got %s", got)
	}
	if got := f.countTokens(t, "p1"); got != 0 {
		t.Fatalf("no tokens expected for an ended promotion, got %d", got)
	}
}

func TestPromotionProofFailureCorruptsOnce(t *testing.T) {
	f := setupLedgerTest(t)
	f.addPromotion("p1", "ugp", 3, "1")
	if _, err := f.promotions.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	f.sched.Wait()
	f.sim.SetCorruptProof(true)

	_, err := claimAndAttest(t, f, "p1")
	if !errors.Is(err, ErrLedger) || ResultCode(err) != constants.ResultError {
		t.Fatalf("proof failure should report ledger error, got %v (%s)", err, ResultCode(err))
	}
	promotion := f.promotion(t, "p1")
	if promotion.Status != constants.PromotionStatusCorrupted {
		t.Fatalf("expected corrupted, got %s", promotion.Status)
	}
	if err := f.promotions.GetCredentials(context.Background(), *promotion); ResultCode(err) != constants.ResultCorruptedData {
		t.Fatalf("corrupted batch rerun should report corrupted data, got %v", err)
	}

	var batches []models.CredsBatch
	if err := f.db.Where("trigger_id = ?", "p1").Find(&batches).Error; err != nil {
		t.Fatalf("load batches failed: %v", err)
	}
	if len(batches) != 1 || batches[0].Status != constants.CredsBatchStatusCorrupted {
		t.Fatalf("expected one corrupted batch, got %+v", batches)
	}
	if got := f.countTokens(t, "p1"); got != 0 {
		t.Fatalf("expected no tokens, got %d", got)
	}
}

func TestPromotionCredentialsNotReadyRetriesOnTimer(t *testing.T) {
	f := setupLedgerTest(t)
	f.addPromotion("p1", "ugp", 3, "1")
	if _, err := f.promotions.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	f.sched.Wait()
	f.sim.SetClaimNotReady(true)

	promotion, err := claimAndAttest(t, f, "p1")
	if err != nil {
		t.Fatalf("attest failed: %v", err)
	}
	if promotion.Status != constants.PromotionStatusAttested {
		t.Fatalf("expected attested, got %s", promotion.Status)
	}
	if !f.promotions.retryTimer.IsRunning() {
		t.Fatalf("expected retry timer to be armed")
	}
	enqueued := f.retryQueue.snapshot()
	if len(enqueued) != 1 || len(enqueued[0].PromotionIDs) != 1 || enqueued[0].PromotionIDs[0] != "p1" {
		t.Fatalf("expected one durable retry for p1, got %+v", enqueued)
	}
	if f.retryQueue.lastDelay() != f.promotions.opts.RetryDelay {
		t.Fatalf("retry should be delayed by %s, got %s", f.promotions.opts.RetryDelay, f.retryQueue.lastDelay())
	}

	f.sim.SetClaimNotReady(false)
	f.clock.Advance(f.promotions.opts.RetryDelay)
	f.sched.Wait()

	if got := f.promotion(t, "p1").Status; got != constants.PromotionStatusFinished {
		t.Fatalf("expected finished after retry, got %s", got)
	}
	if got := f.countTokens(t, "p1"); got != 3 {
		t.Fatalf("expected 3 tokens, got %d", got)
	}
}

func TestPromotionClaimGoneMarksOver(t *testing.T) {
	f := setupLedgerTest(t)
	f.addPromotion("p1", "ugp", 3, "1")
	if _, err := f.promotions.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	f.sched.Wait()
	f.sim.SetClaimMissing(true)

	if _, err := claimAndAttest(t, f, "p1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := f.promotion(t, "p1").Status; got != constants.PromotionStatusOver {
		t.Fatalf("expected over, got %s", got)
	}
}

func TestHandleExpiredPromotions(t *testing.T) {
	f := setupLedgerTest(t)
	past := f.clock.Now().Add(-time.Hour).Unix()
	rows := []models.Promotion{
		{ID: "grant", Type: constants.PromotionTypeGrant, Status: constants.PromotionStatusActive, Suggestions: 1, ExpiresAt: past},
		{ID: "ads", Type: constants.PromotionTypeAds, Status: constants.PromotionStatusActive, Suggestions: 1, ExpiresAt: past},
		{ID: "finished", Type: constants.PromotionTypeGrant, Status: constants.PromotionStatusFinished, Suggestions: 1, ExpiresAt: past},
		{ID: "open", Type: constants.PromotionTypeGrant, Status: constants.PromotionStatusAttested, Suggestions: 1},
	}
	for i := range rows {
		if err := f.promoRepo.Save(&rows[i]); err != nil {
			t.Fatalf("save promotion failed: %v", err)
		}
	}

	if err := f.promotions.HandleExpiredPromotions(context.Background()); err != nil {
		t.Fatalf("handle expired failed: %v", err)
	}
	expect := map[string]string{
		"grant":    constants.PromotionStatusOver,
		"ads":      constants.PromotionStatusActive,
		"finished": constants.PromotionStatusFinished,
		"open":     constants.PromotionStatusAttested,
	}
	for id, status := range expect {
		if got := f.promotion(t, id).Status; got != status {
			t.Fatalf("promotion %s: expected %s, got %s", id, status, got)
		}
	}
}

func TestComputeRefreshDelay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	interval := 24 * time.Hour
	cases := []struct {
		name string
		last time.Time
		want time.Duration
	}{
		{name: "never", last: time.Time{}, want: 0},
		{name: "future", last: now.Add(time.Hour), want: interval},
		{name: "elapsed", last: now.Add(-interval), want: 0},
		{name: "partial", last: now.Add(-time.Hour), want: 23 * time.Hour},
	}
	for _, tc := range cases {
		if got := computeRefreshDelay(now, tc.last, interval); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPromotionRefreshIsNoopWhileArmed(t *testing.T) {
	f := setupLedgerTest(t)
	f.promotions.Refresh(true)
	f.promotions.Refresh(false)
	pending := f.clock.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected a single refresh, got %v", pending)
	}
	if pending[0] < 0 || pending[0] >= f.promotions.opts.ErrorJitter {
		t.Fatalf("jitter out of bounds: %v", pending[0])
	}
}

func TestPromotionTransferTokens(t *testing.T) {
	f := setupLedgerTest(t)
	f.addPromotion("p1", "ugp", 3, "1")
	if _, err := f.promotions.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	f.sched.Wait()
	if _, err := claimAndAttest(t, f, "p1"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	count, err := f.promotions.TransferTokens(context.Background())
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if count != 3 || f.sim.SuggestionBalance("pay-1") != 3 {
		t.Fatalf("unexpected transfer count %d balance %d", count, f.sim.SuggestionBalance("pay-1"))
	}
	count, err = f.promotions.TransferTokens(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("expected nothing left to transfer, got %d %v", count, err)
	}
}
