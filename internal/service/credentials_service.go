package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rewards-ledger/internal/cache"
	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/metrics"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/repository"
	"github.com/rewards-ledger/internal/tokens"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// CredsIssuer 发行服务的签名接口
type CredsIssuer interface {
	ClaimCreds(ctx context.Context, promotionID, paymentID string, blinded []string) (string, error)
	GetSignedCreds(ctx context.Context, promotionID, claimID string) (*endpoint.SignedCreds, error)
}

// CredsTrigger 凭证批次触发来源
type CredsTrigger struct {
	ID   string
	Type string
	Size int
}

func (t CredsTrigger) key() string {
	return t.Type + ":" + t.ID
}

// CredentialsService 凭证批次引擎
// 每个阶段接收批次副本，持久化后将新批次交给下一阶段。
type CredentialsService struct {
	batchRepo repository.CredsBatchRepository
	promoRepo repository.PromotionRepository
	tokenRepo repository.UnblindedTokenRepository
	issuer    CredsIssuer
	wallet    *WalletService
	locker    *cache.Locker
	group     singleflight.Group
	now       func() time.Time
}

// NewCredentialsService 创建凭证批次引擎
func NewCredentialsService(
	batchRepo repository.CredsBatchRepository,
	promoRepo repository.PromotionRepository,
	tokenRepo repository.UnblindedTokenRepository,
	issuer CredsIssuer,
	wallet *WalletService,
	locker *cache.Locker,
) *CredentialsService {
	if locker == nil {
		locker = cache.NewLocker(0)
	}
	return &CredentialsService{
		batchRepo: batchRepo,
		promoRepo: promoRepo,
		tokenRepo: tokenRepo,
		issuer:    issuer,
		wallet:    wallet,
		locker:    locker,
		now:       time.Now,
	}
}

// Start 驱动批次直到完成、需要重试或失败
func (s *CredentialsService) Start(ctx context.Context, trigger CredsTrigger) error {
	if trigger.ID == "" || trigger.Type == "" || trigger.Size <= 0 {
		return ErrInvalidPayload
	}
	_, err, _ := s.group.Do(trigger.key(), func() (interface{}, error) {
		return nil, s.run(ctx, trigger)
	})
	return err
}

func (s *CredentialsService) run(ctx context.Context, trigger CredsTrigger) error {
	lock, err := s.locker.TryLock(ctx, cache.CredsLockName(trigger.Type, trigger.ID))
	if err != nil {
		return fmt.Errorf("%w: acquire creds lock: %v", ErrLedger, err)
	}
	if lock == nil {
		return ErrRetry
	}
	defer func() {
		if err := s.locker.Unlock(context.Background(), lock); err != nil {
			logger.Warnw("creds_lock_release_failed", "trigger_id", trigger.ID, "error", err)
		}
	}()

	batch, err := s.batchRepo.GetByTrigger(trigger.ID, trigger.Type)
	if err != nil {
		if errors.Is(err, repository.ErrTooManyResults) {
			logger.Errorw("creds_batch_duplicated", "trigger_id", trigger.ID, "trigger_type", trigger.Type)
			return ErrTooManyResults
		}
		return fmt.Errorf("%w: load creds batch: %v", ErrLedger, err)
	}
	if batch == nil {
		batch = &models.CredsBatch{
			ID:          uuid.NewString(),
			TriggerID:   trigger.ID,
			TriggerType: trigger.Type,
			Size:        trigger.Size,
			Status:      constants.CredsBatchStatusNone,
		}
		if err := s.batchRepo.Create(batch); err != nil {
			return fmt.Errorf("%w: create creds batch: %v", ErrLedger, err)
		}
	}

	for {
		stage := batch.Status
		next, err := s.step(ctx, trigger, *batch)
		metrics.Ledger().ObserveCredsStage(stage, ResultCode(err))
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		batch = next
	}
}

// step 执行当前状态对应的阶段，返回 nil 批次表示已完成
func (s *CredentialsService) step(ctx context.Context, trigger CredsTrigger, batch models.CredsBatch) (*models.CredsBatch, error) {
	switch batch.Status {
	case constants.CredsBatchStatusNone:
		return s.blind(batch)
	case constants.CredsBatchStatusBlinded:
		if batch.ClaimID == "" {
			return s.claim(ctx, trigger, batch)
		}
		return s.fetchSigned(ctx, trigger, batch)
	case constants.CredsBatchStatusSigned:
		return s.unblind(trigger, batch)
	case constants.CredsBatchStatusFinished:
		return nil, nil
	case constants.CredsBatchStatusCorrupted:
		return nil, ErrCorruptedData
	default:
		logger.Errorw("creds_batch_status_unknown", "creds_id", batch.ID, "status", batch.Status)
		return nil, ErrLedger
	}
}

// blind 生成并盲化代币，先落盘再发起网络请求
func (s *CredentialsService) blind(batch models.CredsBatch) (*models.CredsBatch, error) {
	size := batch.Size
	secrets := make(models.StringArray, 0, size)
	blinded := make(models.StringArray, 0, size)
	for i := 0; i < size; i++ {
		token, err := tokens.RandomToken()
		if err != nil {
			return nil, fmt.Errorf("%w: generate token: %v", ErrLedger, err)
		}
		bt, err := tokens.Blind(token)
		if err != nil {
			return nil, fmt.Errorf("%w: blind token: %v", ErrLedger, err)
		}
		secrets = append(secrets, token.Encode())
		blinded = append(blinded, bt.Encode())
	}
	batch.Creds = secrets
	batch.BlindedCreds = blinded
	batch.Status = constants.CredsBatchStatusBlinded
	if err := s.batchRepo.Save(&batch); err != nil {
		return nil, fmt.Errorf("%w: save blinded creds: %v", ErrLedger, err)
	}
	return &batch, nil
}

// claim 提交盲化代币并记录领取ID
func (s *CredentialsService) claim(ctx context.Context, trigger CredsTrigger, batch models.CredsBatch) (*models.CredsBatch, error) {
	wallet, err := s.wallet.Current()
	if err != nil {
		return nil, fmt.Errorf("%w: load wallet: %v", ErrLedger, err)
	}
	if wallet == nil {
		return nil, ErrWalletRequired
	}
	claimID, err := s.issuer.ClaimCreds(ctx, trigger.ID, wallet.PaymentID, batch.BlindedCreds)
	if err != nil {
		logger.Warnw("creds_claim_failed", "trigger_id", trigger.ID, "error", err)
		if errors.Is(err, endpoint.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: claim creds: %v", ErrLedger, err)
	}

	batch.ClaimID = claimID
	err = s.batchRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.batchRepo.WithTx(tx).Save(&batch); err != nil {
			return err
		}
		if trigger.Type == constants.CredsTriggerPromotion {
			return s.promoRepo.WithTx(tx).UpdateClaimID(trigger.ID, claimID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: save claim id: %v", ErrLedger, err)
	}
	return &batch, nil
}

// fetchSigned 获取签名结果并校验批量证明
func (s *CredentialsService) fetchSigned(ctx context.Context, trigger CredsTrigger, batch models.CredsBatch) (*models.CredsBatch, error) {
	signed, err := s.issuer.GetSignedCreds(ctx, trigger.ID, batch.ClaimID)
	if err != nil {
		switch {
		case errors.Is(err, endpoint.ErrNotReady):
			return nil, ErrRetry
		case errors.Is(err, endpoint.ErrNotFound):
			return nil, ErrNotFound
		default:
			logger.Warnw("creds_signed_fetch_failed", "trigger_id", trigger.ID, "claim_id", batch.ClaimID, "error", err)
			return nil, fmt.Errorf("%w: fetch signed creds: %v", ErrLedger, err)
		}
	}

	repairKeys := false
	if trigger.Type == constants.CredsTriggerPromotion {
		promotion, err := s.promoRepo.GetByID(trigger.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: load promotion: %v", ErrLedger, err)
		}
		if promotion != nil {
			if promotion.HasBlankPublicKeys() {
				repairKeys = true
			} else if !promotion.HasPublicKey(signed.PublicKey) {
				logger.Errorw("creds_public_key_unlisted", "promotion_id", trigger.ID, "public_key", signed.PublicKey)
				return nil, fmt.Errorf("%w: issuer public key not listed", ErrLedger)
			}
		}
	}

	batch.SignedCreds = signed.SignedCreds
	batch.BatchProof = signed.BatchProof
	batch.PublicKey = signed.PublicKey
	if err := VerifyCredsBatch(batch); err != nil {
		logger.Errorw("creds_batch_proof_invalid", "creds_id", batch.ID, "trigger_id", trigger.ID, "error", err)
		return nil, s.markCorrupted(trigger, batch)
	}

	batch.Status = constants.CredsBatchStatusSigned
	err = s.batchRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.batchRepo.WithTx(tx).Save(&batch); err != nil {
			return err
		}
		if repairKeys {
			return s.promoRepo.WithTx(tx).UpdatePublicKeys(trigger.ID, models.EncodePublicKeys([]string{signed.PublicKey}))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: save signed creds: %v", ErrLedger, err)
	}
	if repairKeys {
		logger.Infow("promotion_public_keys_repaired", "promotion_id", trigger.ID)
	}
	return &batch, nil
}

// unblind 去盲并写入可消费代币
func (s *CredentialsService) unblind(trigger CredsTrigger, batch models.CredsBatch) (*models.CredsBatch, error) {
	unblinded, err := unblindCredsBatch(batch)
	if err != nil {
		logger.Errorw("creds_batch_unblind_failed", "creds_id", batch.ID, "trigger_id", trigger.ID, "error", err)
		return nil, s.markCorrupted(trigger, batch)
	}

	value := models.Money{}
	var expiresAt int64
	if trigger.Type == constants.CredsTriggerPromotion {
		promotion, err := s.promoRepo.GetByID(trigger.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: load promotion: %v", ErrLedger, err)
		}
		if promotion != nil {
			value = models.NewMoneyFromDecimal(promotion.TokenValue())
			expiresAt = promotion.ExpiresAt
		}
	}

	rows := make([]models.UnblindedToken, 0, len(unblinded))
	for _, token := range unblinded {
		rows = append(rows, models.UnblindedToken{
			TokenValue:  token.Encode(),
			PublicKey:   token.PublicKey(),
			Value:       value,
			CredsID:     batch.ID,
			TriggerID:   trigger.ID,
			TriggerType: trigger.Type,
			ExpiresAt:   expiresAt,
		})
	}

	batch.Status = constants.CredsBatchStatusFinished
	err = s.batchRepo.Transaction(func(tx *gorm.DB) error {
		if _, err := s.tokenRepo.WithTx(tx).CreateBatch(rows); err != nil {
			return err
		}
		return s.batchRepo.WithTx(tx).UpdateStatus(batch.ID, constants.CredsBatchStatusFinished)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: save unblinded tokens: %v", ErrLedger, err)
	}
	return &batch, nil
}

// markCorrupted 标记批次及所属活动损坏，本次调用按账本错误上报
func (s *CredentialsService) markCorrupted(trigger CredsTrigger, batch models.CredsBatch) error {
	err := s.batchRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.batchRepo.WithTx(tx).UpdateStatus(batch.ID, constants.CredsBatchStatusCorrupted); err != nil {
			return err
		}
		if trigger.Type != constants.CredsTriggerPromotion {
			return nil
		}
		_, err := s.promoRepo.WithTx(tx).UpdateStatusByIDs([]string{trigger.ID}, constants.PromotionStatusCorrupted, terminalPromotionStatuses)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: mark creds corrupted: %v", ErrLedger, err)
	}
	if trigger.Type == constants.CredsTriggerPromotion {
		metrics.Ledger().ObserveTransition(constants.PromotionStatusCorrupted)
		_ = cache.Del(context.Background(), cache.ActivePromotionsKey())
	}
	logger.Warnw("creds_batch_corrupted", "creds_id", batch.ID, "trigger_id", trigger.ID, "trigger_type", trigger.Type)
	return fmt.Errorf("%w: creds batch %s failed verification", ErrLedger, batch.ID)
}

// VerifyCredsBatch 校验批次的签名结果与批量证明，不做任何写入
func VerifyCredsBatch(batch models.CredsBatch) error {
	_, err := unblindCredsBatch(batch)
	return err
}

func unblindCredsBatch(batch models.CredsBatch) ([]*tokens.UnblindedToken, error) {
	if len(batch.Creds) != len(batch.BlindedCreds) || len(batch.BlindedCreds) != len(batch.SignedCreds) || len(batch.Creds) == 0 {
		return nil, tokens.ErrLengthMismatch
	}
	secrets := make([]*tokens.Token, 0, len(batch.Creds))
	for _, encoded := range batch.Creds {
		token, err := tokens.DecodeToken(encoded)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, token)
	}
	blinded := make([]*tokens.BlindedToken, 0, len(batch.BlindedCreds))
	for _, encoded := range batch.BlindedCreds {
		token, err := tokens.DecodeBlindedToken(encoded)
		if err != nil {
			return nil, err
		}
		blinded = append(blinded, token)
	}
	signed := make([]*tokens.SignedToken, 0, len(batch.SignedCreds))
	for _, encoded := range batch.SignedCreds {
		token, err := tokens.DecodeSignedToken(encoded)
		if err != nil {
			return nil, err
		}
		signed = append(signed, token)
	}
	proof, err := tokens.DecodeBatchProof(batch.BatchProof)
	if err != nil {
		return nil, err
	}
	publicKey, err := tokens.DecodePublicKey(batch.PublicKey)
	if err != nil {
		return nil, err
	}
	return tokens.UnblindBatch(secrets, blinded, signed, proof, publicKey)
}
