package service

import (
	"context"
	"fmt"

	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/models"
)

// checkForCorrupted 启动时的一次性巡检：修复空公钥，校验已签名批次并上报被覆盖的领取
func (s *PromotionService) checkForCorrupted(ctx context.Context) error {
	if err := s.repairBlankPublicKeys(); err != nil {
		return err
	}

	batches, err := s.batchRepo.ListByStatus(constants.CredsBatchStatusSigned, constants.CredsBatchStatusFinished)
	if err != nil {
		return fmt.Errorf("%w: list creds batches: %v", ErrLedger, err)
	}
	corrupted := make([]models.CredsBatch, 0)
	for _, batch := range batches {
		if batch.TriggerType != constants.CredsTriggerPromotion {
			continue
		}
		if err := VerifyCredsBatch(batch); err != nil {
			logger.Warnw("promotion_corrupted_batch_found", "creds_id", batch.ID, "promotion_id", batch.TriggerID, "error", err)
			corrupted = append(corrupted, batch)
		}
	}
	if len(corrupted) == 0 {
		return s.markMigrated()
	}

	promotionIDs := make([]string, 0, len(corrupted))
	claimIDs := make([]string, 0, len(corrupted))
	seen := make(map[string]struct{}, len(corrupted))
	for _, batch := range corrupted {
		promotionIDs = append(promotionIDs, batch.TriggerID)
		claimID := batch.ClaimID
		promotion, err := s.promoRepo.GetByID(batch.TriggerID)
		if err != nil {
			return fmt.Errorf("%w: load promotion: %v", ErrLedger, err)
		}
		if promotion != nil && promotion.ClaimID != "" {
			claimID = promotion.ClaimID
		}
		if claimID == "" {
			continue
		}
		if _, ok := seen[claimID]; ok {
			continue
		}
		seen[claimID] = struct{}{}
		claimIDs = append(claimIDs, claimID)
	}
	if len(claimIDs) == 0 {
		return s.markMigrated()
	}

	if err := s.issuer.ReportClobberedClaims(ctx, claimIDs); err != nil {
		return fmt.Errorf("%w: report clobbered claims: %v", ErrLedger, err)
	}
	logger.Infow("promotion_clobbered_claims_reported", "claim_ids", claimIDs)

	affected, err := s.promoRepo.UpdateStatusByIDs(promotionIDs, constants.PromotionStatusCorrupted, nil)
	if err != nil {
		return fmt.Errorf("%w: mark promotions corrupted: %v", ErrLedger, err)
	}
	if _, err := s.batchRepo.UpdateStatusByTriggers(promotionIDs, constants.CredsTriggerPromotion, constants.CredsBatchStatusCorrupted); err != nil {
		return fmt.Errorf("%w: mark creds batches corrupted: %v", ErrLedger, err)
	}
	if affected > 0 {
		s.invalidateCache(ctx)
	}
	return s.markMigrated()
}

// repairBlankPublicKeys 已证明但公钥为空的活动统一写入空列表
func (s *PromotionService) repairBlankPublicKeys() error {
	attested, err := s.promoRepo.ListByStatus(constants.PromotionStatusAttested)
	if err != nil {
		return fmt.Errorf("%w: list attested promotions: %v", ErrLedger, err)
	}
	ids := make([]string, 0)
	for _, promotion := range attested {
		if promotion.HasBlankPublicKeys() {
			ids = append(ids, promotion.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.promoRepo.UpdateBlankPublicKeys(ids); err != nil {
		return fmt.Errorf("%w: repair blank public keys: %v", ErrLedger, err)
	}
	return nil
}

func (s *PromotionService) markMigrated() error {
	if err := s.state.MarkCorruptionMigrated(); err != nil {
		return fmt.Errorf("%w: store migration flag: %v", ErrLedger, err)
	}
	return nil
}
