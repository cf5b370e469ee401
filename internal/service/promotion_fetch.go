package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rewards-ledger/internal/cache"
	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/metrics"
	"github.com/rewards-ledger/internal/models"
)

// Fetch 返回可领取的活动；距上次拉取未超过阈值时直接读取本地数据
func (s *PromotionService) Fetch(ctx context.Context) ([]models.Promotion, error) {
	return s.fetch(ctx, false)
}

func (s *PromotionService) fetch(ctx context.Context, force bool) ([]models.Promotion, error) {
	wallet, err := s.wallet.Current()
	if err != nil {
		return []models.Promotion{}, fmt.Errorf("%w: load wallet: %v", ErrLedger, err)
	}
	if wallet == nil || wallet.PaymentID == "" {
		logger.Warnw("promotion_fetch_wallet_missing")
		return []models.Promotion{}, ErrCorruptedData
	}

	if !force && s.withinFetchThreshold() {
		promotions, err := s.cachedActive(ctx)
		metrics.Ledger().ObserveFetch("cache", ResultCode(err))
		return promotions, err
	}

	list, err := s.issuer.GetAvailablePromotions(ctx, wallet.PaymentID)
	switch {
	case err == nil:
	case errors.Is(err, endpoint.ErrNotFound):
		metrics.Ledger().ObserveFetch("network", constants.ResultNotFound)
		return s.processFetched(ctx, []models.Promotion{}, ErrNotFound), ErrNotFound
	default:
		logger.Warnw("promotion_fetch_failed", "error", err)
		resultErr := fmt.Errorf("%w: fetch promotions: %v", ErrLedger, err)
		metrics.Ledger().ObserveFetch("network", ResultCode(resultErr))
		return s.processFetched(ctx, []models.Promotion{}, resultErr), resultErr
	}

	var resultErr error
	if len(list.Corrupted) > 0 {
		logger.Warnw("promotion_fetch_corrupted_items", "promotion_ids", list.Corrupted)
		resultErr = ErrCorruptedData
	}
	promotions, err := s.reconcile(ctx, list)
	if err != nil {
		resultErr = err
	}
	metrics.Ledger().ObserveFetch("network", ResultCode(resultErr))
	return s.processFetched(ctx, promotions, resultErr), resultErr
}

func (s *PromotionService) withinFetchThreshold() bool {
	if s.opts.Testing {
		return false
	}
	last, err := s.state.LastFetch()
	if err != nil || last.IsZero() {
		return false
	}
	elapsed := s.now().Sub(last)
	return elapsed >= 0 && elapsed < s.opts.FetchThreshold
}

// cachedActive 先过期处理，再读取缓存，未命中时查询 ACTIVE 活动
func (s *PromotionService) cachedActive(ctx context.Context) ([]models.Promotion, error) {
	if err := s.HandleExpiredPromotions(ctx); err != nil {
		return []models.Promotion{}, err
	}
	var cached []models.Promotion
	if ok, err := cache.GetJSON(ctx, cache.ActivePromotionsKey(), &cached); err == nil && ok {
		return cached, nil
	}
	promotions, err := s.promoRepo.ListByStatus(constants.PromotionStatusActive)
	if err != nil {
		return []models.Promotion{}, fmt.Errorf("%w: list active promotions: %v", ErrLedger, err)
	}
	if err := cache.SetJSON(ctx, cache.ActivePromotionsKey(), promotions, s.opts.CacheTTL); err != nil {
		logger.Debugw("promotion_cache_store_failed", "error", err)
	}
	return promotions, nil
}

// processFetched 记录拉取时间、重新布置刷新并在后台重试已证明活动
func (s *PromotionService) processFetched(ctx context.Context, promotions []models.Promotion, resultErr error) []models.Promotion {
	if err := s.state.SetLastFetch(s.now()); err != nil {
		logger.Warnw("promotion_last_fetch_store_failed", "error", err)
	}
	s.refreshTimer.Stop()
	s.Refresh(resultErr != nil && !errors.Is(resultErr, ErrNotFound))
	s.invalidateCache(ctx)

	s.sched.Go("promotion_retry_after_fetch", func(ctx context.Context) {
		all, err := s.promoRepo.ListAll()
		if err != nil {
			logger.Warnw("promotion_retry_list_failed", "error", err)
			return
		}
		s.Retry(ctx, all)
	})
	return promotions
}

// reconcile 将服务端列表合并到本地，返回可领取活动
func (s *PromotionService) reconcile(ctx context.Context, list *endpoint.PromotionList) ([]models.Promotion, error) {
	if err := s.HandleExpiredPromotions(ctx); err != nil {
		return []models.Promotion{}, err
	}

	seen := make(map[string]struct{}, len(list.Promotions)+len(list.Corrupted))
	for _, id := range list.Corrupted {
		seen[id] = struct{}{}
	}
	available := make([]models.Promotion, 0, len(list.Promotions))
	for _, item := range list.Promotions {
		seen[item.ID] = struct{}{}

		existing, err := s.promoRepo.GetByID(item.ID)
		if err != nil {
			return available, fmt.Errorf("%w: load promotion: %v", ErrLedger, err)
		}
		if existing != nil && existing.Status != constants.PromotionStatusActive {
			continue
		}

		promotion, err := toPromotionModel(item)
		if err != nil {
			logger.Warnw("promotion_value_invalid", "promotion_id", item.ID, "error", err)
			continue
		}
		if existing != nil {
			promotion.ClaimID = existing.ClaimID
			promotion.ClaimedAt = existing.ClaimedAt
			promotion.CreatedAt = existing.CreatedAt
		}
		if item.LegacyClaimed {
			promotion.Status = constants.PromotionStatusAttested
		}
		if err := s.promoRepo.Save(promotion); err != nil {
			return available, fmt.Errorf("%w: save promotion: %v", ErrLedger, err)
		}
		if promotion.Status == constants.PromotionStatusActive {
			available = append(available, *promotion)
		}
	}

	active, err := s.promoRepo.ListByStatus(constants.PromotionStatusActive)
	if err != nil {
		return available, fmt.Errorf("%w: list active promotions: %v", ErrLedger, err)
	}
	for _, promotion := range active {
		if _, ok := seen[promotion.ID]; ok {
			continue
		}
		if _, err := s.transition(ctx, promotion.ID, constants.PromotionStatusOver); err != nil {
			return available, err
		}
		logger.Infow("promotion_gone_from_issuer", "promotion_id", promotion.ID)
	}
	return available, nil
}

func toPromotionModel(item endpoint.Promotion) (*models.Promotion, error) {
	value, err := models.ParseMoney(item.ApproximateValue)
	if err != nil {
		return nil, err
	}
	promotion := &models.Promotion{
		ID:               item.ID,
		Version:          item.Version,
		Type:             item.Type,
		Status:           constants.PromotionStatusActive,
		PublicKeys:       models.EncodePublicKeys(item.PublicKeys),
		Suggestions:      item.SuggestionsPerGrant,
		ApproximateValue: value,
		LegacyClaimed:    item.LegacyClaimed,
	}
	if !item.ExpiresAt.IsZero() && item.Type != constants.PromotionTypeAds {
		promotion.ExpiresAt = item.ExpiresAt.Unix()
	}
	if !item.CreatedAt.IsZero() {
		promotion.CreatedAt = item.CreatedAt
	}
	return promotion, nil
}
