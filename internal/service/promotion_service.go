package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rewards-ledger/internal/cache"
	"github.com/rewards-ledger/internal/config"
	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/metrics"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/queue"
	"github.com/rewards-ledger/internal/repository"
	"github.com/rewards-ledger/internal/scheduler"
)

// terminalPromotionStatuses 状态迁移不会覆盖这些状态
var terminalPromotionStatuses = []string{
	constants.PromotionStatusFinished,
	constants.PromotionStatusOver,
	constants.PromotionStatusCorrupted,
}

// PromotionIssuer 发行服务的活动接口
type PromotionIssuer interface {
	GetAvailablePromotions(ctx context.Context, paymentID string) (*endpoint.PromotionList, error)
	ReportClobberedClaims(ctx context.Context, claimIDs []string) error
	TransferTokens(ctx context.Context, paymentID string, creds []endpoint.TokenCredential) error
}

// PromotionRetryQueue 活动凭证重试队列，跨进程重启恢复未就绪的领取
type PromotionRetryQueue interface {
	EnqueuePromotionRetry(payload queue.PromotionRetryPayload, delay time.Duration) error
}

// PromotionOptions 活动刷新与重试参数
type PromotionOptions struct {
	FetchThreshold  time.Duration
	RefreshInterval time.Duration
	RetryDelay      time.Duration
	ErrorJitter     time.Duration
	CacheTTL        time.Duration
	Testing         bool
}

// PromotionOptionsFromConfig 从配置生成参数
func PromotionOptionsFromConfig(cfg config.PromotionConfig) PromotionOptions {
	return PromotionOptions{
		FetchThreshold:  cfg.FetchThreshold(),
		RefreshInterval: cfg.RefreshInterval(),
		RetryDelay:      cfg.RetryDelay(),
		ErrorJitter:     cfg.ErrorJitter(),
		CacheTTL:        cfg.CacheTTL(),
		Testing:         cfg.Testing,
	}
}

// PromotionDeps 活动服务依赖
type PromotionDeps struct {
	PromotionRepo     repository.PromotionRepository
	CredsBatchRepo    repository.CredsBatchRepository
	TokenRepo         repository.UnblindedTokenRepository
	BalanceReportRepo repository.BalanceReportRepository
	State             *StateService
	Wallet            *WalletService
	Issuer            PromotionIssuer
	Credentials       *CredentialsService
	Attestation       *AttestationService
	Scheduler         *scheduler.Scheduler
	Queue             PromotionRetryQueue
	Options           PromotionOptions
}

// PromotionService 活动生命周期管理
type PromotionService struct {
	promoRepo   repository.PromotionRepository
	batchRepo   repository.CredsBatchRepository
	tokenRepo   repository.UnblindedTokenRepository
	balanceRepo repository.BalanceReportRepository
	state       *StateService
	wallet      *WalletService
	issuer      PromotionIssuer
	creds       *CredentialsService
	attestation *AttestationService
	sched       *scheduler.Scheduler
	queue       PromotionRetryQueue
	opts        PromotionOptions

	refreshTimer *scheduler.Timer
	retryTimer   *scheduler.Timer
	jitter       func(max time.Duration) time.Duration
}

// NewPromotionService 创建活动服务
func NewPromotionService(deps PromotionDeps) *PromotionService {
	sched := deps.Scheduler
	if sched == nil {
		sched = scheduler.New(nil)
	}
	return &PromotionService{
		promoRepo:    deps.PromotionRepo,
		batchRepo:    deps.CredsBatchRepo,
		tokenRepo:    deps.TokenRepo,
		balanceRepo:  deps.BalanceReportRepo,
		state:        deps.State,
		wallet:       deps.Wallet,
		issuer:       deps.Issuer,
		creds:        deps.Credentials,
		attestation:  deps.Attestation,
		sched:        sched,
		queue:        deps.Queue,
		opts:         deps.Options,
		refreshTimer: sched.NewTimer("promotion_refresh"),
		retryTimer:   sched.NewTimer("promotion_retry"),
		jitter:       sched.RandomDelay,
	}
}

func (s *PromotionService) now() time.Time {
	return s.sched.Clock().Now()
}

// Initialize 启动时执行损坏巡检、重试已证明活动并布置刷新
func (s *PromotionService) Initialize(ctx context.Context) error {
	migrated, err := s.state.CorruptionMigrated()
	if err != nil {
		return fmt.Errorf("%w: load migration flag: %v", ErrLedger, err)
	}
	if !migrated {
		if err := s.checkForCorrupted(ctx); err != nil {
			logger.Warnw("promotion_corruption_sweep_failed", "error", err)
		}
	}

	all, err := s.promoRepo.ListAll()
	if err != nil {
		return fmt.Errorf("%w: list promotions: %v", ErrLedger, err)
	}
	s.Retry(ctx, all)
	s.Refresh(false)
	return nil
}

// List 返回全部活动
func (s *PromotionService) List() ([]models.Promotion, error) {
	promotions, err := s.promoRepo.ListAll()
	if err != nil {
		return nil, fmt.Errorf("%w: list promotions: %v", ErrLedger, err)
	}
	return promotions, nil
}

// claimGuard 已完成返回 ErrGrantAlreadyClaimed，其他非 ACTIVE 返回 ErrInProgress
func claimGuard(promotion *models.Promotion) error {
	switch promotion.Status {
	case constants.PromotionStatusActive:
		return nil
	case constants.PromotionStatusFinished:
		return ErrGrantAlreadyClaimed
	default:
		return ErrInProgress
	}
}

func (s *PromotionService) load(promotionID string) (*models.Promotion, error) {
	promotion, err := s.promoRepo.GetByID(promotionID)
	if err != nil {
		return nil, fmt.Errorf("%w: load promotion: %v", ErrLedger, err)
	}
	if promotion == nil {
		return nil, ErrPromotionNotFound
	}
	return promotion, nil
}

// Claim 发起领取，返回证明挑战
func (s *PromotionService) Claim(ctx context.Context, promotionID string, payload json.RawMessage) (json.RawMessage, error) {
	promotion, err := s.load(promotionID)
	if err != nil {
		return nil, err
	}
	if err := claimGuard(promotion); err != nil {
		return nil, err
	}
	body, err := injectFields(payload, map[string]string{"promotionId": promotion.ID})
	if err != nil {
		return nil, err
	}
	return s.attestation.Start(ctx, body)
}

// Attest 提交证明答案并领取凭证
func (s *PromotionService) Attest(ctx context.Context, promotionID string, solution json.RawMessage) (*models.Promotion, error) {
	promotion, err := s.load(promotionID)
	if err != nil {
		return nil, err
	}
	if err := claimGuard(promotion); err != nil {
		return nil, err
	}
	if err := s.attestation.Confirm(ctx, solution); err != nil {
		return nil, err
	}

	promotion, err = s.load(promotionID)
	if err != nil {
		return nil, err
	}
	if promotion.Status == constants.PromotionStatusFinished {
		return nil, ErrGrantAlreadyClaimed
	}
	changed, err := s.transition(ctx, promotion.ID, constants.PromotionStatusAttested)
	if err != nil {
		return nil, err
	}
	if !changed {
		current, err := s.load(promotionID)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case constants.PromotionStatusActive, constants.PromotionStatusAttested:
		case constants.PromotionStatusFinished:
			return nil, ErrGrantAlreadyClaimed
		default:
			return nil, ErrInProgress
		}
	}
	promotion.Status = constants.PromotionStatusAttested

	if err := s.GetCredentials(ctx, *promotion); err != nil {
		return nil, err
	}
	return s.load(promotionID)
}

// GetCredentials 驱动凭证批次；未就绪时布置重试定时器
func (s *PromotionService) GetCredentials(ctx context.Context, promotion models.Promotion) error {
	err := s.creds.Start(ctx, CredsTrigger{
		ID:   promotion.ID,
		Type: constants.CredsTriggerPromotion,
		Size: promotion.Suggestions,
	})
	switch {
	case err == nil:
		return s.finish(ctx, promotion)
	case errors.Is(err, ErrRetry):
		if s.retryTimer.Start(s.opts.RetryDelay, s.onRetryTimer) {
			logger.Debugw("promotion_retry_scheduled", "promotion_id", promotion.ID, "delay", s.opts.RetryDelay)
		}
		s.enqueueRetry(promotion.ID)
		return nil
	case errors.Is(err, ErrNotFound):
		if _, terr := s.transition(ctx, promotion.ID, constants.PromotionStatusOver); terr != nil {
			return terr
		}
		return ErrNotFound
	default:
		logger.Warnw("promotion_credentials_failed", "promotion_id", promotion.ID, "error", err)
		return err
	}
}

// finish 标记完成并累计月度统计；只有实际发生迁移时才计入
func (s *PromotionService) finish(ctx context.Context, promotion models.Promotion) error {
	changed, err := s.transition(ctx, promotion.ID, constants.PromotionStatusFinished)
	if err != nil || !changed {
		return err
	}
	now := s.now()
	if err := s.balanceRepo.AddAmount(now.Year(), int(now.Month()), promotion.Type, promotion.ApproximateValue.Decimal); err != nil {
		logger.Warnw("promotion_balance_report_failed", "promotion_id", promotion.ID, "error", err)
	}
	return nil
}

// enqueueRetry 队列启用时投递持久化重试任务
func (s *PromotionService) enqueueRetry(promotionID string) {
	if s.queue == nil {
		return
	}
	payload := queue.PromotionRetryPayload{PromotionIDs: []string{promotionID}}
	if err := s.queue.EnqueuePromotionRetry(payload, s.opts.RetryDelay); err != nil {
		logger.Warnw("promotion_retry_enqueue_failed", "promotion_id", promotionID, "error", err)
	}
}

func (s *PromotionService) onRetryTimer() {
	ctx := s.sched.Context()
	all, err := s.promoRepo.ListAll()
	if err != nil {
		logger.Warnw("promotion_retry_list_failed", "error", err)
		return
	}
	s.Retry(ctx, all)
}

// Retry 对已证明的活动重新驱动凭证批次
func (s *PromotionService) Retry(ctx context.Context, promotions []models.Promotion) {
	if err := s.HandleExpiredPromotions(ctx); err != nil {
		logger.Warnw("promotion_expire_failed", "error", err)
	}
	for _, item := range promotions {
		if item.Status != constants.PromotionStatusAttested {
			continue
		}
		current, err := s.promoRepo.GetByID(item.ID)
		if err != nil || current == nil || current.Status != constants.PromotionStatusAttested {
			continue
		}
		if err := s.GetCredentials(ctx, *current); err != nil {
			logger.Warnw("promotion_retry_failed", "promotion_id", current.ID, "result", ResultCode(err), "error", err)
		}
	}
}

// HandleExpiredPromotions 将过期的非广告活动置为 OVER
func (s *PromotionService) HandleExpiredPromotions(ctx context.Context) error {
	promotions, err := s.promoRepo.ListByStatus(constants.PromotionStatusActive, constants.PromotionStatusAttested)
	if err != nil {
		return fmt.Errorf("%w: list promotions: %v", ErrLedger, err)
	}
	now := s.now()
	for _, promotion := range promotions {
		if !promotion.IsExpired(now) {
			continue
		}
		if _, err := s.transition(ctx, promotion.ID, constants.PromotionStatusOver); err != nil {
			return err
		}
		logger.Infow("promotion_expired", "promotion_id", promotion.ID, "expires_at", promotion.ExpiresAt)
	}
	return nil
}

// transition 迁移状态，终态不会被覆盖；返回是否实际发生变更
func (s *PromotionService) transition(ctx context.Context, promotionID, status string) (bool, error) {
	affected, err := s.promoRepo.UpdateStatusByIDs([]string{promotionID}, status, terminalPromotionStatuses)
	if err != nil {
		return false, fmt.Errorf("%w: update promotion status: %v", ErrLedger, err)
	}
	if affected == 0 {
		return false, nil
	}
	metrics.Ledger().ObserveTransition(status)
	s.invalidateCache(ctx)
	return true, nil
}

func (s *PromotionService) invalidateCache(ctx context.Context) {
	if err := cache.Del(ctx, cache.ActivePromotionsKey()); err != nil {
		logger.Debugw("promotion_cache_invalidate_failed", "error", err)
	}
}

// Refresh 布置下一次拉取；已布置时不做任何事
func (s *PromotionService) Refresh(retryAfterError bool) {
	if s.refreshTimer.IsRunning() {
		return
	}
	var delay time.Duration
	if retryAfterError {
		delay = s.jitter(s.opts.ErrorJitter)
	} else {
		last, err := s.state.LastFetch()
		if err != nil {
			logger.Warnw("promotion_last_fetch_load_failed", "error", err)
		}
		delay = computeRefreshDelay(s.now(), last, s.opts.RefreshInterval)
	}
	if s.refreshTimer.Start(delay, s.onRefreshTimer) {
		logger.Debugw("promotion_refresh_scheduled", "delay", delay, "after_error", retryAfterError)
	}
}

// computeRefreshDelay 间隔减去已流逝时间，下限为 0；未拉取过时立即触发
func computeRefreshDelay(now, last time.Time, interval time.Duration) time.Duration {
	if last.IsZero() {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed < 0 {
		return interval
	}
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

func (s *PromotionService) onRefreshTimer() {
	ctx := s.sched.Context()
	if _, err := s.fetch(ctx, true); err != nil {
		logger.Warnw("promotion_refresh_fetch_failed", "result", ResultCode(err), "error", err)
	}
}
