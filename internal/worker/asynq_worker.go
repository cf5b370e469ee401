package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/provider"
	"github.com/rewards-ledger/internal/queue"
	"github.com/rewards-ledger/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskSKUOrderRetry, c.handleSKUOrderRetry)
	mux.HandleFunc(queue.TaskPromotionRetry, c.handlePromotionRetry)
}

func (c *Consumer) handleSKUOrderRetry(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_sku_order_retry_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.SKUOrderRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_sku_order_retry_unmarshal_failed", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	orderID := strings.TrimSpace(payload.OrderID)
	if orderID == "" {
		logger.Debugw("worker_sku_order_retry_skip_invalid_payload")
		return nil
	}
	if c.SKUService == nil || c.WalletService == nil {
		logger.Warnw("worker_sku_order_retry_skip_service_nil", "order_id", orderID)
		return nil
	}
	wallet, err := c.WalletService.Current()
	if err != nil {
		logger.Warnw("worker_sku_order_retry_wallet_failed", "order_id", orderID, "error", err)
		return err
	}
	order, err := c.SKUService.Retry(ctx, orderID, wallet)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			logger.Debugw("worker_sku_order_retry_skip_order_not_found", "order_id", orderID)
			return nil
		case errors.Is(err, service.ErrOrderCanceled):
			logger.Debugw("worker_sku_order_retry_skip_canceled", "order_id", orderID)
			return nil
		case errors.Is(err, service.ErrWalletRequired), errors.Is(err, service.ErrInsufficientTokens):
			logger.Warnw("worker_sku_order_retry_unrecoverable", "order_id", orderID, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		default:
			logger.Warnw("worker_sku_order_retry_failed", "order_id", orderID, "result", service.ResultCode(err), "error", err)
			return err
		}
	}
	logger.Infow("worker_sku_order_retry_done", "order_id", orderID, "status", order.Status)
	return nil
}

func (c *Consumer) handlePromotionRetry(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_promotion_retry_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PromotionRetryPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_promotion_retry_unmarshal_failed", "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}
	if c.PromotionService == nil || c.PromotionRepo == nil {
		logger.Warnw("worker_promotion_retry_skip_service_nil")
		return nil
	}
	var (
		promotions []models.Promotion
		err        error
	)
	ids := normalizeIDs(payload.PromotionIDs)
	if len(ids) == 0 {
		promotions, err = c.PromotionRepo.ListByStatus(constants.PromotionStatusAttested)
	} else {
		promotions, err = c.PromotionRepo.ListByIDs(ids)
	}
	if err != nil {
		logger.Warnw("worker_promotion_retry_list_failed", "ids", ids, "error", err)
		return err
	}
	c.PromotionService.Retry(ctx, promotions)
	logger.Debugw("worker_promotion_retry_done", "count", len(promotions))
	if len(ids) == 0 {
		return nil
	}
	return c.pendingPromotions(ids)
}

// pendingPromotions 仍处于 ATTESTED 的活动交由 asynq 退避重试
func (c *Consumer) pendingPromotions(ids []string) error {
	current, err := c.PromotionRepo.ListByIDs(ids)
	if err != nil {
		return err
	}
	pending := make([]string, 0, len(current))
	for _, promotion := range current {
		if promotion.Status == constants.PromotionStatusAttested {
			pending = append(pending, promotion.ID)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	return fmt.Errorf("promotions still pending: %s", strings.Join(pending, ","))
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
