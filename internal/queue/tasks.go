package queue

import (
	"encoding/json"

	"github.com/rewards-ledger/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskSKUOrderRetry SKU 订单支付重试任务
	TaskSKUOrderRetry = constants.TaskSKUOrderRetry
	// TaskPromotionRetry 活动凭证重试任务
	TaskPromotionRetry = constants.TaskPromotionRetry
)

// SKUOrderRetryPayload SKU 订单支付重试载荷
type SKUOrderRetryPayload struct {
	OrderID string `json:"order_id"`
}

// PromotionRetryPayload 活动凭证重试载荷，为空表示全部已证明活动
type PromotionRetryPayload struct {
	PromotionIDs []string `json:"promotion_ids,omitempty"`
}

// NewSKUOrderRetryTask 创建 SKU 订单支付重试任务
func NewSKUOrderRetryTask(payload SKUOrderRetryPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSKUOrderRetry, body), nil
}

// NewPromotionRetryTask 创建活动凭证重试任务
func NewPromotionRetryTask(payload PromotionRetryPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPromotionRetry, body), nil
}
