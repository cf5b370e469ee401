package ledger

import (
	"strings"

	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/http/handlers/shared"
	"github.com/rewards-ledger/internal/http/response"
	"github.com/rewards-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateSKUOrderRequest 创建 SKU 订单请求
type CreateSKUOrderRequest struct {
	Items []SKUOrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// SKUOrderItemRequest SKU 订单项请求
type SKUOrderItemRequest struct {
	SKU      string `json:"sku" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// ContributionRequest 关联贡献请求
type ContributionRequest struct {
	ContributionID string `json:"contribution_id" binding:"required"`
}

func (r CreateSKUOrderRequest) toEndpointItems() []endpoint.OrderItemRequest {
	items := make([]endpoint.OrderItemRequest, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, endpoint.OrderItemRequest{
			SKU:      strings.TrimSpace(item.SKU),
			Quantity: item.Quantity,
		})
	}
	return items
}

// CreateSKUOrder 创建并支付 SKU 订单
func (h *Handler) CreateSKUOrder(c *gin.Context) {
	var req CreateSKUOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid payload", service.ErrInvalidPayload)
		return
	}
	wallet, err := h.WalletService.Current()
	if err != nil {
		respondSKUError(c, err)
		return
	}
	order, err := h.SKUService.Process(c.Request.Context(), req.toEndpointItems(), wallet)
	if err != nil {
		respondSKUError(c, err)
		return
	}
	response.Success(c, order)
}

// RetrySKUOrder 继续未完成订单的支付
func (h *Handler) RetrySKUOrder(c *gin.Context) {
	orderID, ok := shared.PathParam(c, "id")
	if !ok {
		return
	}
	wallet, err := h.WalletService.Current()
	if err != nil {
		respondSKUError(c, err)
		return
	}
	order, err := h.SKUService.Retry(c.Request.Context(), orderID, wallet)
	if err != nil {
		respondSKUError(c, err)
		return
	}
	response.Success(c, order)
}

// GetSKUOrder 获取订单详情
func (h *Handler) GetSKUOrder(c *gin.Context) {
	orderID, ok := shared.PathParam(c, "id")
	if !ok {
		return
	}
	order, err := h.SKUService.GetOrder(orderID)
	if err != nil {
		respondSKUError(c, err)
		return
	}
	response.Success(c, order)
}

// GetSKUOrderByContribution 按贡献ID获取订单
func (h *Handler) GetSKUOrderByContribution(c *gin.Context) {
	contributionID, ok := shared.PathParam(c, "contribution_id")
	if !ok {
		return
	}
	order, err := h.SKUService.GetOrderByContributionID(contributionID)
	if err != nil {
		respondSKUError(c, err)
		return
	}
	response.Success(c, order)
}

// AttachSKUOrderContribution 为订单关联贡献ID
func (h *Handler) AttachSKUOrderContribution(c *gin.Context) {
	orderID, ok := shared.PathParam(c, "id")
	if !ok {
		return
	}
	var req ContributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid payload", service.ErrInvalidPayload)
		return
	}
	if err := h.SKUService.SaveContributionID(orderID, strings.TrimSpace(req.ContributionID)); err != nil {
		respondSKUError(c, err)
		return
	}
	order, err := h.SKUService.GetOrder(orderID)
	if err != nil {
		respondSKUError(c, err)
		return
	}
	response.Success(c, order)
}

// UpdateSKUOrderStatusRequest 更新订单状态请求
type UpdateSKUOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateSKUOrderStatus 更新订单状态（如履约完成、取消）
func (h *Handler) UpdateSKUOrderStatus(c *gin.Context) {
	orderID, ok := shared.PathParam(c, "id")
	if !ok {
		return
	}
	var req UpdateSKUOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid payload", service.ErrInvalidPayload)
		return
	}
	if err := h.SKUService.UpdateStatus(orderID, strings.TrimSpace(req.Status)); err != nil {
		respondSKUError(c, err)
		return
	}
	order, err := h.SKUService.GetOrder(orderID)
	if err != nil {
		respondSKUError(c, err)
		return
	}
	response.Success(c, order)
}
