package ledger

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/rewards-ledger/internal/http/handlers/shared"
	"github.com/rewards-ledger/internal/http/response"
	"github.com/rewards-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

const maxRequestBodyBytes = 64 << 10

// ListPromotions 获取可领取的活动列表
func (h *Handler) ListPromotions(c *gin.Context) {
	promotions, err := h.PromotionService.Fetch(c.Request.Context())
	switch {
	case err == nil:
		response.Success(c, promotions)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrCorruptedData):
		shared.RequestLog(c).Warnw("promotion_list_partial", "result", service.ResultCode(err), "error", err)
		response.SuccessWithResult(c, service.ResultCode(err), promotions)
	default:
		respondPromotionError(c, err)
	}
}

// ClaimPromotion 发起领取并返回证明挑战
func (h *Handler) ClaimPromotion(c *gin.Context) {
	promotionID, ok := shared.PathParam(c, "id")
	if !ok {
		return
	}
	payload, ok := readJSONBody(c, true)
	if !ok {
		return
	}
	challenge, err := h.PromotionService.Claim(c.Request.Context(), promotionID, payload)
	if err != nil {
		respondPromotionError(c, err)
		return
	}
	response.Success(c, challenge)
}

// AttestPromotion 提交证明答案并领取代币
func (h *Handler) AttestPromotion(c *gin.Context) {
	promotionID, ok := shared.PathParam(c, "id")
	if !ok {
		return
	}
	solution, ok := readJSONBody(c, false)
	if !ok {
		return
	}
	promotion, err := h.PromotionService.Attest(c.Request.Context(), promotionID, solution)
	if err != nil {
		respondPromotionError(c, err)
		return
	}
	response.Success(c, promotion)
}

// readJSONBody 读取原始 JSON 请求体；allowEmpty 时空请求体视为 {}
func readJSONBody(c *gin.Context, allowEmpty bool) (json.RawMessage, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBodyBytes))
	if err != nil {
		shared.RespondError(c, response.CodeBadRequest, "invalid payload", service.ErrInvalidPayload)
		return nil, false
	}
	if len(body) == 0 && allowEmpty {
		return json.RawMessage(`{}`), true
	}
	if !json.Valid(body) {
		shared.RespondError(c, response.CodeBadRequest, "invalid payload", service.ErrInvalidPayload)
		return nil, false
	}
	return json.RawMessage(body), true
}
