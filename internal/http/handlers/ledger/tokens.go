package ledger

import (
	"strconv"
	"strings"

	"github.com/rewards-ledger/internal/http/handlers/shared"
	"github.com/rewards-ledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

const maxBalanceReportPageSize = 120

// TransferTokens 将活动代币转入钱包
func (h *Handler) TransferTokens(c *gin.Context) {
	subject, ok := shared.GetSubject(c)
	if !ok {
		return
	}
	count, err := h.PromotionService.TransferTokens(c.Request.Context())
	if err != nil {
		respondTransferError(c, err)
		return
	}
	shared.RequestLog(c).Infow("tokens_transferred", "subject", subject, "count", count)
	response.Success(c, gin.H{"transferred": count})
}

// ListBalanceReports 获取月度领取统计
func (h *Handler) ListBalanceReports(c *gin.Context) {
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 0)
	if pageSize > maxBalanceReportPageSize {
		pageSize = maxBalanceReportPageSize
	}
	reports, total, err := h.BalanceReportRepo.List(page, pageSize)
	if err != nil {
		shared.RespondError(c, response.CodeInternal, "balance report query failed", err)
		return
	}
	response.Success(c, gin.H{
		"items": reports,
		"total": total,
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
