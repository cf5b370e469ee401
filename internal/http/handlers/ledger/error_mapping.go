package ledger

import (
	"errors"

	"github.com/rewards-ledger/internal/http/handlers/shared"
	"github.com/rewards-ledger/internal/http/response"
	"github.com/rewards-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			shared.RespondError(c, rule.code, rule.msg, err)
			return
		}
	}
	shared.RespondError(c, fallbackCode, fallbackMsg, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var ledgerCommonErrorRules = []mappedHandlerError{
	{target: service.ErrWalletRequired, code: response.CodeBadRequest, msg: "wallet is not configured"},
	{target: service.ErrInvalidPayload, code: response.CodeBadRequest, msg: "invalid payload"},
	{target: service.ErrCorruptedData, code: response.CodeConflict, msg: "corrupted data"},
	{target: service.ErrRetry, code: response.CodeServiceUnavailable, msg: "try again later"},
}

var promotionErrorRules = []mappedHandlerError{
	{target: service.ErrPromotionNotFound, code: response.CodeNotFound, msg: "promotion not found"},
	{target: service.ErrGrantAlreadyClaimed, code: response.CodeConflict, msg: "grant already claimed"},
	{target: service.ErrInProgress, code: response.CodeConflict, msg: "promotion claim in progress"},
	{target: service.ErrAttestationFailed, code: response.CodeBadRequest, msg: "attestation failed"},
	{target: service.ErrTooManyResults, code: response.CodeConflict, msg: "too many results"},
	{target: service.ErrNotFound, code: response.CodeNotFound, msg: "resource not found"},
}

var skuErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "sku order not found"},
	{target: service.ErrOrderCanceled, code: response.CodeConflict, msg: "sku order canceled"},
	{target: service.ErrInsufficientTokens, code: response.CodeConflict, msg: "insufficient tokens"},
	{target: service.ErrMerchantAddressMissing, code: response.CodeConflict, msg: "merchant address missing"},
}

func respondPromotionError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(promotionErrorRules, ledgerCommonErrorRules), response.CodeInternal, "promotion request failed")
}

func respondSKUError(c *gin.Context, err error) {
	respondWithMappedError(c, err, concatMappedHandlerErrors(skuErrorRules, ledgerCommonErrorRules), response.CodeInternal, "sku order request failed")
}

func respondTransferError(c *gin.Context, err error) {
	respondWithMappedError(c, err, ledgerCommonErrorRules, response.CodeInternal, "token transfer failed")
}
