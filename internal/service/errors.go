package service

import (
	"errors"

	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/repository"
)

var (
	ErrLedger                 = errors.New("ledger operation failed")
	ErrNotFound               = errors.New("resource not found")
	ErrCorruptedData          = errors.New("corrupted data")
	ErrRetry                  = errors.New("operation should be retried")
	ErrInProgress             = errors.New("promotion claim in progress")
	ErrGrantAlreadyClaimed    = errors.New("grant already claimed")
	ErrTooManyResults         = repository.ErrTooManyResults
	ErrPromotionNotFound      = errors.New("promotion not found")
	ErrWalletRequired         = errors.New("wallet is required")
	ErrMerchantAddressMissing = errors.New("merchant address missing")
	ErrOrderNotFound          = errors.New("sku order not found")
	ErrOrderCanceled          = errors.New("sku order canceled")
	ErrInsufficientTokens     = errors.New("insufficient unblinded tokens")
	ErrAttestationFailed      = errors.New("attestation failed")
	ErrInvalidPayload         = errors.New("invalid payload")
)

// ResultCode 将业务错误映射为结果码
func ResultCode(err error) string {
	switch {
	case err == nil:
		return constants.ResultOK
	case errors.Is(err, ErrRetry):
		return constants.ResultRetry
	case errors.Is(err, ErrCorruptedData):
		return constants.ResultCorruptedData
	case errors.Is(err, ErrGrantAlreadyClaimed):
		return constants.ResultGrantAlreadyClaimed
	case errors.Is(err, ErrInProgress):
		return constants.ResultInProgress
	case errors.Is(err, ErrTooManyResults):
		return constants.ResultTooManyResults
	case errors.Is(err, ErrNotFound):
		return constants.ResultNotFound
	default:
		return constants.ResultError
	}
}
