package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rewards-ledger/internal/constants"
	"github.com/rewards-ledger/internal/logger"
	"github.com/rewards-ledger/internal/metrics"
	"github.com/rewards-ledger/internal/repository"

	"github.com/google/uuid"
)

// TransferTokens 将全部未消费的活动代币转入钱包，返回转移数量
func (s *PromotionService) TransferTokens(ctx context.Context) (int, error) {
	wallet, err := s.wallet.Current()
	if err != nil {
		return 0, fmt.Errorf("%w: load wallet: %v", ErrLedger, err)
	}
	if wallet == nil {
		return 0, ErrWalletRequired
	}

	rows, err := s.tokenRepo.ListSpendable([]string{constants.CredsTriggerPromotion}, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: list spendable tokens: %v", ErrLedger, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	redeemID := uuid.NewString()
	if err := s.tokenRepo.Reserve(tokenIDs(rows), redeemID, constants.TokenRedeemTypeTransfer, s.now()); err != nil {
		if errors.Is(err, repository.ErrTokensUnavailable) {
			return 0, ErrRetry
		}
		return 0, fmt.Errorf("%w: reserve tokens: %v", ErrLedger, err)
	}

	creds, err := buildCredentials(rows, []byte(wallet.PaymentID))
	if err == nil {
		err = s.issuer.TransferTokens(ctx, wallet.PaymentID, creds)
	}
	if err != nil {
		if _, rerr := s.tokenRepo.Release(redeemID); rerr != nil {
			logger.Errorw("promotion_transfer_release_failed", "redeem_id", redeemID, "error", rerr)
		}
		metrics.Ledger().ObserveTransfer(constants.ResultError)
		logger.Warnw("promotion_transfer_failed", "redeem_id", redeemID, "count", len(rows), "error", err)
		return 0, fmt.Errorf("%w: transfer tokens: %v", ErrLedger, err)
	}

	if _, err := s.tokenRepo.MarkUsed(redeemID, s.now()); err != nil {
		return 0, fmt.Errorf("%w: mark tokens used: %v", ErrLedger, err)
	}
	metrics.Ledger().ObserveTransfer(constants.ResultOK)
	logger.Infow("promotion_tokens_transferred", "redeem_id", redeemID, "count", len(rows))
	return len(rows), nil
}
