package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/logger"
)

// AttestationIssuer 发行服务的证明接口
type AttestationIssuer interface {
	StartAttestation(ctx context.Context, payload json.RawMessage) (*endpoint.AttestationChallenge, error)
	ConfirmAttestation(ctx context.Context, attestationID string, solution json.RawMessage) error
}

// AttestationService 证明挑战流程，调用之间不保存状态
type AttestationService struct {
	issuer AttestationIssuer
	wallet *WalletService
}

// NewAttestationService 创建证明服务
func NewAttestationService(issuer AttestationIssuer, wallet *WalletService) *AttestationService {
	return &AttestationService{issuer: issuer, wallet: wallet}
}

// attestationSolution 客户端回传的答案
type attestationSolution struct {
	ID       string          `json:"id"`
	Solution json.RawMessage `json:"solution"`
}

// Start 发起挑战，返回 {"id":..., "challenge":...}
func (s *AttestationService) Start(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	wallet, err := s.wallet.Current()
	if err != nil {
		return nil, fmt.Errorf("%w: load wallet: %v", ErrLedger, err)
	}
	if wallet == nil {
		return nil, ErrWalletRequired
	}
	body, err := injectFields(payload, map[string]string{"paymentId": wallet.PaymentID})
	if err != nil {
		return nil, err
	}

	challenge, err := s.issuer.StartAttestation(ctx, body)
	if err != nil {
		logger.Warnw("attestation_start_failed", "error", err)
		if errors.Is(err, endpoint.ErrRejected) || errors.Is(err, endpoint.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrAttestationFailed, err)
		}
		return nil, fmt.Errorf("%w: start attestation: %v", ErrLedger, err)
	}
	raw, err := json.Marshal(challenge)
	if err != nil {
		return nil, fmt.Errorf("%w: encode challenge: %v", ErrLedger, err)
	}
	return raw, nil
}

// Confirm 提交挑战答案
func (s *AttestationService) Confirm(ctx context.Context, solution json.RawMessage) error {
	var parsed attestationSolution
	if err := json.Unmarshal(solution, &parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	parsed.ID = strings.TrimSpace(parsed.ID)
	if parsed.ID == "" || len(bytes.TrimSpace(parsed.Solution)) == 0 {
		return ErrInvalidPayload
	}
	if err := s.issuer.ConfirmAttestation(ctx, parsed.ID, parsed.Solution); err != nil {
		logger.Warnw("attestation_confirm_failed", "attestation_id", parsed.ID, "error", err)
		if errors.Is(err, endpoint.ErrRejected) || errors.Is(err, endpoint.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrAttestationFailed, err)
		}
		return fmt.Errorf("%w: confirm attestation: %v", ErrLedger, err)
	}
	return nil
}

// injectFields 向 JSON 对象写入字段，空载荷视为 {}
func injectFields(payload json.RawMessage, fields map[string]string) (json.RawMessage, error) {
	object := make(map[string]json.RawMessage)
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &object); err != nil {
			return nil, fmt.Errorf("%w: payload must be a json object", ErrInvalidPayload)
		}
		if object == nil {
			object = make(map[string]json.RawMessage)
		}
	}
	for key, value := range fields {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		object[key] = encoded
	}
	raw, err := json.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return raw, nil
}
