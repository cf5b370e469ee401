package service

import (
	"encoding/base64"
	"fmt"

	"github.com/rewards-ledger/internal/endpoint"
	"github.com/rewards-ledger/internal/models"
	"github.com/rewards-ledger/internal/tokens"
)

// buildCredentials 以消息签名代币，生成消费凭证
func buildCredentials(rows []models.UnblindedToken, message []byte) ([]endpoint.TokenCredential, error) {
	creds := make([]endpoint.TokenCredential, 0, len(rows))
	for _, row := range rows {
		token, err := tokens.DecodeUnblindedToken(row.TokenValue, row.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("decode unblinded token %d: %w", row.ID, err)
		}
		creds = append(creds, endpoint.TokenCredential{
			T:         token.Preimage(),
			PublicKey: token.PublicKey(),
			Signature: base64.StdEncoding.EncodeToString(token.SignMessage(message)),
		})
	}
	return creds, nil
}

func tokenIDs(rows []models.UnblindedToken) []uint {
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}
