package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rewards-ledger/internal/constants"

	"github.com/shopspring/decimal"
)

type promotionListResponse struct {
	Promotions []Promotion `json:"promotions"`
}

// GetAvailablePromotions 获取可领取的活动列表
func (c *Client) GetAvailablePromotions(ctx context.Context, paymentID string) (*PromotionList, error) {
	query := url.Values{}
	query.Set("migrate", "true")
	query.Set("paymentId", paymentID)
	query.Set("platform", c.platform)
	status, body, err := c.do(ctx, http.MethodGet, "/v1/promotions?"+query.Encode(), nil, false)
	if err != nil {
		return nil, err
	}
	if err := statusError(status, body); err != nil {
		return nil, err
	}
	var resp promotionListResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}

	list := &PromotionList{Promotions: make([]Promotion, 0, len(resp.Promotions))}
	for _, item := range resp.Promotions {
		if !item.Available {
			continue
		}
		normalized, ok := normalizePromotion(item)
		if !ok {
			list.Corrupted = append(list.Corrupted, item.ID)
			continue
		}
		list.Promotions = append(list.Promotions, normalized)
	}
	return list, nil
}

// normalizePromotion 校验并规范化单个活动
func normalizePromotion(item Promotion) (Promotion, bool) {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" || item.SuggestionsPerGrant <= 0 || len(item.PublicKeys) == 0 {
		return item, false
	}
	switch strings.ToLower(strings.TrimSpace(item.Type)) {
	case "ugp", constants.PromotionTypeGrant:
		item.Type = constants.PromotionTypeGrant
	case constants.PromotionTypeAds:
		item.Type = constants.PromotionTypeAds
	default:
		return item, false
	}
	if _, err := decimal.NewFromString(strings.TrimSpace(item.ApproximateValue)); err != nil {
		return item, false
	}
	return item, true
}

type clobberedClaimsRequest struct {
	ClaimIDs []string `json:"claimIds"`
}

// ReportClobberedClaims 上报损坏的领取记录
func (c *Client) ReportClobberedClaims(ctx context.Context, claimIDs []string) error {
	if len(claimIDs) == 0 {
		return nil
	}
	status, body, err := c.do(ctx, http.MethodPost, "/v1/promotions/clobbered-claims", clobberedClaimsRequest{ClaimIDs: claimIDs}, false)
	if err != nil {
		return err
	}
	return statusError(status, body)
}

type claimCredsRequest struct {
	PaymentID    string   `json:"paymentId"`
	BlindedCreds []string `json:"blindedCreds"`
}

type claimCredsResponse struct {
	ClaimID string `json:"claimId"`
}

// ClaimCreds 提交盲化代币，返回领取ID
func (c *Client) ClaimCreds(ctx context.Context, promotionID, paymentID string, blinded []string) (string, error) {
	path := "/v1/promotions/" + url.PathEscape(promotionID)
	status, body, err := c.do(ctx, http.MethodPost, path, claimCredsRequest{PaymentID: paymentID, BlindedCreds: blinded}, true)
	if err != nil {
		return "", err
	}
	if err := statusError(status, body); err != nil {
		return "", err
	}
	var resp claimCredsResponse
	if err := decode(body, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.ClaimID) == "" {
		return "", fmt.Errorf("%w: empty claim id", ErrResponseInvalid)
	}
	return resp.ClaimID, nil
}

// GetSignedCreds 获取签名结果，202 表示尚未就绪
func (c *Client) GetSignedCreds(ctx context.Context, promotionID, claimID string) (*SignedCreds, error) {
	path := "/v1/promotions/" + url.PathEscape(promotionID) + "/claims/" + url.PathEscape(claimID)
	status, body, err := c.do(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusAccepted {
		return nil, ErrNotReady
	}
	if err := statusError(status, body); err != nil {
		return nil, err
	}
	var resp SignedCreds
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.SignedCreds) == 0 || resp.BatchProof == "" || resp.PublicKey == "" {
		return nil, fmt.Errorf("%w: incomplete signed creds", ErrResponseInvalid)
	}
	return &resp, nil
}

// IsTransient 判断错误是否为可重试的传输失败
func IsTransient(err error) bool {
	return errors.Is(err, ErrRequestFailed) || errors.Is(err, ErrNotReady)
}
