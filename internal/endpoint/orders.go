package endpoint

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type createOrderRequest struct {
	Items []OrderItemRequest `json:"items"`
}

// CreateOrder 创建 SKU 订单
func (c *Client) CreateOrder(ctx context.Context, items []OrderItemRequest) (*Order, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/orders", createOrderRequest{Items: items}, false)
	if err != nil {
		return nil, err
	}
	if err := statusError(status, body); err != nil {
		return nil, err
	}
	var resp Order
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, fmt.Errorf("%w: empty order id", ErrResponseInvalid)
	}
	return &resp, nil
}

type orderCredentialsRequest struct {
	ItemID      string            `json:"itemId"`
	Type        string            `json:"type"`
	Credentials []TokenCredential `json:"credentials"`
}

// SubmitOrderCredentials 使用代币支付订单
func (c *Client) SubmitOrderCredentials(ctx context.Context, orderID, itemID string, creds []TokenCredential) error {
	path := "/v1/orders/" + url.PathEscape(orderID) + "/credentials"
	payload := orderCredentialsRequest{ItemID: itemID, Type: "single-use", Credentials: creds}
	status, body, err := c.do(ctx, http.MethodPost, path, payload, false)
	if err != nil {
		return err
	}
	return statusError(status, body)
}

type orderTransactionRequest struct {
	ExternalTransactionID string `json:"externalTransactionId"`
}

// SubmitOrderTransaction 提交外部钱包交易
func (c *Client) SubmitOrderTransaction(ctx context.Context, orderID, transactionType, externalID string) error {
	path := "/v1/orders/" + url.PathEscape(orderID) + "/transactions/" + url.PathEscape(transactionType)
	status, body, err := c.do(ctx, http.MethodPost, path, orderTransactionRequest{ExternalTransactionID: externalID}, false)
	if err != nil {
		return err
	}
	return statusError(status, body)
}

type transferTokensRequest struct {
	PaymentID   string            `json:"paymentId"`
	Credentials []TokenCredential `json:"credentials"`
}

// TransferTokens 将代币兑入钱包
func (c *Client) TransferTokens(ctx context.Context, paymentID string, creds []TokenCredential) error {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/suggestions/claim", transferTokensRequest{PaymentID: paymentID, Credentials: creds}, true)
	if err != nil {
		return err
	}
	return statusError(status, body)
}

// GetPublisher 获取发布者信息
func (c *Client) GetPublisher(ctx context.Context, publisherKey string) (*Publisher, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/v1/publishers/"+url.PathEscape(publisherKey), nil, false)
	if err != nil {
		return nil, err
	}
	if err := statusError(status, body); err != nil {
		return nil, err
	}
	var resp Publisher
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
