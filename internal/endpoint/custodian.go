package endpoint

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CustodianClient 托管钱包转账客户端
type CustodianClient struct {
	client *Client
}

// NewCustodianClient 创建托管钱包客户端
func NewCustodianClient(baseURL string, timeout time.Duration, signer RequestSigner) (*CustodianClient, error) {
	client, err := NewClient(Config{BaseURL: baseURL, Timeout: timeout}, signer)
	if err != nil {
		return nil, err
	}
	return &CustodianClient{client: client}, nil
}

// Close 停止派发新请求
func (c *CustodianClient) Close() {
	c.client.Close()
}

type transferRequest struct {
	From        string `json:"from"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Message     string `json:"message"`
}

type transferResponse struct {
	ID string `json:"id"`
}

// Transfer 从托管钱包向目标地址转账，返回外部交易ID
func (c *CustodianClient) Transfer(ctx context.Context, from, destination, amount, message string) (string, error) {
	payload := transferRequest{From: from, Destination: destination, Amount: amount, Message: message}
	status, body, err := c.client.do(ctx, http.MethodPost, "/v1/transfers", payload, true)
	if err != nil {
		return "", err
	}
	if err := statusError(status, body); err != nil {
		return "", err
	}
	var resp transferResponse
	if err := decode(body, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", fmt.Errorf("%w: empty transfer id", ErrResponseInvalid)
	}
	return resp.ID, nil
}
