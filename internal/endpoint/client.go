package endpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rewards-ledger/internal/metrics"

	"golang.org/x/time/rate"
)

var (
	ErrConfigInvalid   = errors.New("issuer config invalid")
	ErrRequestFailed   = errors.New("issuer request failed")
	ErrResponseInvalid = errors.New("issuer response invalid")
	ErrNotFound        = errors.New("issuer resource not found")
	ErrNotReady        = errors.New("issuer resource not ready")
	ErrRejected        = errors.New("issuer rejected request")
	ErrClientClosed    = errors.New("issuer client closed")
)

const maxResponseBytes = 4 << 20

// RequestSigner 请求签名
type RequestSigner interface {
	SignRequest(req *http.Request, body []byte) error
}

// Config 发行服务客户端配置
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Platform          string
}

// Client 发行服务 HTTP 客户端
type Client struct {
	baseURL    string
	platform   string
	httpClient *http.Client
	limiter    *rate.Limiter
	signer     RequestSigner
	closed     atomic.Bool
}

// NewClient 创建发行服务客户端
func NewClient(cfg Config, signer RequestSigner) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base url is empty", ErrConfigInvalid)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	platform := strings.TrimSpace(cfg.Platform)
	if platform == "" {
		platform = "desktop"
	}
	return &Client{
		baseURL:    baseURL,
		platform:   platform,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		signer:     signer,
	}, nil
}

// Close 停止派发新请求
func (c *Client) Close() {
	c.closed.Store(true)
}

// Closed 是否已停止派发
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// do 发送请求，返回状态码与响应体；仅在传输失败时返回错误
func (c *Client) do(ctx context.Context, method, path string, payload interface{}, signed bool) (int, []byte, error) {
	if c.Closed() {
		return 0, nil, ErrClientClosed
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		body = raw
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed && c.signer != nil {
		if err := c.signer.SignRequest(req, body); err != nil {
			return 0, nil, fmt.Errorf("%w: sign request: %v", ErrRequestFailed, err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.Ledger().ObserveIssuerRequest(method, 0, time.Since(start))
		return 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	metrics.Ledger().ObserveIssuerRequest(method, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read body: %v", ErrRequestFailed, err)
	}
	return resp.StatusCode, respBody, nil
}

// statusError 将非 2xx 状态映射为错误
func statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, status, truncate(body))
	default:
		return fmt.Errorf("%w: status %d", ErrRequestFailed, status)
	}
}

func decode(body []byte, dest interface{}) error {
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return nil
}

func truncate(body []byte) string {
	const limit = 256
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit]
	}
	return text
}
