package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rewards-ledger/internal/logger"
)

// HTTPService 账本 API 服务
type HTTPService struct {
	server *http.Server
}

// NewHTTPService 创建 HTTP 服务，readHeaderTimeout<=0 时不限制
func NewHTTPService(addr string, handler http.Handler, readHeaderTimeout time.Duration) *HTTPService {
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	if readHeaderTimeout > 0 {
		server.ReadHeaderTimeout = readHeaderTimeout
	}
	return &HTTPService{server: server}
}

// Name 服务名称
func (s *HTTPService) Name() string {
	return "http"
}

// Start 监听端口并阻塞直到 Shutdown
func (s *HTTPService) Start(ctx context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("http server not initialized")
	}
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	logger.Infow("http_listening", "addr", listener.Addr().String())
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止接收新请求并等待处理中的请求完成
func (s *HTTPService) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
