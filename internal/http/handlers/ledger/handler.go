package ledger

import "github.com/rewards-ledger/internal/provider"

// Handler 账本接口处理器入口
type Handler struct {
	*provider.Container
}

// New 创建账本处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
