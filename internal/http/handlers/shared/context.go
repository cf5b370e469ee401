package shared

import (
	"strings"

	"github.com/rewards-ledger/internal/http/response"

	"github.com/gin-gonic/gin"
)

// SubjectContextKey 访问令牌主体在上下文中的键
const SubjectContextKey = "api_subject"

// GetSubject 读取已鉴权的调用方主体，缺失时直接写入 401。
func GetSubject(c *gin.Context) (string, bool) {
	value, exists := c.Get(SubjectContextKey)
	if !exists {
		response.Unauthorized(c, "unauthorized")
		return "", false
	}
	subject, ok := value.(string)
	if !ok || strings.TrimSpace(subject) == "" {
		response.Unauthorized(c, "unauthorized")
		return "", false
	}
	return subject, true
}

// PathParam 读取去空白的路径参数，缺失时直接写入 400。
func PathParam(c *gin.Context, name string) (string, bool) {
	value := strings.TrimSpace(c.Param(name))
	if value == "" {
		response.BadRequest(c, name+" is required")
		return "", false
	}
	return value, true
}
