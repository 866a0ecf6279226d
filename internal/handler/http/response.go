// Package http 实现 REST 接口层。所有响应走统一信封：
// {"success": bool, "data": ..., "error": {"code", "message"}, "timestamp": ...}
// 移动端按 success 分支解析，错误码给端上做本地化文案。
package http

import (
	"time"

	"github.com/gin-gonic/gin"
)

// APIError 是信封里的错误对象。
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope 是统一的响应信封。
type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SuccessResponse 按统一信封返回成功数据。
func SuccessResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// ErrorResponse 按统一信封返回错误。
func ErrorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, Envelope{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}
