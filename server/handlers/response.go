// Package handlers 实现 HTTP 接口的请求处理。
package handlers

import (
	"github.com/gin-gonic/gin"
)

// APIResponse 统一的 API 响应格式
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError 统一的错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// JSON 发送成功响应
func JSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, &APIResponse{Success: status < 400, Data: data})
}

// Error 发送错误响应
func Error(c *gin.Context, status int, code, message string) {
	ErrorWithData(c, status, code, message, nil)
}

// ErrorWithData 发送错误响应并附带部分数据
func ErrorWithData(c *gin.Context, status int, code, message string, data interface{}) {
	c.AbortWithStatusJSON(status, &APIResponse{
		Success: false,
		Data:    data,
		Error:   &APIError{Code: code, Message: message},
	})
}
