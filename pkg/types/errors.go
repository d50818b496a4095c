package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind 错误类别
type ErrorKind string

const (
	KindTransport      ErrorKind = "transport"
	KindTimeout        ErrorKind = "timeout"
	KindRateLimit      ErrorKind = "rate_limit"
	KindAuthentication ErrorKind = "authentication"
	KindCircuitOpen    ErrorKind = "circuit_open"
	KindToolValidation ErrorKind = "tool_validation"
	KindSafetyBlocked  ErrorKind = "safety_blocked"
	KindLLM            ErrorKind = "llm"
	KindRemote         ErrorKind = "remote"
)

// Error 带类别的错误
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string

	// HTTP 相关
	Status int
	Body   string

	// LLM 相关
	Provider string
	Model    string

	// RetryAfter 服务端建议的等待时间（仅 rate_limit）
	RetryAfter time.Duration

	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Provider != "" {
		fmt.Fprintf(&b, " [%s", e.Provider)
		if e.Model != "" {
			fmt.Fprintf(&b, "/%s", e.Model)
		}
		b.WriteString("]")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf 返回错误链中第一个 *Error 的类别，没有则为空
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind 判断错误链中是否包含指定类别
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// NewTransportError 创建传输层错误
func NewTransportError(code string, cause error) *Error {
	return &Error{Kind: KindTransport, Code: code, Cause: cause}
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(cause error) *Error {
	return &Error{Kind: KindTimeout, Code: "ETIMEDOUT", Cause: cause}
}

// NewAuthError 创建认证错误
func NewAuthError(message string, status int, body string) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Status: status, Body: body}
}

// NewRateLimitError 创建限流错误
func NewRateLimitError(provider, model string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Provider:   provider,
		Model:      model,
		Status:     429,
		Message:    fmt.Sprintf("rate limited, retry after %s", retryAfter),
		RetryAfter: retryAfter,
	}
}

// NewLLMError 创建 LLM 调用错误
func NewLLMError(provider, model string, status int, body string) *Error {
	return &Error{Kind: KindLLM, Provider: provider, Model: model, Status: status, Body: body, Message: truncate(body, 500)}
}

// NewCircuitOpenError 创建熔断错误
func NewCircuitOpenError(name string) *Error {
	return &Error{Kind: KindCircuitOpen, Message: fmt.Sprintf("circuit %q is open", name)}
}

// NewValidationError 创建工具参数校验错误
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindToolValidation, Message: fmt.Sprintf(format, args...)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
