// Package adt 实现面向 ABAP 开发工具网关的 REST 客户端。
//
// 每次调用都经过 resilience.Executor (熔断 + 重试) 并携带 OAuth2 认证头;
// 收到 401 时使 token 缓存失效。
package adt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/resilience"
	"github.com/wordflowlab/abapagents/pkg/tools"
	"github.com/wordflowlab/abapagents/pkg/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout 远端操作默认超时
const DefaultTimeout = 30 * time.Second

// HeaderSource 提供认证请求头, 由 auth.TokenCache 实现
type HeaderSource interface {
	Headers(ctx context.Context) (http.Header, error)
	Invalidate()
}

// Config 客户端配置
type Config struct {
	BaseURL string

	// Client SAP 客户端号, 作为 sap-client 查询参数
	Client string

	// Transport 未在调用中指定时使用的默认传输请求
	Transport string

	Timeout time.Duration
}

// Client ADT 网关客户端
type Client struct {
	cfg      Config
	baseURL  string
	http     *http.Client
	auth     HeaderSource
	executor *resilience.Executor
	bus      *events.EventBus
	logger   *logging.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithExecutor 替换执行器
func WithExecutor(e *resilience.Executor) Option {
	return func(cl *Client) { cl.executor = e }
}

// WithLogger 设置日志
func WithLogger(l *logging.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithEventBus 熔断器状态变化发送到事件总线, 仅在未指定执行器时生效
func WithEventBus(bus *events.EventBus) Option {
	return func(cl *Client) { cl.bus = bus }
}

func newExecutor(cfg Config, bus *events.EventBus, logger *logging.Logger) *resilience.Executor {
	policy := resilience.DefaultRetryPolicy()
	policy.AttemptTimeout = cfg.Timeout
	return resilience.NewExecutor("adt",
		resilience.WithRetryPolicy(policy),
		resilience.WithEventBus(bus),
		resilience.WithLogger(logger),
	)
}

// New 创建客户端, auth 为 nil 时不发送认证头
func New(cfg Config, auth HeaderSource, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("adt base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		auth:    auth,
		logger:  logging.Default,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("adt")
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if c.executor == nil {
		c.executor = newExecutor(cfg, c.bus, c.logger)
	}
	return c, nil
}

// Executor 返回内部执行器
func (c *Client) Executor() *resilience.Executor {
	return c.executor
}

// call 执行一次远端调用, out 为 nil 时忽略响应体
func (c *Client) call(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	if query == nil {
		query = url.Values{}
	}
	if c.cfg.Client != "" {
		query.Set("sap-client", c.cfg.Client)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	return c.executor.Do(ctx, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.auth != nil {
			h, err := c.auth.Headers(ctx)
			if err != nil {
				return err
			}
			for k, vs := range h {
				for _, v := range vs {
					req.Header.Add(k, v)
				}
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return resilience.Classify(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resilience.Classify(err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			if c.auth != nil {
				c.auth.Invalidate()
			}
			return types.NewAuthError("remote system rejected token", resp.StatusCode, string(data))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return remoteError(resp.StatusCode, data)
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	})
}

// remoteError 解析网关的错误体 {"message": "..."}
func remoteError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &types.Error{Kind: types.KindRemote, Status: status, Message: msg, Body: string(body)}
}

func objectPath(objectType, objectName string, suffix ...string) string {
	p := "/objects/"
	if objectType != "" {
		p += url.PathEscape(strings.ToUpper(objectType)) + "/"
	}
	p += url.PathEscape(strings.ToUpper(objectName))
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

var _ tools.RemoteOperations = (*Client)(nil)
