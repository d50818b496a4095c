package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/resilience"
	"github.com/wordflowlab/abapagents/pkg/types"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout 单次 LLM HTTP 请求默认超时
const DefaultTimeout = 120 * time.Second

// options 所有 provider 共享的可选依赖
type options struct {
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *logging.Logger
}

// Option provider 选项
type Option func(*options)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithExecutor 替换重试/熔断执行器
func WithExecutor(e *resilience.Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithLogger 设置日志
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(name string, cfg *types.ModelConfig, opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Default
	}
	if o.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		o.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if o.executor == nil {
		o.executor = resilience.NewExecutor("llm-"+name, resilience.WithLogger(o.logger))
	}
	return o
}

// jsonClient 发送 JSON 请求并把 HTTP 状态映射为类别错误
type jsonClient struct {
	provider string
	model    string
	client   *http.Client
	executor *resilience.Executor
	logger   *logging.Logger
}

func (c *jsonClient) post(ctx context.Context, url string, headers map[string]string, body interface{}) (map[string]interface{}, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	return resilience.Do(ctx, c.executor, func(ctx context.Context) (map[string]interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, resilience.Classify(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.Classify(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Warn(ctx, "api error response", map[string]interface{}{
				"provider": c.provider,
				"model":    c.model,
				"status":   resp.StatusCode,
			})
			return nil, c.statusError(resp, data)
		}

		var apiResp map[string]interface{}
		if err := json.Unmarshal(data, &apiResp); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return apiResp, nil
	})
}

func (c *jsonClient) statusError(resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return types.NewRateLimitError(c.provider, c.model, parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case http.StatusUnauthorized, http.StatusForbidden:
		e := types.NewAuthError("provider rejected credentials", resp.StatusCode, string(body))
		e.Provider, e.Model = c.provider, c.model
		return e
	default:
		return types.NewLLMError(c.provider, c.model, resp.StatusCode, string(body))
	}
}

// parseRetryAfter 支持秒数和 HTTP-date 两种格式
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}

func maxTokens(cfg *types.ModelConfig, opts *Options) int {
	if opts != nil && opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}
	return types.DefaultMaxTokens
}
