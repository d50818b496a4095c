package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/resilience"
	"github.com/wordflowlab/abapagents/pkg/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// ExpiryMargin 从服务端给出的有效期中扣除的安全余量
	ExpiryMargin = 60 * time.Second

	// DefaultFetchTimeout 获取 token 的超时
	DefaultFetchTimeout = 30 * time.Second

	maxTokenResponse = 1 << 20
)

// TokenCache client-credentials token 缓存
type TokenCache struct {
	cfg          types.OAuthConfig
	client       *http.Client
	now          func() time.Time
	fetchTimeout time.Duration
	logger       *logging.Logger

	group singleflight.Group

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// Option TokenCache 选项
type Option func(*TokenCache)

// WithHTTPClient 设置获取 token 使用的 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(tc *TokenCache) { tc.client = c }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(tc *TokenCache) { tc.now = now }
}

// WithFetchTimeout 设置获取 token 的超时
func WithFetchTimeout(d time.Duration) Option {
	return func(tc *TokenCache) { tc.fetchTimeout = d }
}

// WithLogger 设置日志
func WithLogger(l *logging.Logger) Option {
	return func(tc *TokenCache) { tc.logger = l }
}

// NewTokenCache 创建 token 缓存
func NewTokenCache(cfg types.OAuthConfig, opts ...Option) *TokenCache {
	tc := &TokenCache{
		cfg:          cfg,
		client:       http.DefaultClient,
		now:          time.Now,
		fetchTimeout: DefaultFetchTimeout,
		logger:       logging.Default,
	}
	for _, opt := range opts {
		opt(tc)
	}
	tc.logger = tc.logger.Named("oauth2")
	return tc
}

// Token 返回有效的 bearer token，缓存过期时刷新
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token, expiry := c.token, c.expiry
	c.mu.RUnlock()

	if token != "" && c.now().Before(expiry) {
		return token, nil
	}
	return c.Refresh(ctx)
}

// Refresh 无条件获取新 token 并写入缓存，并发调用合并为一次请求。
// 共享的请求不随单个调用方取消, 只受 fetchTimeout 约束; 调用方自身的 ctx 取消时立即返回。
func (c *TokenCache) Refresh(ctx context.Context) (string, error) {
	ch := c.group.DoChan("token", func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fetch(fctx)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *TokenCache) fetch(ctx context.Context) (string, error) {
	if c.cfg.TokenURL == "" || c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return "", types.NewAuthError("missing OAuth2 client credentials", 0, "")
	}

	cc := clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.TokenURL,
		Scopes:       c.cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	var hc http.Client
	if c.client != nil {
		hc = *c.client
	}
	rec := &responseRecorder{base: hc.Transport}
	hc.Transport = rec
	fctx := context.WithValue(ctx, oauth2.HTTPClient, &hc)

	requested := c.now()
	tok, err := cc.Token(fctx)
	if err != nil {
		return "", c.mapError(err, rec)
	}

	lifetime, ok := expiresIn(tok)
	if !ok && !tok.Expiry.IsZero() {
		lifetime = time.Until(tok.Expiry)
	}
	expiry := requested.Add(lifetime - ExpiryMargin)

	c.mu.Lock()
	c.token = tok.AccessToken
	c.expiry = expiry
	c.mu.Unlock()

	c.logger.Debug(ctx, "token refreshed", map[string]interface{}{
		"token_url": c.cfg.TokenURL,
		"expires":   expiry.Format(time.RFC3339),
	})
	return tok.AccessToken, nil
}

func (c *TokenCache) mapError(err error, rec *responseRecorder) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return types.NewAuthError("token request rejected", status, string(re.Body))
	}
	if strings.Contains(err.Error(), "missing access_token") {
		return types.NewAuthError("token response missing access_token", rec.status, string(rec.body))
	}
	classified := resilience.Classify(err)
	if types.KindOf(classified) != "" || errors.Is(classified, context.Canceled) {
		return classified
	}
	return types.NewAuthError(err.Error(), 0, "")
}

// responseRecorder 记录 token 端点的状态码和响应体
type responseRecorder struct {
	base   http.RoundTripper
	status int
	body   []byte
}

func (r *responseRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := r.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	r.status = resp.StatusCode
	r.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// expiresIn 读取服务端原始的 expires_in 字段
func expiresIn(tok *oauth2.Token) (time.Duration, bool) {
	var secs float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		secs = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		secs = f
	default:
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// Headers 返回下游请求需要的认证头
func (c *TokenCache) Headers(ctx context.Context) (http.Header, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if c.cfg.TenantHeader != "" && c.cfg.TenantID != "" {
		h.Set(c.cfg.TenantHeader, c.cfg.TenantID)
	}
	return h, nil
}

// Invalidate 清除缓存，下次调用 Token 时重新获取
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = time.Time{}
}
