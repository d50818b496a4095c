package resilience

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// Predicate 判断错误是否可重试
type Predicate func(err error) bool

// CodeEquals 匹配 types.Error 的 Code 字段
func CodeEquals(code string) Predicate {
	return func(err error) bool {
		var e *types.Error
		return errors.As(err, &e) && e.Code == code
	}
}

// MessageContains 匹配错误信息子串（不区分大小写）
func MessageContains(substr string) Predicate {
	substr = strings.ToLower(substr)
	return func(err error) bool {
		return strings.Contains(strings.ToLower(err.Error()), substr)
	}
}

// KindIs 匹配错误类别
func KindIs(kind types.ErrorKind) Predicate {
	return func(err error) bool {
		return types.IsKind(err, kind)
	}
}

// TransportPredicates 默认的传输层可重试判定
func TransportPredicates() []Predicate {
	return []Predicate{
		KindIs(types.KindTransport),
		KindIs(types.KindTimeout),
		CodeEquals("ECONNRESET"),
		CodeEquals("ECONNREFUSED"),
		CodeEquals("ETIMEDOUT"),
		MessageContains("connection reset"),
		MessageContains("connection refused"),
	}
}

// RetryPolicy 重试策略
type RetryPolicy struct {
	// MaxAttempts 首次调用之后的最大重试次数
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// AttemptTimeout 单次尝试的超时，0 表示不限制
	AttemptTimeout time.Duration

	Retryable []Predicate
}

// DefaultRetryPolicy 外部 LLM / API 调用的默认策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Retryable:   TransportPredicates(),
	}
}

// IsRetryable 任一判定命中即可重试
func (p RetryPolicy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, match := range p.Retryable {
		if match(err) {
			return true
		}
	}
	return false
}

// BackOff 返回第 k 次失败后等待 min(base·2^k, max)·[0.75, 1.25] 的退避序列
func (p RetryPolicy) BackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0.25,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// RetryNotify 在每次等待前回调
type RetryNotify func(attempt int, err error, delay time.Duration)

type retryConfig struct {
	timer  backoff.Timer
	notify RetryNotify
}

// RetryOption 重试选项
type RetryOption func(*retryConfig)

// WithTimer 替换等待使用的定时器（测试中用于跳过真实等待）
func WithTimer(t backoff.Timer) RetryOption {
	return func(c *retryConfig) { c.timer = t }
}

// WithNotify 设置重试回调
func WithNotify(fn RetryNotify) RetryOption {
	return func(c *retryConfig) { c.notify = fn }
}

// Retry 按策略执行 fn
func Retry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error, opts ...RetryOption) error {
	_, err := RetryWithData(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}

// RetryWithData 按策略执行 fn 并返回其结果
func RetryWithData[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error), opts ...RetryOption) (T, error) {
	cfg := &retryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		actx, cancel := ctx, context.CancelFunc(func() {})
		if policy.AttemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}
		defer cancel()

		v, err := fn(actx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		if errors.Is(actx.Err(), context.DeadlineExceeded) && types.KindOf(err) == "" {
			err = types.NewTimeoutError(err)
		}
		if !policy.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	maxRetries := policy.MaxAttempts
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy.BackOff(), uint64(maxRetries)), ctx)

	var notify backoff.Notify
	if cfg.notify != nil {
		notify = func(err error, d time.Duration) { cfg.notify(attempt, err, d) }
	}
	return backoff.RetryNotifyWithTimerAndData(operation, b, notify, cfg.timer)
}
