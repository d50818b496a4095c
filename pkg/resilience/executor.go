package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/logging"
)

// Executor 组合熔断器与重试: breaker ∘ retry
// 一整轮重试对熔断器只记一次成功或失败
type Executor struct {
	name    string
	policy  RetryPolicy
	breaker *Breaker
	timer   backoff.Timer
	logger  *logging.Logger
}

type executorOptions struct {
	policy        RetryPolicy
	breakerConfig BreakerConfig
	noBreaker     bool
	bus           *events.EventBus
	logger        *logging.Logger
	timer         backoff.Timer
}

// ExecutorOption 执行器选项
type ExecutorOption func(*executorOptions)

// WithRetryPolicy 设置重试策略
func WithRetryPolicy(p RetryPolicy) ExecutorOption {
	return func(o *executorOptions) { o.policy = p }
}

// WithBreakerConfig 设置熔断器配置
func WithBreakerConfig(c BreakerConfig) ExecutorOption {
	return func(o *executorOptions) { o.breakerConfig = c }
}

// WithoutBreaker 只做重试
func WithoutBreaker() ExecutorOption {
	return func(o *executorOptions) { o.noBreaker = true }
}

// WithEventBus 熔断器状态变化发送到事件总线
func WithEventBus(bus *events.EventBus) ExecutorOption {
	return func(o *executorOptions) { o.bus = bus }
}

// WithLogger 设置日志
func WithLogger(l *logging.Logger) ExecutorOption {
	return func(o *executorOptions) { o.logger = l }
}

// WithBackoffTimer 替换退避等待的定时器
func WithBackoffTimer(t backoff.Timer) ExecutorOption {
	return func(o *executorOptions) { o.timer = t }
}

// NewExecutor 创建执行器，默认使用 DefaultRetryPolicy 和 DefaultBreakerConfig
func NewExecutor(name string, opts ...ExecutorOption) *Executor {
	o := &executorOptions{
		policy:        DefaultRetryPolicy(),
		breakerConfig: DefaultBreakerConfig(name),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.Default
	}
	if o.breakerConfig.Name == "" {
		o.breakerConfig.Name = name
	}

	e := &Executor{
		name:   name,
		policy: o.policy,
		timer:  o.timer,
		logger: o.logger.Named("resilience"),
	}
	if !o.noBreaker {
		e.breaker = NewBreaker(o.breakerConfig, o.bus, o.logger)
	}
	return e
}

// Breaker 返回内部熔断器，未启用时为 nil
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// Policy 返回重试策略
func (e *Executor) Policy() RetryPolicy {
	return e.policy
}

// Do 执行 fn
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do 在执行器保护下执行 fn 并返回结果
func Do[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	series := func() error {
		v, err := RetryWithData(ctx, e.policy, fn,
			WithTimer(e.timer),
			WithNotify(func(attempt int, err error, delay time.Duration) {
				e.logger.Warn(ctx, "call failed, retrying", map[string]interface{}{
					"executor": e.name,
					"attempt":  attempt,
					"delay":    delay.String(),
					"error":    err.Error(),
				})
			}),
		)
		result = v
		return err
	}

	if e.breaker == nil {
		err := series()
		return result, err
	}
	err := e.breaker.Execute(series)
	return result, err
}
