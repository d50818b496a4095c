package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// BreakerState 熔断器状态
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Name string

	// Threshold 连续失败达到该值后打开
	Threshold uint32

	// ResetTimeout 打开状态持续时间，超时后进入半开
	ResetTimeout time.Duration

	// HalfOpenMax 半开状态允许的试探调用数
	HalfOpenMax uint32
}

// DefaultBreakerConfig 默认熔断器配置
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		Threshold:    5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  1,
	}
}

// Breaker 三态熔断器
type Breaker struct {
	name   string
	cb     *gobreaker.CircuitBreaker
	bus    *events.EventBus
	logger *logging.Logger
}

// NewBreaker 创建熔断器, bus 和 logger 可为 nil
func NewBreaker(cfg BreakerConfig, bus *events.EventBus, logger *logging.Logger) *Breaker {
	def := DefaultBreakerConfig(cfg.Name)
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMax == 0 {
		cfg.HalfOpenMax = def.HalfOpenMax
	}
	if logger == nil {
		logger = logging.Default
	}

	b := &Breaker{name: cfg.Name, bus: bus, logger: logger.Named("breaker")}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMax,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Threshold
		},
		IsSuccessful: func(err error) bool {
			return !IsBreakerFailure(err)
		},
		OnStateChange: b.onStateChange,
	})
	return b
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	b.logger.Warn(context.Background(), "circuit state changed", map[string]interface{}{
		"name": name,
		"from": from.String(),
		"to":   to.String(),
	})
	if b.bus != nil {
		b.bus.EmitMonitor(events.BreakerStateChangedEvent{Name: name, From: from.String(), To: to.String()})
	}
}

// Name 熔断器名称
func (b *Breaker) Name() string {
	return b.name
}

// State 当前状态
func (b *Breaker) State() BreakerState {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Counts 当前代的计数
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Execute 在熔断器保护下执行 fn
// 打开或半开超额时返回 circuit_open 类别错误，不调用 fn
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewCircuitOpenError(b.name)
	}
	return err
}
