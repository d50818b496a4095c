// Package observability 提供 HTTP 健康检查。
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wordflowlab/abapagents/pkg/resilience"
)

// HealthStatus 健康状态
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// DefaultCheckTimeout 单个检查的超时
const DefaultCheckTimeout = 2 * time.Second

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// Detailer 可选接口, 检查通过时提供状态描述
type Detailer interface {
	Detail() string
}

// HealthInfo 健康信息
type HealthInfo struct {
	Status       HealthStatus           `json:"status"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
	Timestamp    time.Time              `json:"timestamp"`
	Checks       map[string]CheckResult `json:"checks,omitempty"`
	Dependencies map[string]bool        `json:"dependencies,omitempty"`
}

// CheckResult 检查结果
type CheckResult struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	Error     string       `json:"error,omitempty"`
	LatencyMS int64        `json:"latency_ms"`
}

// HealthChecker 汇总已注册检查与外部依赖的配置状态
type HealthChecker struct {
	mu           sync.RWMutex
	checks       map[string]HealthCheck
	dependencies map[string]bool
	startTime    time.Time
	version      string
	timeout      time.Duration
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checks:       make(map[string]HealthCheck),
		dependencies: make(map[string]bool),
		startTime:    time.Now(),
		version:      version,
		timeout:      DefaultCheckTimeout,
	}
}

// SetCheckTimeout 设置单个检查的超时, <=0 时不限制
func (h *HealthChecker) SetCheckTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout = d
}

// RegisterCheck 注册健康检查, 同名检查被替换
func (h *HealthChecker) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[check.Name()] = check
}

// SetDependency 记录某个外部依赖是否已配置
func (h *HealthChecker) SetDependency(name string, configured bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dependencies[name] = configured
}

// Check 并发执行所有健康检查, 任一失败时整体为 degraded。
// 依赖未配置不影响状态: 离线模式下服务仍然可用。
func (h *HealthChecker) Check(ctx context.Context) *HealthInfo {
	h.mu.RLock()
	checks := make([]HealthCheck, 0, len(h.checks))
	for _, check := range h.checks {
		checks = append(checks, check)
	}
	deps := make(map[string]bool, len(h.dependencies))
	for name, ok := range h.dependencies {
		deps[name] = ok
	}
	timeout := h.timeout
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runCheck(ctx, check, timeout)
		}()
	}
	wg.Wait()

	info := &HealthInfo{
		Status:       HealthStatusHealthy,
		Version:      h.version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Timestamp:    time.Now().UTC(),
		Checks:       make(map[string]CheckResult, len(checks)),
		Dependencies: deps,
	}
	for i, check := range checks {
		info.Checks[check.Name()] = results[i]
		if results[i].Status == HealthStatusUnhealthy {
			info.Status = HealthStatusDegraded
		}
	}
	return info
}

func runCheck(ctx context.Context, check HealthCheck, timeout time.Duration) CheckResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := check.Check(ctx)
	result := CheckResult{LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = err.Error()
		return result
	}
	result.Status = HealthStatusHealthy
	result.Message = "OK"
	if d, ok := check.(Detailer); ok {
		result.Message = d.Detail()
	}
	return result
}

// FuncCheck 函数形式的健康检查
type FuncCheck struct {
	name  string
	check func(context.Context) error
}

// NewFuncCheck 创建函数形式的健康检查
func NewFuncCheck(name string, check func(context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, check: check}
}

func (c *FuncCheck) Name() string {
	return c.name
}

func (c *FuncCheck) Check(ctx context.Context) error {
	if c.check != nil {
		return c.check(ctx)
	}
	return nil
}

// breakerCheck 熔断器打开时报告不健康, 其余状态作为描述返回
type breakerCheck struct {
	breaker *resilience.Breaker
}

// BreakerCheck 为熔断器创建健康检查, 名称为 breaker:<name>
func BreakerCheck(b *resilience.Breaker) HealthCheck {
	return breakerCheck{breaker: b}
}

func (c breakerCheck) Name() string {
	return "breaker:" + c.breaker.Name()
}

func (c breakerCheck) Check(context.Context) error {
	if state := c.breaker.State(); state == resilience.StateOpen {
		return fmt.Errorf("circuit %s is %s", c.breaker.Name(), state)
	}
	return nil
}

func (c breakerCheck) Detail() string {
	return "circuit " + string(c.breaker.State())
}
