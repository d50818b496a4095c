package safety

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Policy 规则策略, 可从 YAML 文件加载
type Policy struct {
	// AllowedObjectPatterns 允许写入的对象名 glob, 为空表示不限制
	AllowedObjectPatterns []string `yaml:"allowed_object_patterns"`

	// ForbiddenStatements 禁止出现在源码中的语句, 大小写不敏感, 按空白归一化匹配
	ForbiddenStatements []string `yaml:"forbidden_statements"`

	// RequireTransportOutside 匹配这些包 glob 的对象可以没有传输请求
	RequireTransportOutside []string `yaml:"require_transport_outside"`

	MaxSourceChars int  `yaml:"max_source_chars"`
	DetectSecrets  bool `yaml:"detect_secrets"`
}

// DefaultPolicy 默认策略: 仅客户命名空间, 本地包之外需要传输请求
func DefaultPolicy() *Policy {
	return &Policy{
		AllowedObjectPatterns:   []string{"Z*", "Y*", "/*/Z*", "/*/Y*"},
		ForbiddenStatements:     []string{"EXEC SQL", "DELETE FROM", "CALL 'SYSTEM'", "GENERATE SUBROUTINE POOL", "INSERT REPORT"},
		RequireTransportOutside: []string{"$*"},
		MaxSourceChars:          200000,
		DetectSecrets:           true,
	}
}

// LoadPolicy 从 YAML 文件读取策略, 未出现的字段保持零值
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy 解析 YAML 策略并校验 glob
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	for _, pattern := range append(append([]string{}, p.AllowedObjectPatterns...), p.RequireTransportOutside...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
	}
	return &p, nil
}

// RuleEvaluator 基于 Policy 的评估器, 策略可在运行时原子替换
type RuleEvaluator struct {
	policy atomic.Pointer[Policy]
}

// NewRuleEvaluator 创建评估器, p 为 nil 时使用 DefaultPolicy
func NewRuleEvaluator(p *Policy) *RuleEvaluator {
	if p == nil {
		p = DefaultPolicy()
	}
	e := &RuleEvaluator{}
	e.policy.Store(p)
	return e
}

// Policy 返回当前策略
func (e *RuleEvaluator) Policy() *Policy {
	return e.policy.Load()
}

// SetPolicy 替换策略
func (e *RuleEvaluator) SetPolicy(p *Policy) {
	if p != nil {
		e.policy.Store(p)
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// Evaluate 实现 Evaluator
func (e *RuleEvaluator) Evaluate(ctx context.Context, a Artifact) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := e.policy.Load()
	var failures []Failure

	if len(p.AllowedObjectPatterns) > 0 && !matchAny(p.AllowedObjectPatterns, a.Name) {
		failures = append(failures, Failure{Rule: "namespace", Message: fmt.Sprintf("object %s is outside the allowed namespace", a.Name)})
	}

	// 激活作用于已写入的对象, 传输请求在写入时已经确定
	if a.Action != ActionActivate && a.Transport == "" && !(a.Package != "" && matchAny(p.RequireTransportOutside, a.Package)) {
		failures = append(failures, Failure{Rule: "transport", Message: "missing transport"})
	}

	if a.Source != "" {
		if p.MaxSourceChars > 0 && len(a.Source) > p.MaxSourceChars {
			failures = append(failures, Failure{Rule: "size", Message: fmt.Sprintf("source exceeds %d characters", p.MaxSourceChars)})
		}
		code := stripComments(a.Source)
		normalized := strings.ToUpper(whitespace.ReplaceAllString(code, " "))
		for _, stmt := range p.ForbiddenStatements {
			needle := strings.ToUpper(whitespace.ReplaceAllString(strings.TrimSpace(stmt), " "))
			if needle != "" && strings.Contains(normalized, needle) {
				failures = append(failures, Failure{Rule: "statement", Message: fmt.Sprintf("forbidden statement %s", needle)})
			}
		}
		if p.DetectSecrets {
			for _, m := range DetectSecrets(code) {
				failures = append(failures, Failure{Rule: "secret", Message: fmt.Sprintf("hard-coded %s at line %d", strings.ReplaceAll(string(m.Kind), "_", " "), m.Line)})
			}
		}
	}

	v := &Verdict{Approved: len(failures) == 0, Failures: failures}
	if v.Approved {
		v.Summary = fmt.Sprintf("%s %s approved", a.Type, a.Name)
	} else {
		v.Summary = fmt.Sprintf("%s %s blocked by %d rule(s)", a.Type, a.Name, len(failures))
	}
	return v, nil
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(strings.ToUpper(p), name); ok {
			return true
		}
	}
	return false
}

// stripComments 去掉整行注释 (*) 和行内注释 ("), 保留行号
func stripComments(source string) string {
	lines := strings.Split(source, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(line, "*") {
			out = append(out, "")
			continue
		}
		if i := strings.Index(line, `"`); i >= 0 {
			line = line[:i]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
