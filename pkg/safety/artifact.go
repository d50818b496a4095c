// Package safety 提供写入与激活远端对象之前的策略检查。
package safety

import (
	"context"
	"fmt"
	"strings"
)

// 工件类型
const (
	TypeClass          = "class"
	TypeInterface      = "interface"
	TypeFunctionModule = "function-module"
	TypeProgram        = "program"
	TypeConfiguration  = "configuration"
)

var objectTypeMap = map[string]string{
	"CLAS": TypeClass,
	"INTF": TypeInterface,
	"FUGR": TypeFunctionModule,
	"PROG": TypeProgram,
	"TABL": TypeConfiguration,
	"DTEL": TypeProgram,
}

// ArtifactType 将对象类型代码映射为工件类型, 未知代码视为 program
func ArtifactType(code string) string {
	if t, ok := objectTypeMap[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return t
	}
	return TypeProgram
}

// 工件操作
const (
	ActionWrite    = "write"
	ActionActivate = "activate"
)

// Artifact 待检查的工件描述, Action 为空时按写入处理
type Artifact struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Action    string `json:"action,omitempty"`
	Source    string `json:"source,omitempty"`
	Transport string `json:"transport,omitempty"`
	Package   string `json:"package,omitempty"`
}

// ArtifactFromInput 从工具输入构建工件
func ArtifactFromInput(input map[string]interface{}) Artifact {
	get := func(key string) string {
		v, ok := input[key]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
	return Artifact{
		Name:      strings.ToUpper(get("object_name")),
		Type:      ArtifactType(get("object_type")),
		Source:    get("source"),
		Transport: get("transport"),
		Package:   strings.ToUpper(get("package")),
	}
}

// Failure 单条检查失败
type Failure struct {
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

// Verdict 检查结论
type Verdict struct {
	Approved bool      `json:"approved"`
	Failures []Failure `json:"failures,omitempty"`
	Summary  string    `json:"summary,omitempty"`
}

// Messages 返回所有失败消息
func (v *Verdict) Messages() []string {
	out := make([]string, 0, len(v.Failures))
	for _, f := range v.Failures {
		out = append(out, f.Message)
	}
	return out
}

// Evaluator 策略评估器
type Evaluator interface {
	Evaluate(ctx context.Context, artifact Artifact) (*Verdict, error)
}

// EvaluatorFunc 函数适配器
type EvaluatorFunc func(ctx context.Context, artifact Artifact) (*Verdict, error)

// Evaluate 实现 Evaluator
func (f EvaluatorFunc) Evaluate(ctx context.Context, artifact Artifact) (*Verdict, error) {
	return f(ctx, artifact)
}
