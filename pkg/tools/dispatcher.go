package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wordflowlab/abapagents/pkg/types"
)

// Dispatcher 将工具调用映射到远端操作
type Dispatcher struct {
	remote RemoteOperations
}

// NewDispatcher 创建分发器
func NewDispatcher(remote RemoteOperations) *Dispatcher {
	return &Dispatcher{remote: remote}
}

// UnknownToolResult 未知工具返回给模型的结果
func UnknownToolResult(name string) map[string]interface{} {
	return map[string]interface{}{"error": "Unknown tool: " + name}
}

// Execute 执行工具
// 未知工具返回 {"error": "Unknown tool: <name>"} 而不是错误
func (d *Dispatcher) Execute(ctx context.Context, name string, input map[string]interface{}) (interface{}, error) {
	desc, ok := Lookup(name)
	if !ok {
		return UnknownToolResult(name), nil
	}
	if err := Validate(desc, input); err != nil {
		return nil, err
	}

	switch name {
	case ReadSource:
		return d.remote.Read(ctx, str(input, "object_name"), str(input, "object_type"))
	case WriteSource:
		ctx = ContextWithTransport(ctx, str(input, "transport"))
		return d.remote.Write(ctx, str(input, "object_name"), str(input, "source"), str(input, "object_type"), str(input, "package"))
	case ListObjects:
		return d.remote.List(ctx, str(input, "package"))
	case SearchRepository:
		return d.remote.Search(ctx, str(input, "query"), str(input, "object_type"))
	case DataDictionary:
		return d.remote.DDIC(ctx, str(input, "object_name"))
	case ActivateObject:
		return d.remote.Activate(ctx, str(input, "object_name"), str(input, "object_type"))
	case RunUnitTests:
		return d.remote.Tests(ctx, str(input, "object_name"), boolean(input, "with_coverage"))
	case RunSyntaxCheck:
		return d.remote.Syntax(ctx, str(input, "object_name"), str(input, "object_type"))
	}
	return UnknownToolResult(name), nil
}

// Validate 按注册的 schema 校验必填字段与对象类型
func Validate(desc Descriptor, input map[string]interface{}) error {
	for _, field := range desc.Required() {
		v, ok := input[field]
		s, isStr := v.(string)
		if !ok || v == nil || (isStr && strings.TrimSpace(s) == "") {
			return types.NewValidationError("%s: missing required field %q", desc.Name, field)
		}
		if !isStr {
			return types.NewValidationError("%s: field %q must be a string", desc.Name, field)
		}
	}
	if v, ok := input["object_type"]; ok && v != nil {
		ot := strings.ToUpper(fmt.Sprint(v))
		if ot != "" && !validObjectType(ot) {
			return types.NewValidationError("%s: unsupported object_type %q (allowed: %s)", desc.Name, ot, strings.Join(ObjectTypes, ", "))
		}
	}
	return nil
}

func validObjectType(t string) bool {
	for _, ot := range ObjectTypes {
		if ot == t {
			return true
		}
	}
	return false
}

func str(input map[string]interface{}, key string) string {
	v, ok := input[key]
	if !ok || v == nil {
		return ""
	}
	s := fmt.Sprint(v)
	if key == "object_type" {
		s = strings.ToUpper(s)
	}
	return s
}

func boolean(input map[string]interface{}, key string) bool {
	switch v := input[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
