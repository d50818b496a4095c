package workflow

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wordflowlab/abapagents/pkg/agent"
	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// MockDuration 离线结果使用的固定耗时
const MockDuration = "0.1s (mock)"

//go:embed fixtures/mock_outputs.yaml
var mockOutputsYAML []byte

// MockRunner 从内置夹具返回预置结果, 不访问模型与远端系统
type MockRunner struct {
	outputs map[string]*types.AgentResult
	bus     *events.EventBus
}

// NewMockRunner 使用内置夹具创建 MockRunner
func NewMockRunner(bus *events.EventBus) (*MockRunner, error) {
	return ParseMockOutputs(mockOutputsYAML, bus)
}

// ParseMockOutputs 解析按角色索引的夹具
func ParseMockOutputs(data []byte, bus *events.EventBus) (*MockRunner, error) {
	outputs := make(map[string]*types.AgentResult)
	if err := yaml.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("parse mock outputs: %w", err)
	}
	for role, res := range outputs {
		if res == nil {
			return nil, fmt.Errorf("mock output for %q is empty", role)
		}
		if res.Role == "" {
			res.Role = role
		}
	}
	return &MockRunner{outputs: outputs, bus: bus}, nil
}

// Run 返回角色的夹具副本
func (m *MockRunner) Run(ctx context.Context, def *agent.Definition, requirement string, prior *types.AgentResult) (*types.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fixture, ok := m.outputs[def.Role]
	if !ok {
		return nil, fmt.Errorf("no mock output for agent %q", def.Role)
	}

	if m.bus != nil {
		m.bus.EmitProgress(events.AgentStartEvent{Role: def.Role, Requirement: requirement})
	}
	res := fixture.Clone()
	res.Duration = MockDuration
	res.Usage = &types.TokenUsage{}
	if m.bus != nil {
		m.bus.EmitProgress(events.AgentDoneEvent{Role: def.Role, Title: res.Title, Duration: 100 * time.Millisecond})
	}
	return res, nil
}
