package agent

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// 角色标识
const (
	RolePlanner     = "planner"
	RoleDesigner    = "designer"
	RoleImplementer = "implementer"
	RoleTester      = "tester"
	RoleReviewer    = "reviewer"
)

// CommandWorkflow 依次运行全部角色的命令
const CommandWorkflow = "workflow"

//go:embed agents.yaml
var agentsYAML []byte

// Definition 角色定义, 加载后不可变
type Definition struct {
	Role         string   `yaml:"id" json:"role"`
	Name         string   `yaml:"name" json:"name"`
	Command      string   `yaml:"command" json:"command"`
	SystemPrompt string   `yaml:"system_prompt" json:"-"`
	Tools        []string `yaml:"tools" json:"tools"`
}

// DefinitionRegistry 角色注册表, 保持声明顺序
type DefinitionRegistry struct {
	ordered   []*Definition
	byRole    map[string]*Definition
	byCommand map[string]*Definition
}

// ParseDefinitions 解析 YAML 角色定义
func ParseDefinitions(data []byte) (*DefinitionRegistry, error) {
	var doc struct {
		Agents []*Definition `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse agent definitions: %w", err)
	}

	r := &DefinitionRegistry{
		byRole:    make(map[string]*Definition),
		byCommand: make(map[string]*Definition),
	}
	for _, d := range doc.Agents {
		if d.Role == "" || d.Name == "" || d.Command == "" {
			return nil, fmt.Errorf("agent definition incomplete: %+v", *d)
		}
		if _, dup := r.byRole[d.Role]; dup {
			return nil, fmt.Errorf("duplicate agent role %q", d.Role)
		}
		if d.Command == CommandWorkflow {
			return nil, fmt.Errorf("agent %q uses reserved command %q", d.Role, CommandWorkflow)
		}
		r.ordered = append(r.ordered, d)
		r.byRole[d.Role] = d
		r.byCommand[d.Command] = d
	}
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *DefinitionRegistry
)

// Definitions 返回内置的五个角色
func Definitions() *DefinitionRegistry {
	defaultOnce.Do(func() {
		r, err := ParseDefinitions(agentsYAML)
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Get 按角色获取
func (r *DefinitionRegistry) Get(role string) (*Definition, error) {
	d, ok := r.byRole[role]
	if !ok {
		return nil, &DefinitionNotFoundError{Key: role}
	}
	return d, nil
}

// ByCommand 按命令别名获取
func (r *DefinitionRegistry) ByCommand(command string) (*Definition, error) {
	d, ok := r.byCommand[command]
	if !ok {
		return nil, &DefinitionNotFoundError{Key: command}
	}
	return d, nil
}

// List 按工作流顺序返回全部角色
func (r *DefinitionRegistry) List() []*Definition {
	out := make([]*Definition, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Commands 返回所有可用命令, 以 workflow 结尾
func (r *DefinitionRegistry) Commands() []string {
	out := make([]string, 0, len(r.ordered)+1)
	for _, d := range r.ordered {
		out = append(out, d.Command)
	}
	return append(out, CommandWorkflow)
}

// DefinitionNotFoundError 角色或命令不存在
type DefinitionNotFoundError struct {
	Key string
}

func (e *DefinitionNotFoundError) Error() string {
	return "unknown agent or command: " + e.Key
}
