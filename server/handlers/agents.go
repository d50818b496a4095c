package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wordflowlab/abapagents/pkg/agent"
)

// AgentsResponse 角色列表
type AgentsResponse struct {
	Mock     bool                `json:"mock"`
	Commands []string            `json:"commands"`
	Agents   []*agent.Definition `json:"agents"`
}

// AgentHandler 角色查询处理器
type AgentHandler struct {
	runner Runner
}

// NewAgentHandler 创建处理器
func NewAgentHandler(runner Runner) *AgentHandler {
	return &AgentHandler{runner: runner}
}

// List 列出角色、命令别名和工具
// GET /api/v1/agents
func (h *AgentHandler) List(c *gin.Context) {
	reg := h.runner.Registry()
	JSON(c, http.StatusOK, &AgentsResponse{
		Mock:     h.runner.Mock(),
		Commands: reg.Commands(),
		Agents:   reg.List(),
	})
}
