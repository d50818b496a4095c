package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wordflowlab/abapagents/pkg/agent"
	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/render"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// 输出格式
const (
	formatTerminal = "terminal"
	formatMarkdown = "markdown"
	formatJSON     = "json"
)

// runFlags 运行命令参数
type runFlags struct {
	format   string
	style    string
	width    int
	progress bool
}

// newAgentCmds 为每个命令别名和 workflow 创建子命令
func newAgentCmds(root *rootFlags) []*cobra.Command {
	reg := agent.Definitions()
	var cmds []*cobra.Command
	for _, command := range reg.Commands() {
		short := "Run all five agents in sequence"
		if def, err := reg.ByCommand(command); err == nil {
			short = fmt.Sprintf("Run the %s agent", def.Name)
		}
		cmds = append(cmds, newRunCmd(root, command, short))
	}
	return cmds
}

func newRunCmd(root *rootFlags, command, short string) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   command + " <requirement>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, root, flags, command, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&flags.format, "format", "o", formatTerminal, "output format: terminal, markdown, json")
	cmd.Flags().StringVar(&flags.style, "style", "dark", "terminal style: dark, light, notty, ...")
	cmd.Flags().IntVar(&flags.width, "width", render.MaxWidth, "terminal word-wrap width")
	cmd.Flags().BoolVar(&flags.progress, "progress", true, "print agent and tool progress to stderr")
	return cmd
}

func runCommand(cmd *cobra.Command, root *rootFlags, flags *runFlags, command, requirement string) error {
	switch flags.format {
	case formatTerminal, formatMarkdown, formatJSON:
	default:
		return fmt.Errorf("unknown format %q", flags.format)
	}
	if strings.TrimSpace(requirement) == "" {
		return fmt.Errorf("requirement must not be blank")
	}

	a, err := bootstrap(cmd, root)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if flags.progress {
		subscribeProgress(a.bus, cmd.ErrOrStderr())
	}

	done := a.metrics.WorkflowStarted()
	result, runErr := a.orch.Run(cmd.Context(), command, requirement)
	done()

	if result != nil && len(result.Results) > 0 {
		style := flags.style
		if root.noColor {
			style = "notty"
		}
		if err := writeResult(cmd.OutOrStdout(), result, flags.format, style, flags.width); err != nil {
			return err
		}
	}
	return runErr
}

// writeResult 按格式输出结果
func writeResult(w io.Writer, result *types.WorkflowResult, format, style string, width int) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case formatMarkdown:
		_, err := fmt.Fprintln(w, render.Markdown(result))
		return err
	default:
		_, err := fmt.Fprintln(w, render.Terminal(render.Markdown(result), style, width))
		return err
	}
}

// subscribeProgress 在 stderr 上输出 agent 与工具进度
func subscribeProgress(bus *events.EventBus, w io.Writer) {
	bus.On(events.AgentStartEvent{}.EventType(), func(env events.Envelope) {
		if ev, ok := env.Event.(events.AgentStartEvent); ok {
			fmt.Fprintf(w, "▸ %s\n", ev.Role)
		}
	})
	bus.On(events.ToolStartEvent{}.EventType(), func(env events.Envelope) {
		if ev, ok := env.Event.(events.ToolStartEvent); ok {
			fmt.Fprintf(w, "  · %s\n", ev.Name)
		}
	})
	bus.On(events.AgentDoneEvent{}.EventType(), func(env events.Envelope) {
		ev, ok := env.Event.(events.AgentDoneEvent)
		if !ok {
			return
		}
		switch {
		case ev.Error != "":
			fmt.Fprintf(w, "✗ %s: %s\n", ev.Role, ev.Error)
		case ev.Degraded:
			fmt.Fprintf(w, "! %s stopped at the iteration limit\n", ev.Role)
		default:
			fmt.Fprintf(w, "✓ %s (%s)\n", ev.Role, ev.Duration.Round(100*time.Millisecond))
		}
	})
	bus.On(events.SafetyBlockedEvent{}.EventType(), func(env events.Envelope) {
		if ev, ok := env.Event.(events.SafetyBlockedEvent); ok {
			fmt.Fprintf(w, "  ⛔ %s blocked: %s\n", ev.Tool, strings.Join(ev.Failures, "; "))
		}
	})
}
