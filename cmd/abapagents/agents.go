package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wordflowlab/abapagents"
	"github.com/wordflowlab/abapagents/pkg/agent"
	agentctx "github.com/wordflowlab/abapagents/pkg/context"
	"github.com/wordflowlab/abapagents/pkg/render"
	"github.com/wordflowlab/abapagents/pkg/types"
	"github.com/wordflowlab/abapagents/server/auth"
)

func newAgentsCmd(root *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agent roles, command aliases and tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := agent.Definitions()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reg.List())
			}
			style := "dark"
			if root.noColor {
				style = "notty"
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Terminal(agentsMarkdown(reg), style, render.MaxWidth))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// agentsMarkdown 角色表格
func agentsMarkdown(reg *agent.DefinitionRegistry) string {
	table := &types.Table{Headers: []string{"Command", "Role", "Agent", "Tools"}}
	for _, def := range reg.List() {
		table.Rows = append(table.Rows, []string{def.Command, def.Role, def.Name, strings.Join(def.Tools, ", ")})
	}
	table.Rows = append(table.Rows, []string{agent.CommandWorkflow, "", "all, in order", ""})
	return "# Agents\n\n" + agentctx.RenderTable(table)
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API key for SERVER_API_KEYS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := abapagents.GetVersionInfo()
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "abapagents %s (%s)\n", info.Version, info.GoVersion)
			if info.GitCommit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "commit %s built %s\n", info.GitCommit, info.BuildTime)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
