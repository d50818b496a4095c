// Command abapagents 运行 ABAP 开发工作流的五个 agent。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wordflowlab/abapagents"
	"github.com/wordflowlab/abapagents/pkg/appconfig"
)

// rootFlags 全局参数
type rootFlags struct {
	config   string
	logLevel string
	noColor  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "abapagents",
		Short: "Five-stage ABAP development workflow driven by LLM agents",
		Long: `abapagents routes a requirement through Planner, Designer, Implementer,
Tester and Reviewer agents. Each agent works against the remote ABAP system
through a restricted tool set; writes pass a safety gate before they run.

Without AI_API_KEY the commands return built-in sample outputs.`,
		Version:       abapagents.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "config file (default ./abapagents.yml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	for _, cmd := range newAgentCmds(flags) {
		root.AddCommand(cmd)
	}
	root.AddCommand(
		newServeCmd(flags),
		newAgentsCmd(flags),
		newKeygenCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig 读取配置并应用命令行覆盖
func loadConfig(flags *rootFlags) (*appconfig.Config, error) {
	cfg, err := appconfig.Load(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, nil
}

// bootstrap 加载配置并装配 app, 调用方负责 Close
func bootstrap(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg, cmd.ErrOrStderr(), flags.noColor)
}
