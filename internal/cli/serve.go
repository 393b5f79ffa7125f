package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/agent-events/common/logging"
	"github.com/telhawk-systems/agent-events/internal/config"
	"github.com/telhawk-systems/agent-events/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent events HTTP service",
	Long: `Run the agent events HTTP service.

Configuration is read from --config (or ./config.yaml) and overridden by
AGENTEVENTS_* environment variables, e.g. AGENTEVENTS_SERVER_PORT=8080.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("agent-events"))
	logging.SetDefault(logger)

	logger.Info("Starting agent events service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("repository", cfg.Repository.Backend),
		slog.String("queue", cfg.Queue.Backend),
		slog.String("agent_config", cfg.AgentConfig.Backend),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to release resources", logging.Error(err))
		}
	}()

	return server.New(a.handler, serverOptions(cfg.Server), logger).Run(ctx)
}

// commandContext returns the command's context, or Background when run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
