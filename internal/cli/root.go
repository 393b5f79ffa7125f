// Package cli implements the agentevents command-line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Environment variables read for flag defaults.
const (
	envServer = "AGENTEVENTS_URL"
	envToken  = "AGENTEVENTS_TOKEN"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentevents",
	Short: "Agent telemetry event service",
	Long: `agentevents runs and talks to the agent telemetry event service.

Agents report what they did (exploits, scans, stolen credentials, ...) as
typed events; the console queries them back with type, tag, success and
timestamp filters.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/agentevents/config.yaml)")
	rootCmd.PersistentFlags().String("url", envOr(envServer, "http://localhost:5000"), "agent events service URL")
	rootCmd.PersistentFlags().String("token", os.Getenv(envToken), "bearer token for the service")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
