package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/agent-events/internal/auth"
	"github.com/telhawk-systems/agent-events/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	Long: `Mint a bearer token signed with the configured auth.jwt_secret.

Agents need the "agent" role to ingest; the console needs "console" to
query and to change the agent configuration.`,
	Example: `  agentevents token --role agent
  export AGENTEVENTS_TOKEN=$(agentevents token --role console)`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("role", auth.RoleConsole, "comma-separated roles to grant: agent, console")
	tokenCmd.Flags().String("user", "dev", "user ID recorded in the token")
	tokenCmd.Flags().String("secret", "", "signing secret (default: auth.jwt_secret from config)")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default: auth.token_ttl from config, or 12h)")
}

func runToken(cmd *cobra.Command, args []string) error {
	role, _ := cmd.Flags().GetString("role")
	roles := strings.Split(role, ",")
	user, _ := cmd.Flags().GetString("user")
	secret, _ := cmd.Flags().GetString("secret")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	if secret == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		secret = cfg.Auth.JWTSecret
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}
	}
	if secret == "" {
		return fmt.Errorf("no signing secret: set auth.jwt_secret or pass --secret")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	token, err := auth.NewTokenManager(secret, ttl).Generate(user, roles...)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
