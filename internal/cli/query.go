package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/agent-events/internal/client"
	"github.com/telhawk-systems/agent-events/internal/filter"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query agent events",
	Long: `Query agent events. Every given filter must match; omitted filters
match everything. Results are ordered by timestamp.`,
	Example: `  agentevents query --type ExploitationEvent --success true
  agentevents query --tag T1110 --timestamp gt:1700000000 --output yaml`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().String(filter.ParamType, "", "event type, e.g. PingScanEvent")
	queryCmd.Flags().String(filter.ParamTag, "", "event tag")
	queryCmd.Flags().String(filter.ParamSuccess, "", "success outcome: true or false")
	queryCmd.Flags().String(filter.ParamTimestamp, "", "timestamp bound: gt:<seconds> or lt:<seconds>")
	queryCmd.Flags().StringP("output", "o", outputJSON, "output format: json, yaml")
}

func runQuery(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	if format != outputJSON && format != outputYAML {
		return fmt.Errorf("unknown output format %q (supported: json, yaml)", format)
	}

	events, err := apiClient(cmd).Query(commandContext(cmd), filterArgs(cmd))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return writeEvents(cmd.OutOrStdout(), format, events)
}

// filterArgs keeps only the filter flags the user set, so an explicitly empty
// value is still sent and rejected by the service.
func filterArgs(cmd *cobra.Command) filter.Args {
	get := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		return &v
	}
	return filter.Args{
		Type:      get(filter.ParamType),
		Tag:       get(filter.ParamTag),
		Success:   get(filter.ParamSuccess),
		Timestamp: get(filter.ParamTimestamp),
	}
}

func apiClient(cmd *cobra.Command) *client.Client {
	url, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")
	return client.New(url, token)
}
