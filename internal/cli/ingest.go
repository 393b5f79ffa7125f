package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/agent-events/internal/client"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|->",
	Short: "Send a batch of events",
	Long: `Send a JSON array of events to the service. Use "-" to read from stdin.

Events are published in order; if one is rejected, the ones before it
have already been accepted.`,
	Example: `  agentevents ingest events.json
  cat events.json | agentevents ingest -`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	var events []json.RawMessage
	if err := json.Unmarshal(data, &events); err != nil {
		return fmt.Errorf("input must be a JSON array of events: %w", err)
	}

	if err := apiClient(cmd).Ingest(commandContext(cmd), events); err != nil {
		return ingestFailure(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d events\n", len(events))
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// ingestFailure adds the number of events the service accepted before failing.
func ingestFailure(err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("ingest failed after %d published events: %w", apiErr.Published, err)
	}
	return fmt.Errorf("ingest failed: %w", err)
}
