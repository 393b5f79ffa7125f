package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/agent-events/common/logging"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/models"
	"github.com/telhawk-systems/agent-events/internal/seeder"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate fake events and send them to the service",
	Long: `Generate realistic fake agent events and ingest them in batches.

With --dry-run the events are printed instead of sent.`,
	Example: `  agentevents seed --count 500
  agentevents seed --count 20 --types ExploitationEvent,PingScanEvent --dry-run`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntP("count", "n", 100, "number of events to generate")
	seedCmd.Flags().Int("batch-size", 50, "events per ingest request")
	seedCmd.Flags().Int64("seed", 0, "random seed (default: current time)")
	seedCmd.Flags().Int("agents", 3, "number of distinct agent sources")
	seedCmd.Flags().Duration("spread", time.Hour, "spread timestamps over this window ending now")
	seedCmd.Flags().StringSlice("types", nil, "limit to these event types")
	seedCmd.Flags().StringSlice("tags", nil, "tag pool to sample from")
	seedCmd.Flags().Bool("dry-run", false, "print events instead of sending them")
}

func runSeed(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if count <= 0 {
		return fmt.Errorf("--count must be positive")
	}
	if batchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive")
	}

	registry := codec.DefaultRegistry()
	cfg, err := seederConfig(cmd, registry.Types())
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	pipeline := codec.NewPipeline(registry, logging.Discard())
	raw, err := pipeline.Encode(ctx, seeder.New(cfg).Batch(count))
	if err != nil {
		return err
	}

	if dryRun {
		return writeEvents(cmd.OutOrStdout(), outputJSON, raw)
	}

	c := apiClient(cmd)
	sent := 0
	for start := 0; start < len(raw); start += batchSize {
		batch := raw[start:min(start+batchSize, len(raw))]
		if err := c.Ingest(ctx, batch); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Sent %d of %d events before failure\n", sent, count)
			return ingestFailure(err)
		}
		sent += len(batch)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d events\n", sent)
	return nil
}

func seederConfig(cmd *cobra.Command, types *models.TypeRegistry) (seeder.Config, error) {
	cfg := seeder.DefaultConfig()

	if cmd.Flags().Changed("seed") {
		cfg.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	cfg.Agents, _ = cmd.Flags().GetInt("agents")
	spread, _ := cmd.Flags().GetDuration("spread")
	cfg.Start = time.Now().Add(-spread)
	cfg.Spread = spread

	names, _ := cmd.Flags().GetStringSlice("types")
	for _, name := range names {
		t, ok := types.Lookup(name)
		if !ok {
			return cfg, fmt.Errorf("unknown event type %q", name)
		}
		cfg.Types = append(cfg.Types, t)
	}

	tags, _ := cmd.Flags().GetStringSlice("tags")
	for _, tag := range tags {
		if !models.ValidTag(tag) {
			return cfg, fmt.Errorf("invalid event tag %q", tag)
		}
	}
	if len(tags) > 0 {
		cfg.Tags = tags
	}
	return cfg, nil
}
