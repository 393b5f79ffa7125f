package seeder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/agent-events/common/logging"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/models"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.Start = time.Unix(1_700_000_000, 0)
	cfg.Spread = time.Minute
	return cfg
}

func TestGenerator_Deterministic(t *testing.T) {
	a := New(testConfig()).Batch(20)
	b := New(testConfig()).Batch(20)

	assert.Equal(t, a, b)
}

func TestGenerator_EveryTypeIsValid(t *testing.T) {
	g := New(testConfig())
	pipeline := codec.NewPipeline(codec.DefaultRegistry(), logging.Discard())
	start := float64(testConfig().Start.Unix())

	for _, typ := range models.AllTypes {
		t.Run(string(typ), func(t *testing.T) {
			e := g.EventOf(typ)
			require.Equal(t, typ, e.Type())

			h := e.Header()
			require.NoError(t, h.Validate())
			assert.IsIncreasing(t, append([]string{""}, h.Tags...))
			assert.GreaterOrEqual(t, h.Timestamp, start)
			assert.Less(t, h.Timestamp, start+60)

			raw, err := pipeline.EncodeOne(e)
			require.NoError(t, err)
			decoded, err := pipeline.Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, e, decoded)
		})
	}
}

func TestGenerator_RestrictsTypesAndSources(t *testing.T) {
	cfg := testConfig()
	cfg.Types = []models.EventType{models.TypeExploitation, models.TypePingScan}
	cfg.Agents = 2

	sources := map[string]bool{}
	for _, e := range New(cfg).Batch(50) {
		assert.Contains(t, cfg.Types, e.Type())
		sources[e.Header().Source.String()] = true
	}
	assert.LessOrEqual(t, len(sources), 2)
}

func TestGenerator_BatchPipelineEncode(t *testing.T) {
	pipeline := codec.NewPipeline(codec.DefaultRegistry(), logging.Discard())
	raw, err := pipeline.Encode(context.Background(), New(testConfig()).Batch(10))

	require.NoError(t, err)
	assert.Len(t, raw, 10)
}
