package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/agent-events/common/logging"
	"github.com/telhawk-systems/agent-events/internal/agentconfig"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/config"
	"github.com/telhawk-systems/agent-events/internal/repository"
)

const testSecret = "cli-test-secret"

// resetFlags restores every flag to its default so commands can run repeatedly.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			def := strings.Trim(f.DefValue, "[]")
			var vals []string
			if def != "" {
				vals = strings.Split(def, ",")
			}
			sv.Replace(vals)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	err := rootCmd.Execute()
	return out.String(), err
}

func testConfig() *config.Config {
	return &config.Config{
		Server:      config.ServerConfig{Port: 5000},
		Auth:        config.AuthConfig{Enabled: true, JWTSecret: testSecret},
		Repository:  config.RepositoryConfig{Backend: repository.BackendMemory},
		Queue:       config.QueueConfig{Backend: "local"},
		AgentConfig: config.AgentConfigConfig{Backend: agentconfig.BackendMemory, Fallback: true},
	}
}

func startService(t *testing.T, cfg *config.Config) string {
	t.Helper()
	a, err := buildApp(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := httptest.NewServer(a.handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func mintToken(t *testing.T, role string) string {
	t.Helper()
	out, err := execute(t, "", "token", "--secret", testSecret, "--role", role)
	require.NoError(t, err)
	return strings.TrimSpace(out)
}

func TestCommandsRegistered(t *testing.T) {
	expected := map[string]bool{"serve": false, "query": false, "ingest": false, "seed": false, "token": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := expected[cmd.Name()]; ok {
			expected[cmd.Name()] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "expected command %q to be registered", name)
	}
}

func TestSeedIngestQuery(t *testing.T) {
	url := startService(t, testConfig())
	agent := mintToken(t, "agent")
	console := mintToken(t, "console")

	out, err := execute(t, "", "seed", "--url", url, "--token", agent,
		"--count", "10", "--batch-size", "4", "--seed", "7", "--types", "PingScanEvent,TCPScanEvent")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 10 events")

	batch := `[{"type":"HostnameDiscoveryEvent","source":"9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d","timestamp":1,"tags":["cli"],"hostname":"db01"}]`
	out, err = execute(t, batch, "ingest", "--url", url, "--token", agent, "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 1 events")

	out, err = execute(t, "", "query", "--url", url, "--token", console, "--tag", "cli")
	require.NoError(t, err)
	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "db01", events[0]["hostname"])

	out, err = execute(t, "", "query", "--url", url, "--token", console, "--type", "TCPScanEvent", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "type: TCPScanEvent")
	assert.NotContains(t, out, "PingScanEvent")
}

func TestQuery_ServiceRejectsArgument(t *testing.T) {
	url := startService(t, testConfig())

	_, err := execute(t, "", "query", "--url", url, "--token", mintToken(t, "console"), "--success", "maybe")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), `invalid value for success "maybe"`)
}

func TestQuery_SendsOnlyChangedFlags(t *testing.T) {
	var rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := execute(t, "", "query", "--url", srv.URL, "--tag", "")
	require.NoError(t, err)
	assert.Equal(t, "tag=", rawQuery)

	_, err = execute(t, "", "query", "--url", srv.URL)
	require.NoError(t, err)
	assert.Empty(t, rawQuery)
}

func TestQuery_UnknownOutput(t *testing.T) {
	_, err := execute(t, "", "query", "--output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestIngest_ReportsPublishedCount(t *testing.T) {
	url := startService(t, testConfig())
	batch := `[
		{"type":"AgentShutdownEvent","source":"9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d","timestamp":1},
		{"type":"AgentShutdownEvent","timestamp":2}
	]`

	_, err := execute(t, batch, "ingest", "--url", url, "--token", mintToken(t, "agent"), "-")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 1 published events")
}

func TestIngest_RejectsNonArray(t *testing.T) {
	_, err := execute(t, `{"type":"AgentShutdownEvent"}`, "ingest", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON array")
}

func TestSeed_DryRun(t *testing.T) {
	out, err := execute(t, "", "seed", "--dry-run", "--count", "3", "--seed", "1", "--tags", "alpha,beta")
	require.NoError(t, err)

	var events []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 3)

	pipeline := codec.NewPipeline(codec.DefaultRegistry(), logging.Discard())
	for _, raw := range events {
		e, err := pipeline.Decode(raw)
		require.NoError(t, err)
		for _, tag := range e.Header().Tags {
			assert.Contains(t, []string{"alpha", "beta"}, tag)
		}
	}
}

func TestSeed_InvalidFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"zero count", []string{"--count", "0"}, "--count must be positive"},
		{"unknown type", []string{"--types", "NopeEvent"}, `unknown event type "NopeEvent"`},
		{"invalid tag", []string{"--tags", "bad tag"}, `invalid event tag "bad tag"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", append([]string{"seed", "--dry-run"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToken(t *testing.T) {
	t.Run("unknown role", func(t *testing.T) {
		_, err := execute(t, "", "token", "--secret", testSecret, "--role", "admin")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown role")
	})

	t.Run("secret from config", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		t.Setenv("AGENTEVENTS_AUTH_JWT_SECRET", testSecret)

		out, err := execute(t, "", "token", "--role", "agent")
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)
	})
}

func TestOpenRepository(t *testing.T) {
	pipeline := codec.NewPipeline(codec.DefaultRegistry(), logging.Discard())

	repo, err := openRepository(context.Background(), config.RepositoryConfig{
		Backend: repository.BackendSQLite,
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "events.db")},
	}, pipeline)
	require.NoError(t, err)
	assert.IsType(t, &repository.SQLiteRepository{}, repo)
	require.NoError(t, repo.Close())

	_, err = openRepository(context.Background(), config.RepositoryConfig{Backend: "cassandra"}, pipeline)
	assert.ErrorContains(t, err, "unknown repository backend")
}

func TestBuildApp_RedisAgentConfiguration(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Auth.Enabled = false
	cfg.AgentConfig = config.AgentConfigConfig{
		Backend: agentconfig.BackendRedis,
		Redis:   config.RedisConfig{URL: "redis://" + mr.Addr() + "/0", Key: "test:agent-config"},
	}
	url := startService(t, cfg)

	resp, err := http.Get(url + "/api/agent-configuration")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPut, url+"/api/agent-configuration", bytes.NewReader(agentconfig.Default()))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := mr.Get("test:agent-config")
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
}

func TestBuildApp_UnreachableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.AgentConfig = config.AgentConfigConfig{
		Backend: agentconfig.BackendRedis,
		Redis:   config.RedisConfig{URL: "redis://127.0.0.1:1/0"},
	}

	_, err := buildApp(context.Background(), cfg, logging.Discard())
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestApp_CloseRunsInReverseOrder(t *testing.T) {
	var order []int
	a := &app{}
	a.onClose(func() error { order = append(order, 1); return nil })
	a.onClose(func() error { order = append(order, 2); return nil })

	require.NoError(t, a.Close())
	assert.Equal(t, []int{2, 1}, order)
}
