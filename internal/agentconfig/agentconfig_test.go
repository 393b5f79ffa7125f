package agentconfig

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func mustValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func TestValidator_AcceptsDefault(t *testing.T) {
	assert.NoError(t, mustValidator(t).Validate(Default()))
}

func TestValidator_Rejects(t *testing.T) {
	v := mustValidator(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"keep_tunnel_open_time":`},
		{"not an object", `[]`},
		{"missing required", `{"keep_tunnel_open_time": 30}`},
		{"negative tunnel time", replaceField(t, "keep_tunnel_open_time", -1)},
		{"unknown field", replaceField(t, "surprise", true)},
		{"bad plugin", replaceField(t, "payloads", []map[string]any{{"options": map[string]any{}}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
			assert.Contains(t, err.Error(), "Invalid configuration supplied: ")
		})
	}
}

// replaceField returns the default configuration with field set to value.
func replaceField(t *testing.T, field string, value any) string {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(Default(), &doc))
	doc[field] = value
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(out)
}

func TestService_GetFallsBackToDefault(t *testing.T) {
	ctx := context.Background()

	withFallback := NewService(NewMemoryStore(), mustValidator(t), Default())
	cfg, err := withFallback.Get(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, string(Default()), string(cfg))

	withoutFallback := NewService(NewMemoryStore(), mustValidator(t), nil)
	_, err = withoutFallback.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, mustValidator(t), nil)

	updated := replaceField(t, "keep_tunnel_open_time", 90)
	require.NoError(t, svc.Update(ctx, []byte(updated)))

	cfg, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, updated, string(cfg))

	err = svc.Update(ctx, []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	cfg, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, updated, string(cfg), "rejected update must not replace the stored configuration")
}

func TestRedisStore(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()
	store := NewRedisStore(client, "")

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, json.RawMessage(`{"a":1}`)))
	assert.True(t, mr.Exists(DefaultRedisKey))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))
}

func TestRedisStore_ConnectionError(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer client.Close()
	mr.Close()

	_, err := NewRedisStore(client, "k").Get(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
