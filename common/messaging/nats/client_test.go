package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/agent-events/common/messaging"
)

var _ messaging.Client = (*Client)(nil)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, "agent-events", cfg.Name)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
	assert.Empty(t, cfg.Token)
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond

	client, err := NewClient(cfg, nil)

	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}

func TestToMessage(t *testing.T) {
	msg := nats.NewMsg("agents.events.PingScanEvent")
	msg.Data = []byte(`{"type":"PingScanEvent"}`)
	msg.Header.Set("Event-Id", "42")

	m := toMessage(msg)

	assert.Equal(t, msg.Subject, m.Subject)
	assert.Equal(t, msg.Data, m.Data)
	assert.Equal(t, map[string]string{"Event-Id": "42"}, m.Metadata)
	assert.False(t, m.Timestamp.IsZero())
}

func TestToMessage_NoHeaders(t *testing.T) {
	m := toMessage(&nats.Msg{Subject: "s", Data: []byte("x")})
	assert.Nil(t, m.Metadata)
}
