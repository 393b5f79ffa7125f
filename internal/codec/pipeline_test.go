package codec

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/agent-events/common/logging"
	"github.com/telhawk-systems/agent-events/internal/models"
)

var (
	fixedID     = uuid.MustParse("6f1b2c3d-0000-4000-8000-000000000001")
	fixedSource = uuid.MustParse("6f1b2c3d-0000-4000-8000-0000000000aa")
	fixedNow    = time.Unix(1700000000, 500000000)
)

func newTestPipeline() *Pipeline {
	registry := DefaultRegistry(
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() uuid.UUID { return fixedID }),
	)
	return NewPipeline(registry, logging.Discard())
}

func header(ts float64, tags ...string) models.Base {
	b := models.Base{ID: uuid.New(), Source: fixedSource, Target: "10.0.0.5", Timestamp: ts, Tags: tags}
	b.Canonicalize()
	return b
}

func sampleEvents() []models.Event {
	linux := models.OSLinux
	return []models.Event{
		models.ExploitationEvent{Base: header(1, "ssh-exploiter", "T1110"), ExploiterName: "SSHExploiter", Success: true},
		models.PropagationEvent{Base: header(2), ExploiterName: "SMBExploiter", ErrorMessage: "access denied"},
		models.PasswordRestorationEvent{Base: header(3), Success: true},
		models.FileEncryptionEvent{Base: header(4, "ransomware"), FilePath: "/home/user/doc.txt", Success: true},
		models.PingScanEvent{Base: header(5), ResponseReceived: true, OS: &linux},
		models.TCPScanEvent{Base: header(6), Ports: map[int]models.PortStatus{22: models.PortOpen, 80: models.PortClosed}},
		models.CredentialsStolenEvent{Base: header(7), StolenCredentials: []models.Credentials{{Identity: "root", Secret: "hunter2"}}},
		models.OSDiscoveryEvent{Base: header(8), OS: models.OSWindows, Version: "10"},
		models.HostnameDiscoveryEvent{Base: header(9), Hostname: "db-01"},
		models.AgentShutdownEvent{Base: header(10)},
	}
}

func TestPipeline_RoundTrip(t *testing.T) {
	p := newTestPipeline()

	for _, e := range sampleEvents() {
		t.Run(string(e.Type()), func(t *testing.T) {
			raw, err := p.EncodeOne(e)
			require.NoError(t, err)

			var fields map[string]any
			require.NoError(t, json.Unmarshal(raw, &fields))
			assert.Equal(t, string(e.Type()), fields[TypeField])

			decoded, err := p.Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, e, decoded)
		})
	}
}

func TestPipeline_EncodeBatch(t *testing.T) {
	p := newTestPipeline()
	events := sampleEvents()

	raw, err := p.Encode(context.Background(), events)
	require.NoError(t, err)
	require.Len(t, raw, len(events))

	empty, err := p.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestPipeline_EncodeUnregisteredType(t *testing.T) {
	registry := NewRegistry()
	registry.Register(models.TypeAgentShutdown, NewJSONCodec[models.AgentShutdownEvent](time.Now, uuid.New))
	p := NewPipeline(registry, logging.Discard())

	events := []models.Event{
		models.AgentShutdownEvent{Base: header(1)},
		models.HostnameDiscoveryEvent{Base: header(2), Hostname: "web"},
	}

	raw, err := p.Encode(context.Background(), events)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncode)
	assert.Contains(t, err.Error(), string(models.TypeHostnameDiscovery))
	assert.Contains(t, err.Error(), events[1].Header().ID.String())
	assert.Nil(t, raw)
}

func TestPipeline_DecodeDefaults(t *testing.T) {
	p := newTestPipeline()

	raw := json.RawMessage(`{"type":"HostnameDiscoveryEvent","source":"` + fixedSource.String() + `","hostname":"db","tags":["b","a","b"]}`)
	e, err := p.Decode(raw)
	require.NoError(t, err)

	h := e.Header()
	assert.Equal(t, fixedID, h.ID)
	assert.InDelta(t, 1700000000.5, h.Timestamp, 1e-6)
	assert.Equal(t, []string{"a", "b"}, h.Tags)
	assert.Equal(t, models.HostnameDiscoveryEvent{Base: h, Hostname: "db"}, e)
}

func TestPipeline_DecodeErrors(t *testing.T) {
	p := newTestPipeline()
	src := fixedSource.String()

	tests := []struct {
		name    string
		raw     string
		wantMsg string
	}{
		{"not an object", `[1,2]`, "not a JSON object"},
		{"missing type", `{"source":"` + src + `"}`, `missing the "type" field`},
		{"non-string type", `{"type":7,"source":"` + src + `"}`, "must be a string"},
		{"unknown type", `{"type":"NoSuchEvent","source":"` + src + `"}`, `unknown event type "NoSuchEvent"`},
		{"unknown field", `{"type":"AgentShutdownEvent","source":"` + src + `","extra":1}`, "unknown field"},
		{"wrong field type", `{"type":"PasswordRestorationEvent","source":"` + src + `","success":"yes"}`, "success"},
		{"missing source", `{"type":"AgentShutdownEvent"}`, "source is required"},
		{"invalid tag", `{"type":"AgentShutdownEvent","source":"` + src + `","tags":["bad tag"]}`, "invalid event tag"},
		{"exploitation without success", `{"type":"ExploitationEvent","source":"` + src + `","exploiter_name":"SSHExploiter"}`, `missing required field "success"`},
		{"exploitation without exploiter", `{"type":"ExploitationEvent","source":"` + src + `","success":true}`, `missing required field "exploiter_name"`},
		{"null success", `{"type":"PasswordRestorationEvent","source":"` + src + `","success":null}`, `null value for required field "success"`},
		{"encryption without path", `{"type":"FileEncryptionEvent","source":"` + src + `","success":false}`, `missing required field "file_path"`},
		{"ping without response", `{"type":"PingScanEvent","source":"` + src + `"}`, `missing required field "response_received"`},
		{"scan without ports", `{"type":"TCPScanEvent","source":"` + src + `"}`, `missing required field "ports"`},
		{"port out of range", `{"type":"TCPScanEvent","source":"` + src + `","ports":{"99999":"open"}}`, "port out of range"},
		{"negative port", `{"type":"TCPScanEvent","source":"` + src + `","ports":{"-1":"closed"}}`, "port out of range"},
		{"unknown port status", `{"type":"TCPScanEvent","source":"` + src + `","ports":{"22":"banana"}}`, `unknown port status "banana"`},
		{"unknown discovered os", `{"type":"OSDiscoveryEvent","source":"` + src + `","os":"plan9","version":"4"}`, `unknown operating system "plan9"`},
		{"unknown ping os", `{"type":"PingScanEvent","source":"` + src + `","response_received":true,"os":"beos"}`, `unknown operating system "beos"`},
		{"credentials missing", `{"type":"CredentialsStolenEvent","source":"` + src + `"}`, `missing required field "stolen_credentials"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Decode(json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestPipeline_DecodeOptionalFields(t *testing.T) {
	p := newTestPipeline()
	src := fixedSource.String()

	tests := []struct {
		name string
		raw  string
		want func(models.Base) models.Event
	}{
		{
			"error message omitted",
			`{"type":"PropagationEvent","source":"` + src + `","exploiter_name":"SMB","success":true}`,
			func(b models.Base) models.Event {
				return models.PropagationEvent{Base: b, ExploiterName: "SMB", Success: true}
			},
		},
		{
			"ping os null",
			`{"type":"PingScanEvent","source":"` + src + `","response_received":false,"os":null}`,
			func(b models.Base) models.Event { return models.PingScanEvent{Base: b} },
		},
		{
			"ping os omitted",
			`{"type":"PingScanEvent","source":"` + src + `","response_received":false}`,
			func(b models.Base) models.Event { return models.PingScanEvent{Base: b} },
		},
		{
			"credentials null",
			`{"type":"CredentialsStolenEvent","source":"` + src + `","stolen_credentials":null}`,
			func(b models.Base) models.Event { return models.CredentialsStolenEvent{Base: b} },
		},
		{
			"boundary ports",
			`{"type":"TCPScanEvent","source":"` + src + `","ports":{"0":"closed","65535":"open"}}`,
			func(b models.Base) models.Event {
				return models.TCPScanEvent{Base: b, Ports: map[int]models.PortStatus{0: models.PortClosed, 65535: models.PortOpen}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := p.Decode(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want(e.Header()), e)
		})
	}
}

func TestPipeline_DecodeErrorKeepsRunesWhole(t *testing.T) {
	p := newTestPipeline()

	// Each "é" is two bytes; the odd prefix puts one across the quote limit.
	raw := json.RawMessage(`{"type":"Bogus","hostname":"x` + strings.Repeat("é", maxQuotedEvent) + `"}`)
	_, err := p.Decode(raw)
	require.ErrorIs(t, err, ErrDecode)
	assert.True(t, utf8.ValidString(err.Error()))
	assert.Contains(t, err.Error(), "...")

	assert.Equal(t, "\uFFFD", quote(json.RawMessage{0xff}))
}

func TestPipeline_DecodeEachStopsAtFirstFailure(t *testing.T) {
	p := newTestPipeline()
	src := fixedSource.String()

	raw := []json.RawMessage{
		json.RawMessage(`{"type":"AgentShutdownEvent","source":"` + src + `"}`),
		json.RawMessage(`{"type":"Bogus","source":"` + src + `"}`),
		json.RawMessage(`{"type":"AgentShutdownEvent","source":"` + src + `"}`),
	}

	var seen []int
	err := p.DecodeEach(raw, func(i int, _ models.Event) error {
		seen = append(seen, i)
		return nil
	})
	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, []int{0}, seen)

	stop := errors.New("queue closed")
	err = p.DecodeEach(raw, func(int, models.Event) error { return stop })
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 0, be.Index)
	assert.ErrorIs(t, err, stop)
	assert.NotErrorIs(t, err, ErrDecode)

	seen = nil
	require.NoError(t, p.DecodeEach(raw[:1], func(i int, _ models.Event) error {
		seen = append(seen, i)
		return nil
	}))
	assert.Equal(t, []int{0}, seen)
}

func TestRegistry_Types(t *testing.T) {
	types := DefaultRegistry().Types()
	for _, et := range models.AllTypes {
		got, ok := types.Lookup(string(et))
		require.True(t, ok, et)
		assert.Equal(t, et, got)
	}
}
