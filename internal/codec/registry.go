package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/agent-events/internal/models"
)

// Registry maps event types to their codecs. It is built once and read-only afterwards.
type Registry struct {
	codecs map[models.EventType]Codec
}

type registryOptions struct {
	clock func() time.Time
	newID func() uuid.UUID
}

// Option configures the default registry.
type Option func(*registryOptions)

// WithClock sets the clock used to default missing event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *registryOptions) { o.clock = clock }
}

// WithIDGenerator sets the generator used to default missing event IDs.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(o *registryOptions) { o.newID = newID }
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[models.EventType]Codec)}
}

// DefaultRegistry returns a registry with a JSON codec for every known variant.
func DefaultRegistry(opts ...Option) *Registry {
	o := registryOptions{clock: time.Now, newID: uuid.New}
	for _, opt := range opts {
		opt(&o)
	}

	r := NewRegistry()
	r.Register(models.TypeExploitation, NewJSONCodec[models.ExploitationEvent](o.clock, o.newID))
	r.Register(models.TypePropagation, NewJSONCodec[models.PropagationEvent](o.clock, o.newID))
	r.Register(models.TypePasswordRestoration, NewJSONCodec[models.PasswordRestorationEvent](o.clock, o.newID))
	r.Register(models.TypeFileEncryption, NewJSONCodec[models.FileEncryptionEvent](o.clock, o.newID))
	r.Register(models.TypePingScan, NewJSONCodec[models.PingScanEvent](o.clock, o.newID))
	r.Register(models.TypeTCPScan, NewJSONCodec[models.TCPScanEvent](o.clock, o.newID))
	r.Register(models.TypeCredentialsStolen, NewJSONCodec[models.CredentialsStolenEvent](o.clock, o.newID))
	r.Register(models.TypeOSDiscovery, NewJSONCodec[models.OSDiscoveryEvent](o.clock, o.newID))
	r.Register(models.TypeHostnameDiscovery, NewJSONCodec[models.HostnameDiscoveryEvent](o.clock, o.newID))
	r.Register(models.TypeAgentShutdown, NewJSONCodec[models.AgentShutdownEvent](o.clock, o.newID))
	return r
}

// Register binds a codec to an event type, replacing any previous binding.
// Call it only while building the registry.
func (r *Registry) Register(t models.EventType, c Codec) {
	r.codecs[t] = c
}

// Lookup returns the codec for t.
func (r *Registry) Lookup(t models.EventType) (Codec, bool) {
	c, ok := r.codecs[t]
	return c, ok
}

// Types returns a TypeRegistry containing exactly the types this registry can decode.
func (r *Registry) Types() *models.TypeRegistry {
	types := make([]models.EventType, 0, len(r.codecs))
	for t := range r.codecs {
		types = append(types, t)
	}
	return models.NewTypeRegistry(types...)
}

// discriminator reads the "type" field of a raw event.
func discriminator(raw json.RawMessage) (models.EventType, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", fmt.Errorf("event is not a JSON object: %w", err)
	}
	field, ok := envelope[TypeField]
	if !ok {
		return "", fmt.Errorf("event is missing the %q field", TypeField)
	}
	var name string
	if err := json.Unmarshal(field, &name); err != nil {
		return "", fmt.Errorf("event %q field must be a string", TypeField)
	}
	return models.EventType(name), nil
}
