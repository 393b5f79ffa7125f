// Package agentconfig stores the configuration handed to agents.
//
// The configuration is an opaque JSON document as far as storage is
// concerned; its shape is enforced by an embedded JSON Schema.
package agentconfig

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://agent-events.local/schemas/agent-configuration.schema.json"

var (
	//go:embed schema.json
	schemaJSON string

	//go:embed default.json
	defaultJSON []byte
)

var (
	// ErrNotFound is returned when no configuration is stored.
	ErrNotFound = errors.New("agent configuration not found")
	// ErrInvalidConfiguration is wrapped by every validation failure.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ValidationError describes why a configuration was rejected.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid configuration supplied: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// Validator checks configurations against the agent configuration schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("agent configuration schema load failed: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("agent configuration schema compile failed: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate parses raw and checks it against the schema.
func (v *Validator) Validate(raw []byte) error {
	doc, err := unmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ValidationError{Err: err}
	}
	if err := v.schema.Validate(doc); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// unmarshalJSON decodes a document the way jsonschema/v5 expects: numbers
// as json.Number and no trailing data after the top-level value.
func unmarshalJSON(r io.Reader) (any, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}
	if t, _ := decoder.Token(); t != nil {
		return nil, fmt.Errorf("invalid character %v after top-level value", t)
	}
	return doc, nil
}

// Default returns the built-in configuration.
func Default() json.RawMessage {
	return bytes.Clone(defaultJSON)
}

// Store persists a single configuration document.
type Store interface {
	Get(ctx context.Context) (json.RawMessage, error)
	Put(ctx context.Context, cfg json.RawMessage) error
}

// Service validates configurations before storing them and serves a fallback
// when nothing has been stored yet.
type Service struct {
	store     Store
	validator *Validator
	fallback  json.RawMessage
}

// NewService creates a Service. A nil fallback makes Get return ErrNotFound
// until a configuration is stored.
func NewService(store Store, validator *Validator, fallback json.RawMessage) *Service {
	return &Service{store: store, validator: validator, fallback: fallback}
}

// Get returns the stored configuration, or the fallback.
func (s *Service) Get(ctx context.Context) (json.RawMessage, error) {
	cfg, err := s.store.Get(ctx)
	if errors.Is(err, ErrNotFound) && s.fallback != nil {
		return bytes.Clone(s.fallback), nil
	}
	return cfg, err
}

// Update validates raw and replaces the stored configuration.
func (s *Service) Update(ctx context.Context, raw []byte) error {
	if err := s.validator.Validate(raw); err != nil {
		return err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return &ValidationError{Err: err}
	}
	return s.store.Put(ctx, compact.Bytes())
}
