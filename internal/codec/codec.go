// Package codec converts events to and from their JSON wire form.
//
// Every variant is encoded as a flat JSON object carrying its fields plus a
// "type" discriminator naming the variant. Decoding is strict: unknown fields,
// missing variant fields, wrong field types and out-of-range values are
// rejected.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/agent-events/internal/models"
)

// TypeField is the name of the discriminator field on the wire.
const TypeField = "type"

var (
	// ErrDecode marks a raw event that could not be turned into an event.
	ErrDecode = errors.New("failed to decode event")
	// ErrEncode marks an event that could not be serialized.
	ErrEncode = errors.New("failed to encode event")

	ErrMissingField = errors.New("missing required field")
	ErrNullField    = errors.New("null value for required field")
)

// Codec encodes and decodes a single event variant.
type Codec interface {
	Encode(e models.Event) (json.RawMessage, error)
	Decode(raw json.RawMessage) (models.Event, error)
}

// defaulter is implemented by pointers to variants through the embedded models.Base.
type defaulter[T any] interface {
	*T
	SetDefaults(id uuid.UUID, timestamp float64)
	Canonicalize()
}

type jsonCodec[T models.Event, PT defaulter[T]] struct {
	eventType models.EventType
	required  []requiredField
	clock     func() time.Time
	newID     func() uuid.UUID
}

// requiredField is a variant field a raw event must carry. Fields whose zero
// value is nil may be sent as null; scalars may not.
type requiredField struct {
	name     string
	nullable bool
}

// requiredFields lists the variant's own JSON fields that are not tagged
// omitempty. Header fields are defaulted or validated separately.
func requiredFields(t reflect.Type) []requiredField {
	var out []requiredField
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous || !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || strings.Contains(opts, "omitempty") {
			continue
		}
		if name == "" {
			name = f.Name
		}
		switch f.Type.Kind() {
		case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
			out = append(out, requiredField{name: name, nullable: true})
		default:
			out = append(out, requiredField{name: name})
		}
	}
	return out
}

// NewJSONCodec returns a Codec for variant T.
func NewJSONCodec[T models.Event, PT defaulter[T]](clock func() time.Time, newID func() uuid.UUID) Codec {
	var zero T
	return &jsonCodec[T, PT]{
		eventType: zero.Type(),
		required:  requiredFields(reflect.TypeOf(zero)),
		clock:     clock,
		newID:     newID,
	}
}

func (c *jsonCodec[T, PT]) Encode(e models.Event) (json.RawMessage, error) {
	v, ok := e.(T)
	if !ok {
		return nil, fmt.Errorf("codec for %s cannot encode %T", c.eventType, e)
	}

	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typeName, err := json.Marshal(string(c.eventType))
	if err != nil {
		return nil, err
	}
	fields[TypeField] = typeName

	return json.Marshal(fields)
}

func (c *jsonCodec[T, PT]) Decode(raw json.RawMessage) (models.Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, TypeField)
	if err := c.checkRequired(fields); err != nil {
		return nil, err
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var v T
	p := PT(&v)
	p.SetDefaults(c.newID(), float64(c.clock().UnixNano())/1e9)

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(p); err != nil {
		return nil, err
	}

	p.Canonicalize()
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *jsonCodec[T, PT]) checkRequired(fields map[string]json.RawMessage) error {
	for _, f := range c.required {
		v, ok := fields[f.name]
		if !ok {
			return fmt.Errorf("%w %q", ErrMissingField, f.name)
		}
		if !f.nullable && string(bytes.TrimSpace(v)) == "null" {
			return fmt.Errorf("%w %q", ErrNullField, f.name)
		}
	}
	return nil
}
