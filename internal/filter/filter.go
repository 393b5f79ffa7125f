// Package filter parses raw query arguments into a validated event filter.
package filter

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/telhawk-systems/agent-events/internal/models"
)

// Query parameter names.
const (
	ParamType      = "type"
	ParamTag       = "tag"
	ParamSuccess   = "success"
	ParamTimestamp = "timestamp"
)

// ErrInvalidArgument is wrapped by every argument validation failure.
var ErrInvalidArgument = errors.New("invalid filter argument")

// ArgumentError describes a rejected filter argument.
type ArgumentError struct {
	Argument string
	Value    string
	Reason   string
}

func (e *ArgumentError) Error() string {
	return e.Reason
}

func (e *ArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// Args holds the raw filter arguments. A nil field is absent.
type Args struct {
	Type      *string
	Tag       *string
	Success   *string
	Timestamp *string
}

// ArgsFromQuery extracts Args from a query string. A parameter that is present
// with an empty value counts as present.
func ArgsFromQuery(q url.Values) Args {
	get := func(name string) *string {
		if !q.Has(name) {
			return nil
		}
		v := q.Get(name)
		return &v
	}
	return Args{
		Type:      get(ParamType),
		Tag:       get(ParamTag),
		Success:   get(ParamSuccess),
		Timestamp: get(ParamTimestamp),
	}
}

// Values encodes the present arguments as a query string.
func (a Args) Values() url.Values {
	q := url.Values{}
	set := func(name string, v *string) {
		if v != nil {
			q.Set(name, *v)
		}
	}
	set(ParamType, a.Type)
	set(ParamTag, a.Tag)
	set(ParamSuccess, a.Success)
	set(ParamTimestamp, a.Timestamp)
	return q
}

// Op is a timestamp comparison operator.
type Op string

const (
	OpGreaterThan Op = "gt"
	OpLessThan    Op = "lt"
)

// TimestampConstraint keeps events strictly after or strictly before Threshold.
type TimestampConstraint struct {
	Op        Op
	Threshold float64
}

// Spec is a validated filter. Nil fields are unconstrained.
type Spec struct {
	Type      *models.EventType
	Tag       *string
	Success   *bool
	Timestamp *TimestampConstraint
}

// IsEmpty reports whether the spec constrains nothing.
func (s Spec) IsEmpty() bool {
	return s.Type == nil && s.Tag == nil && s.Success == nil && s.Timestamp == nil
}

// Parser validates Args against the known event types.
type Parser struct {
	types *models.TypeRegistry
}

// NewParser creates a Parser.
func NewParser(types *models.TypeRegistry) *Parser {
	return &Parser{types: types}
}

// Parse validates args. It stops at the first invalid argument.
func (p *Parser) Parse(args Args) (Spec, error) {
	var spec Spec

	if args.Type != nil {
		t, ok := p.types.Lookup(*args.Type)
		if !ok {
			return Spec{}, &ArgumentError{
				Argument: ParamType,
				Value:    *args.Type,
				Reason:   fmt.Sprintf("unknown event type %q", *args.Type),
			}
		}
		spec.Type = &t
	}

	if args.Tag != nil {
		if !models.ValidTag(*args.Tag) {
			return Spec{}, &ArgumentError{
				Argument: ParamTag,
				Value:    *args.Tag,
				Reason:   fmt.Sprintf("invalid event tag %q", *args.Tag),
			}
		}
		tag := *args.Tag
		spec.Tag = &tag
	}

	if args.Success != nil {
		success, err := parseSuccess(*args.Success)
		if err != nil {
			return Spec{}, err
		}
		spec.Success = &success
	}

	if args.Timestamp != nil {
		tc, err := parseTimestamp(*args.Timestamp)
		if err != nil {
			return Spec{}, err
		}
		spec.Timestamp = &tc
	}

	return spec, nil
}

func parseSuccess(v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, &ArgumentError{
		Argument: ParamSuccess,
		Value:    v,
		Reason:   fmt.Sprintf(`invalid value for success %q, expected "true" or "false"`, v),
	}
}

func parseTimestamp(v string) (TimestampConstraint, error) {
	formatErr := &ArgumentError{
		Argument: ParamTimestamp,
		Value:    v,
		Reason:   fmt.Sprintf(`invalid timestamp argument %q, expected format: "{gt,lt}:<timestamp>"`, v),
	}

	op, threshold, found := strings.Cut(v, ":")
	if !found || strings.Contains(threshold, ":") || op == "" || threshold == "" {
		return TimestampConstraint{}, formatErr
	}

	var tc TimestampConstraint
	switch Op(op) {
	case OpGreaterThan, OpLessThan:
		tc.Op = Op(op)
	default:
		return TimestampConstraint{}, formatErr
	}

	n, err := strconv.ParseFloat(threshold, 64)
	if err != nil || math.IsNaN(n) {
		return TimestampConstraint{}, &ArgumentError{
			Argument: ParamTimestamp,
			Value:    v,
			Reason:   fmt.Sprintf("invalid timestamp argument %q, expected timestamp to be a number", v),
		}
	}
	tc.Threshold = n
	return tc, nil
}
