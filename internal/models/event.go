// Package models defines the agent telemetry event variants.
package models

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"

	"github.com/google/uuid"
)

// EventType identifies an event variant. Its value is the wire "type" discriminator.
type EventType string

const (
	TypeExploitation        EventType = "ExploitationEvent"
	TypePropagation         EventType = "PropagationEvent"
	TypePasswordRestoration EventType = "PasswordRestorationEvent"
	TypeFileEncryption      EventType = "FileEncryptionEvent"
	TypePingScan            EventType = "PingScanEvent"
	TypeTCPScan             EventType = "TCPScanEvent"
	TypeCredentialsStolen   EventType = "CredentialsStolenEvent"
	TypeOSDiscovery         EventType = "OSDiscoveryEvent"
	TypeHostnameDiscovery   EventType = "HostnameDiscoveryEvent"
	TypeAgentShutdown       EventType = "AgentShutdownEvent"
)

// tagPattern is the grammar every event tag must match.
var tagPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidTag reports whether tag matches the tag grammar.
func ValidTag(tag string) bool {
	return tagPattern.MatchString(tag)
}

var (
	ErrMissingSource = errors.New("event source is required")
	ErrInvalidTag    = errors.New("invalid event tag")
	ErrInvalidTime   = errors.New("event timestamp must be a finite number")

	ErrInvalidPort       = errors.New("port out of range")
	ErrInvalidPortStatus = errors.New("unknown port status")
	ErrInvalidOS         = errors.New("unknown operating system")
)

// MaxPort is the highest valid TCP port number.
const MaxPort = 65535

// Event is implemented by every event variant. The set of variants is closed.
type Event interface {
	Type() EventType
	Header() Base
	Validate() error
	isEvent()
}

// SuccessReporter is implemented by variants that carry a success outcome.
type SuccessReporter interface {
	Event
	Succeeded() bool
}

// Base holds the fields shared by all events.
type Base struct {
	ID        uuid.UUID `json:"id"`
	Source    uuid.UUID `json:"source"`
	Target    string    `json:"target,omitempty"`
	Timestamp float64   `json:"timestamp"`
	Tags      []string  `json:"tags"`
}

// Header returns the shared fields.
func (b Base) Header() Base { return b }

func (Base) isEvent() {}

// SetDefaults seeds the fields a raw event may omit.
func (b *Base) SetDefaults(id uuid.UUID, timestamp float64) {
	b.ID = id
	b.Timestamp = timestamp
}

// Canonicalize sorts and de-duplicates tags; the result is never nil.
func (b *Base) Canonicalize() {
	tags := slices.Clone(b.Tags)
	slices.Sort(tags)
	b.Tags = slices.Compact(tags)
	if b.Tags == nil {
		b.Tags = []string{}
	}
}

// Validate checks the header invariants. Variants with constrained fields
// override it and check the header first.
func (b Base) Validate() error {
	if b.Source == uuid.Nil {
		return ErrMissingSource
	}
	if math.IsNaN(b.Timestamp) || math.IsInf(b.Timestamp, 0) {
		return ErrInvalidTime
	}
	for _, tag := range b.Tags {
		if !ValidTag(tag) {
			return fmt.Errorf("%w %q", ErrInvalidTag, tag)
		}
	}
	return nil
}

// ExploitationEvent records an exploit attempt against a target.
type ExploitationEvent struct {
	Base
	ExploiterName string `json:"exploiter_name"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

func (ExploitationEvent) Type() EventType   { return TypeExploitation }
func (e ExploitationEvent) Succeeded() bool { return e.Success }

// PropagationEvent records an attempt to copy the agent to a target.
type PropagationEvent struct {
	Base
	ExploiterName string `json:"exploiter_name"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

func (PropagationEvent) Type() EventType   { return TypePropagation }
func (e PropagationEvent) Succeeded() bool { return e.Success }

// PasswordRestorationEvent records an attempt to restore a changed password.
type PasswordRestorationEvent struct {
	Base
	Success bool `json:"success"`
}

func (PasswordRestorationEvent) Type() EventType   { return TypePasswordRestoration }
func (e PasswordRestorationEvent) Succeeded() bool { return e.Success }

// FileEncryptionEvent records a simulated ransomware encryption of a file.
type FileEncryptionEvent struct {
	Base
	FilePath     string `json:"file_path"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (FileEncryptionEvent) Type() EventType   { return TypeFileEncryption }
func (e FileEncryptionEvent) Succeeded() bool { return e.Success }

// OperatingSystem names an operating system family.
type OperatingSystem string

const (
	OSLinux   OperatingSystem = "linux"
	OSWindows OperatingSystem = "windows"
)

// Valid reports whether o is a known family.
func (o OperatingSystem) Valid() bool {
	return o == OSLinux || o == OSWindows
}

// PingScanEvent records the outcome of an ICMP ping.
type PingScanEvent struct {
	Base
	ResponseReceived bool             `json:"response_received"`
	OS               *OperatingSystem `json:"os,omitempty"`
}

func (PingScanEvent) Type() EventType { return TypePingScan }

func (e PingScanEvent) Validate() error {
	if err := e.Base.Validate(); err != nil {
		return err
	}
	if e.OS != nil && !e.OS.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidOS, *e.OS)
	}
	return nil
}

// PortStatus is the state of a scanned TCP port.
type PortStatus string

const (
	PortOpen   PortStatus = "open"
	PortClosed PortStatus = "closed"
)

// Valid reports whether s is a known port state.
func (s PortStatus) Valid() bool {
	return s == PortOpen || s == PortClosed
}

// TCPScanEvent records the outcome of a TCP port scan.
type TCPScanEvent struct {
	Base
	Ports map[int]PortStatus `json:"ports"`
}

func (TCPScanEvent) Type() EventType { return TypeTCPScan }

func (e TCPScanEvent) Validate() error {
	if err := e.Base.Validate(); err != nil {
		return err
	}
	for port, status := range e.Ports {
		if port < 0 || port > MaxPort {
			return fmt.Errorf("%w: %d", ErrInvalidPort, port)
		}
		if !status.Valid() {
			return fmt.Errorf("%w %q for port %d", ErrInvalidPortStatus, status, port)
		}
	}
	return nil
}

// Credentials is an identity and the secret that authenticates it.
type Credentials struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

// CredentialsStolenEvent records credentials collected from a host.
type CredentialsStolenEvent struct {
	Base
	StolenCredentials []Credentials `json:"stolen_credentials"`
}

func (CredentialsStolenEvent) Type() EventType { return TypeCredentialsStolen }

// OSDiscoveryEvent records the operating system detected on a host.
type OSDiscoveryEvent struct {
	Base
	OS      OperatingSystem `json:"os"`
	Version string          `json:"version"`
}

func (OSDiscoveryEvent) Type() EventType { return TypeOSDiscovery }

func (e OSDiscoveryEvent) Validate() error {
	if err := e.Base.Validate(); err != nil {
		return err
	}
	if !e.OS.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidOS, e.OS)
	}
	return nil
}

// HostnameDiscoveryEvent records a discovered hostname.
type HostnameDiscoveryEvent struct {
	Base
	Hostname string `json:"hostname"`
}

func (HostnameDiscoveryEvent) Type() EventType { return TypeHostnameDiscovery }

// AgentShutdownEvent records an agent stopping.
type AgentShutdownEvent struct {
	Base
}

func (AgentShutdownEvent) Type() EventType { return TypeAgentShutdown }

var (
	_ SuccessReporter = ExploitationEvent{}
	_ SuccessReporter = PropagationEvent{}
	_ SuccessReporter = PasswordRestorationEvent{}
	_ SuccessReporter = FileEncryptionEvent{}
	_ Event           = PingScanEvent{}
	_ Event           = TCPScanEvent{}
	_ Event           = CredentialsStolenEvent{}
	_ Event           = OSDiscoveryEvent{}
	_ Event           = HostnameDiscoveryEvent{}
	_ Event           = AgentShutdownEvent{}
)
