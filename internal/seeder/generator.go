// Package seeder generates realistic agent events for development and load testing.
package seeder

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/telhawk-systems/agent-events/internal/models"
)

var (
	exploiters = []string{"SSHExploiter", "SMBExploiter", "WmiExploiter", "Log4ShellExploiter", "HadoopExploiter"}
	osVersions = map[models.OperatingSystem][]string{
		models.OSLinux:   {"Ubuntu 22.04", "Debian 12", "CentOS 7"},
		models.OSWindows: {"Windows Server 2019", "Windows 10", "Windows 11"},
	}
	commonPorts = []int{22, 80, 135, 139, 443, 445, 3389, 5985, 7001, 8080}
)

// Config controls generated values.
type Config struct {
	Seed int64
	// Agents is the number of distinct agent sources.
	Agents int
	// Start and Spread bound event timestamps to [Start, Start+Spread).
	Start  time.Time
	Spread time.Duration
	// Tags are sampled for each event; an event gets up to MaxTags of them.
	Tags    []string
	MaxTags int
	// Types limits generation to these variants; empty means all.
	Types []models.EventType
}

// DefaultConfig returns a Config spreading events over the last hour.
func DefaultConfig() Config {
	return Config{
		Seed:    time.Now().UnixNano(),
		Agents:  3,
		Start:   time.Now().Add(-time.Hour),
		Spread:  time.Hour,
		Tags:    []string{"exploit", "scan", "credentials", "ransomware", "T1110", "T1210"},
		MaxTags: 2,
	}
}

// Generator produces events. It is not safe for concurrent use.
type Generator struct {
	faker   *gofakeit.Faker
	cfg     Config
	sources []uuid.UUID
}

// New creates a Generator. Identical configs produce identical sequences.
func New(cfg Config) *Generator {
	if cfg.Agents <= 0 {
		cfg.Agents = 1
	}
	if len(cfg.Types) == 0 {
		cfg.Types = models.AllTypes
	}

	g := &Generator{faker: gofakeit.New(cfg.Seed), cfg: cfg}
	for range cfg.Agents {
		g.sources = append(g.sources, g.uuid())
	}
	return g
}

// Batch generates n events.
func (g *Generator) Batch(n int) []models.Event {
	events := make([]models.Event, 0, n)
	for range n {
		events = append(events, g.Event())
	}
	return events
}

// Event generates one event of a randomly chosen type.
func (g *Generator) Event() models.Event {
	t := g.cfg.Types[g.faker.Number(0, len(g.cfg.Types)-1)]
	return g.EventOf(t)
}

// EventOf generates one event of type t.
func (g *Generator) EventOf(t models.EventType) models.Event {
	base := g.base()
	switch t {
	case models.TypeExploitation:
		success := g.faker.Bool()
		return models.ExploitationEvent{Base: base, ExploiterName: g.exploiter(), Success: success, ErrorMessage: g.errorMessage(success)}
	case models.TypePropagation:
		success := g.faker.Bool()
		return models.PropagationEvent{Base: base, ExploiterName: g.exploiter(), Success: success, ErrorMessage: g.errorMessage(success)}
	case models.TypePasswordRestoration:
		return models.PasswordRestorationEvent{Base: base, Success: g.faker.Bool()}
	case models.TypeFileEncryption:
		success := g.faker.Bool()
		return models.FileEncryptionEvent{
			Base:         base,
			FilePath:     "/home/" + g.faker.Username() + "/" + g.faker.Word() + ".docx",
			Success:      success,
			ErrorMessage: g.errorMessage(success),
		}
	case models.TypePingScan:
		e := models.PingScanEvent{Base: base, ResponseReceived: g.faker.Bool()}
		if e.ResponseReceived {
			family := g.os()
			e.OS = &family
		}
		return e
	case models.TypeTCPScan:
		ports := make(map[int]models.PortStatus)
		for _, p := range commonPorts {
			if g.faker.Number(0, 2) == 0 {
				ports[p] = models.PortOpen
			} else {
				ports[p] = models.PortClosed
			}
		}
		return models.TCPScanEvent{Base: base, Ports: ports}
	case models.TypeCredentialsStolen:
		creds := make([]models.Credentials, g.faker.Number(1, 3))
		for i := range creds {
			creds[i] = models.Credentials{
				Identity: g.faker.Username(),
				Secret:   g.faker.Password(true, true, true, false, false, 12),
			}
		}
		return models.CredentialsStolenEvent{Base: base, StolenCredentials: creds}
	case models.TypeOSDiscovery:
		family := g.os()
		versions := osVersions[family]
		return models.OSDiscoveryEvent{Base: base, OS: family, Version: versions[g.faker.Number(0, len(versions)-1)]}
	case models.TypeHostnameDiscovery:
		return models.HostnameDiscoveryEvent{Base: base, Hostname: g.faker.DomainName()}
	default:
		return models.AgentShutdownEvent{Base: base}
	}
}

func (g *Generator) base() models.Base {
	offset := time.Duration(0)
	if g.cfg.Spread > 0 {
		offset = time.Duration(g.faker.Float64Range(0, float64(g.cfg.Spread)))
	}
	ts := g.cfg.Start.Add(offset)

	b := models.Base{
		ID:        g.uuid(),
		Source:    g.sources[g.faker.Number(0, len(g.sources)-1)],
		Target:    g.faker.IPv4Address(),
		Timestamp: float64(ts.UnixNano()) / float64(time.Second),
	}
	if len(g.cfg.Tags) > 0 && g.cfg.MaxTags > 0 {
		for range g.faker.Number(0, g.cfg.MaxTags) {
			b.Tags = append(b.Tags, g.cfg.Tags[g.faker.Number(0, len(g.cfg.Tags)-1)])
		}
	}
	b.Canonicalize()
	return b
}

func (g *Generator) uuid() uuid.UUID {
	return uuid.MustParse(g.faker.UUID())
}

func (g *Generator) exploiter() string {
	return exploiters[g.faker.Number(0, len(exploiters)-1)]
}

func (g *Generator) os() models.OperatingSystem {
	if g.faker.Bool() {
		return models.OSLinux
	}
	return models.OSWindows
}

func (g *Generator) errorMessage(success bool) string {
	if success {
		return ""
	}
	return g.faker.Sentence(6)
}
