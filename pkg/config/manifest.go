package config

import (
	"errors"
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/ipsecd/pkg/types"
)

// Manifest operations. An empty op means add.
const (
	OpAdd    = "add"
	OpModify = "modify"
	OpRemove = "remove"
)

// Manifest is a declarative batch of configuration changes
type Manifest struct {
	Credentials []types.Credential `yaml:"credentials,omitempty"`
	Authorities []AuthorityEntry   `yaml:"authorities,omitempty"`
	Connections []ConnectionEntry  `yaml:"connections,omitempty"`
	SAs         []SAEntry          `yaml:"sas,omitempty"`
	SPs         []SPEntry          `yaml:"sps,omitempty"`
	Stats       []StatEntry        `yaml:"stats,omitempty"`
}

// AuthorityEntry adds, modifies or removes a CA
type AuthorityEntry struct {
	Op       string `yaml:"op,omitempty"`
	types.CA `yaml:",inline"`
}

// ConnectionEntry adds, modifies or removes an IKE connection
type ConnectionEntry struct {
	Op                  string `yaml:"op,omitempty"`
	types.IKEConnection `yaml:",inline"`
}

// SAEntry adds, modifies or removes a kernel SA
type SAEntry struct {
	Op       string `yaml:"op,omitempty"`
	types.SA `yaml:",inline"`
}

// SPEntry adds, modifies or removes a kernel policy
type SPEntry struct {
	Op       string `yaml:"op,omitempty"`
	types.SP `yaml:",inline"`
}

// StatEntry subscribes to, or with op remove unsubscribes from, the
// statistics of one object. Only the key matching Kind is used.
type StatEntry struct {
	Op   string         `yaml:"op,omitempty"`
	Kind types.StatKind `yaml:"kind"`
	SPI  uint32         `yaml:"spi,omitempty"`
	SP   types.SPID     `yaml:"sp,omitempty"`
	Name string         `yaml:"name,omitempty"`
}

// LoadManifest reads and validates a manifest file
func LoadManifest(path string) (*Manifest, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, nil, err
	}
	return m, data, nil
}

// ParseManifest decodes and validates a YAML manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Len returns the number of entries that become configuration tasks
func (m *Manifest) Len() int {
	return len(m.Authorities) + len(m.Connections) + len(m.SAs) + len(m.SPs)
}

// Validate reports every problem found in the manifest
func (m *Manifest) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	for i, cred := range m.Credentials {
		switch cred.Type {
		case types.CredentialPSK:
			if cred.PSK == "" {
				add("credentials[%d]: psk is required", i)
			}
		case types.CredentialRSA:
			if len(cred.RSA) == 0 {
				add("credentials[%d]: rsa key is required", i)
			}
		default:
			add("credentials[%d]: unknown type %q", i, cred.Type)
		}
	}

	for i, e := range m.Authorities {
		if !validOp(e.Op) {
			add("authorities[%d]: unknown op %q", i, e.Op)
		}
		if e.Name == "" {
			add("authorities[%d]: name is required", i)
		}
		if e.Cert == "" && e.Op != OpRemove {
			add("authorities[%d]: cert is required", i)
		}
	}

	for i, e := range m.Connections {
		if !validOp(e.Op) {
			add("connections[%d]: unknown op %q", i, e.Op)
		}
		if e.Name == "" {
			add("connections[%d]: name is required", i)
		}
		if e.Op == OpRemove {
			continue
		}
		switch e.Version {
		case "", types.IKEVersionV1, types.IKEVersionV2, types.IKEVersionAny:
		default:
			add("connections[%d]: unknown version %q", i, e.Version)
		}
		switch e.Child.AuthMethod {
		case "", types.ProtocolESP, types.ProtocolAH:
		default:
			add("connections[%d]: unknown child auth method %q", i, e.Child.AuthMethod)
		}
	}

	for i, e := range m.SAs {
		if !validOp(e.Op) {
			add("sas[%d]: unknown op %q", i, e.Op)
		}
		if e.SPI == 0 {
			add("sas[%d]: spi is required", i)
		}
		if e.Op == OpRemove {
			continue
		}
		if net.ParseIP(e.Src) == nil || net.ParseIP(e.Dst) == nil {
			add("sas[%d]: src and dst must be IP addresses", i)
		}
		switch e.Protocol {
		case types.ProtocolESP, types.ProtocolAH:
		default:
			add("sas[%d]: unknown protocol %q", i, e.Protocol)
		}
	}

	for i, e := range m.SPs {
		if !validOp(e.Op) {
			add("sps[%d]: unknown op %q", i, e.Op)
		}
		if err := validateSPID(e.ID); err != nil {
			add("sps[%d]: %w", i, err)
		}
	}

	for i, e := range m.Stats {
		if e.Op != "" && e.Op != OpAdd && e.Op != OpRemove {
			add("stats[%d]: unknown op %q", i, e.Op)
		}
		switch e.Kind {
		case types.StatSA:
			if e.SPI == 0 {
				add("stats[%d]: spi is required", i)
			}
		case types.StatSP:
			if err := validateSPID(e.SP); err != nil {
				add("stats[%d]: %w", i, err)
			}
		case types.StatIKE:
			if e.Name == "" {
				add("stats[%d]: name is required", i)
			}
		default:
			add("stats[%d]: unknown kind %q", i, e.Kind)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid manifest: %w", errors.Join(errs...))
	}
	return nil
}

func validOp(a string) bool {
	switch a {
	case "", OpAdd, OpModify, OpRemove:
		return true
	default:
		return false
	}
}

func validateSPID(id types.SPID) error {
	switch id.Direction {
	case types.DirectionIn, types.DirectionOut, types.DirectionForward:
	default:
		return fmt.Errorf("unknown direction %q", id.Direction)
	}
	if _, _, err := net.ParseCIDR(id.Src); err != nil {
		return fmt.Errorf("invalid src: %w", err)
	}
	if _, _, err := net.ParseCIDR(id.Dst); err != nil {
		return fmt.Errorf("invalid dst: %w", err)
	}
	return nil
}
