package types

import (
	"strings"
	"time"
)

// IKEVersion selects the IKE protocol version a connection negotiates
type IKEVersion string

const (
	IKEVersionV1  IKEVersion = "v1"
	IKEVersionV2  IKEVersion = "v2"
	IKEVersionAny IKEVersion = "any" // v1 or v2, whichever the peer offers
)

// Cipher is an encryption algorithm for IKE or child SAs
type Cipher string

const (
	CipherNone   Cipher = ""
	CipherAES    Cipher = "aes"
	CipherAES256 Cipher = "aes256"
	Cipher3DES   Cipher = "3des"
)

// Integrity is an integrity (hash) algorithm
type Integrity string

const (
	IntegrityNone   Integrity = ""
	IntegritySHA1   Integrity = "sha1"
	IntegritySHA256 Integrity = "sha256"
	IntegritySHA512 Integrity = "sha512"
	IntegrityMD5    Integrity = "md5"
)

// DHGroup is a Diffie-Hellman group
type DHGroup string

const (
	DHGroupNone DHGroup = ""
	DHGroup2    DHGroup = "modp1024"
	DHGroup14   DHGroup = "modp2048"
)

// AuthBy defines how a peer authenticates
type AuthBy string

const (
	AuthByPubkey AuthBy = "pubkey"
	AuthByPSK    AuthBy = "psk"
)

// Mode is the IPsec encapsulation mode
type Mode string

const (
	ModeTransport Mode = "transport"
	ModeTunnel    Mode = "tunnel"
)

// Protocol is the IPsec protocol of an SA or template
type Protocol string

const (
	ProtocolESP Protocol = "esp"
	ProtocolAH  Protocol = "ah"
)

// Peer holds one end of an IKE connection
type Peer struct {
	ID     string `yaml:"id" json:"id"` // string id or certificate DN
	AuthBy AuthBy `yaml:"auth_by" json:"auth_by"`
	Cert   string `yaml:"cert,omitempty" json:"cert,omitempty"`
}

// ChildSA holds the child SA proposal of an IKE connection
type ChildSA struct {
	Cipher     Cipher    `yaml:"cipher" json:"cipher"`
	Integrity  Integrity `yaml:"integrity" json:"integrity"`
	DHGroup    DHGroup   `yaml:"dh_group" json:"dh_group"`
	Mode       Mode      `yaml:"mode" json:"mode"`
	AuthMethod Protocol  `yaml:"auth_method" json:"auth_method"`
}

// IKEConnection describes a connection loaded into the IKE daemon
type IKEConnection struct {
	Name          string     `yaml:"name" json:"name"`
	AddressFamily uint16     `yaml:"address_family,omitempty" json:"address_family,omitempty"`
	LocalAddr     string     `yaml:"local_addr" json:"local_addr"`
	RemoteAddr    string     `yaml:"remote_addr" json:"remote_addr"`
	Version       IKEVersion `yaml:"version" json:"version"`
	Cipher        Cipher     `yaml:"cipher" json:"cipher"`
	Integrity     Integrity  `yaml:"integrity" json:"integrity"`
	DHGroup       DHGroup    `yaml:"dh_group" json:"dh_group"`
	LocalPeer     Peer       `yaml:"local_peer" json:"local_peer"`
	RemotePeer    Peer       `yaml:"remote_peer" json:"remote_peer"`
	Child         ChildSA    `yaml:"child" json:"child"`
}

// Proposal returns the IKE proposal string, e.g. "aes256-sha256-modp2048"
func (c *IKEConnection) Proposal() string {
	return JoinProposal(string(c.Cipher), string(c.Integrity), string(c.DHGroup))
}

// Proposal returns the child SA proposal string
func (c *ChildSA) Proposal() string {
	return JoinProposal(string(c.Cipher), string(c.Integrity), string(c.DHGroup))
}

// JoinProposal joins the non-empty algorithm names with "-"
func JoinProposal(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "-")
}

// CA is a certificate authority trust anchor
type CA struct {
	Name string `yaml:"name" json:"name"`
	Cert string `yaml:"cert" json:"cert"` // PEM
}

// CredentialType is the kind of secret loaded into the IKE daemon
type CredentialType string

const (
	CredentialPSK CredentialType = "psk"
	CredentialRSA CredentialType = "rsa"
)

// Credential is a shared secret or private key
type Credential struct {
	Type   CredentialType `yaml:"type" json:"type"`
	PSK    string         `yaml:"psk,omitempty" json:"-"`
	RSA    []byte         `yaml:"rsa,omitempty" json:"-"`
	Owners []string       `yaml:"owners,omitempty" json:"owners,omitempty"`
}

// Algorithm is a named algorithm with its key
type Algorithm struct {
	Name string `yaml:"name" json:"name"`
	Key  string `yaml:"key" json:"-"` // hex
}

// SAStats holds kernel counters for an SA
type SAStats struct {
	Bytes        uint64 `json:"bytes"`
	Packets      uint64 `json:"packets"`
	ReplayWindow uint32 `json:"replay_window"`
	Replay       uint32 `json:"replay"`
	Failed       uint32 `json:"failed"`
}

// SA is a kernel security association, addressed by SPI
type SA struct {
	SPI      uint32     `yaml:"spi" json:"spi"`
	Protocol Protocol   `yaml:"protocol" json:"protocol"`
	Mode     Mode       `yaml:"mode" json:"mode"`
	Src      string     `yaml:"src" json:"src"`
	Dst      string     `yaml:"dst" json:"dst"`
	ReqID    int        `yaml:"reqid,omitempty" json:"reqid,omitempty"`
	Auth     *Algorithm `yaml:"auth,omitempty" json:"auth,omitempty"`
	Crypt    *Algorithm `yaml:"crypt,omitempty" json:"crypt,omitempty"`
	Stats    SAStats    `yaml:"-" json:"stats"`
	AddTime  uint64     `yaml:"-" json:"add_time,omitempty"`
	UseTime  uint64     `yaml:"-" json:"use_time,omitempty"`
}

// Direction is the traffic direction a policy applies to
type Direction string

const (
	DirectionIn      Direction = "in"
	DirectionOut     Direction = "out"
	DirectionForward Direction = "fwd"
)

// SPID identifies a security policy. It is comparable.
type SPID struct {
	Direction Direction `yaml:"direction" json:"direction"`
	Src       string    `yaml:"src" json:"src"` // CIDR
	Dst       string    `yaml:"dst" json:"dst"` // CIDR
}

// String returns a stable key for the policy id
func (id SPID) String() string {
	return string(id.Direction) + "|" + id.Src + "|" + id.Dst
}

// PolicyAction is what a policy does with matching traffic
type PolicyAction string

const (
	PolicyAllow PolicyAction = "allow"
	PolicyBlock PolicyAction = "block"
)

// PolicyTemplate describes the SA a policy requires
type PolicyTemplate struct {
	Src      string   `yaml:"src" json:"src"`
	Dst      string   `yaml:"dst" json:"dst"`
	Protocol Protocol `yaml:"protocol" json:"protocol"`
	Mode     Mode     `yaml:"mode" json:"mode"`
	SPI      uint32   `yaml:"spi,omitempty" json:"spi,omitempty"`
	ReqID    int      `yaml:"reqid,omitempty" json:"reqid,omitempty"`
}

// SP is a kernel security policy
type SP struct {
	ID        SPID             `yaml:"id" json:"id"`
	Priority  int              `yaml:"priority,omitempty" json:"priority,omitempty"`
	Action    PolicyAction     `yaml:"action" json:"action"`
	Templates []PolicyTemplate `yaml:"templates,omitempty" json:"templates,omitempty"`
}

// IKEState is the state of an IKE SA as reported by the IKE daemon
type IKEState string

const (
	IKEStateCreated     IKEState = "created"
	IKEStateConnecting  IKEState = "connecting"
	IKEStateEstablished IKEState = "established"
	IKEStatePassive     IKEState = "passive"
	IKEStateRekeying    IKEState = "rekeying"
	IKEStateRekeyed     IKEState = "rekeyed"
	IKEStateDeleting    IKEState = "deleting"
	IKEStateDestroying  IKEState = "destroying"
	IKEStateInstalling  IKEState = "installing"
	IKEStateInstalled   IKEState = "installed"
	IKEStateUpdating    IKEState = "updating"
	IKEStateRouted      IKEState = "routed"
	IKEStateRetrying    IKEState = "retrying"
	IKEStateConfigError IKEState = "config_error"
)

// ParseIKEState converts a daemon state name such as "ESTABLISHED"
func ParseIKEState(s string) IKEState {
	switch strings.ToUpper(s) {
	case "CREATED":
		return IKEStateCreated
	case "CONNECTING":
		return IKEStateConnecting
	case "ESTABLISHED":
		return IKEStateEstablished
	case "PASSIVE":
		return IKEStatePassive
	case "REKEYING":
		return IKEStateRekeying
	case "REKEYED":
		return IKEStateRekeyed
	case "DELETING":
		return IKEStateDeleting
	case "DESTROYING":
		return IKEStateDestroying
	case "INSTALLING":
		return IKEStateInstalling
	case "INSTALLED":
		return IKEStateInstalled
	case "UPDATING":
		return IKEStateUpdating
	case "ROUTED":
		return IKEStateRouted
	case "RETRYING":
		return IKEStateRetrying
	default:
		return IKEStateConfigError
	}
}

// IKEConnectionStats is a live view of an IKE connection
type IKEConnectionStats struct {
	Name           string   `json:"name"`
	State          IKEState `json:"state"`
	LocalHost      string   `json:"local_host,omitempty"`
	RemoteHost     string   `json:"remote_host,omitempty"`
	InitiatorSPI   string   `json:"initiator_spi,omitempty"`
	ResponderSPI   string   `json:"responder_spi,omitempty"`
	EstablishedSec int64    `json:"established_sec"`
	BytesIn        uint64   `json:"bytes_in"`
	BytesOut       uint64   `json:"bytes_out"`
	PacketsIn      uint64   `json:"packets_in"`
	PacketsOut     uint64   `json:"packets_out"`
}

// StatKind is the kind of object a subscription samples
type StatKind string

const (
	StatSA  StatKind = "sa"
	StatSP  StatKind = "sp"
	StatIKE StatKind = "ike"
)

// StatSnapshot is one published sample
type StatSnapshot struct {
	Kind      StatKind            `json:"kind"`
	Timestamp time.Time           `json:"timestamp"`
	SA        *SA                 `json:"sa,omitempty"`
	SP        *SP                 `json:"sp,omitempty"`
	IKE       *IKEConnectionStats `json:"ike,omitempty"`
}

// Key returns the identity of the sampled object
func (s *StatSnapshot) Key() string {
	switch s.Kind {
	case StatSA:
		if s.SA != nil {
			return FormatSPI(s.SA.SPI)
		}
	case StatSP:
		if s.SP != nil {
			return s.SP.ID.String()
		}
	case StatIKE:
		if s.IKE != nil {
			return s.IKE.Name
		}
	}
	return ""
}
