package ike

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/strongswan/govici/vici"

	"github.com/cuemby/ipsecd/pkg/log"
	"github.com/cuemby/ipsecd/pkg/types"
)

// DefaultViciSocket is where charon listens for VICI sessions
const DefaultViciSocket = "/var/run/charon.vici"

// command names from the VICI protocol
const (
	cmdLoadConn        = "load-conn"
	cmdUnloadConn      = "unload-conn"
	cmdInitiate        = "initiate"
	cmdTerminate       = "terminate"
	cmdLoadShared      = "load-shared"
	cmdLoadKey         = "load-key"
	cmdLoadAuthority   = "load-authority"
	cmdUnloadAuthority = "unload-authority"
	cmdListSAs         = "list-sas"
	eventListSA        = "list-sa"
)

// ViciClient talks to charon over a VICI session
type ViciClient struct {
	socket string
	logger zerolog.Logger

	mu      sync.Mutex
	session *vici.Session
}

// NewViciClient creates a client for the VICI socket at path
func NewViciClient(path string) *ViciClient {
	if path == "" {
		path = DefaultViciSocket
	}
	return &ViciClient{
		socket: path,
		logger: log.WithComponent("vici"),
	}
}

// Initialize opens the VICI session. Calling it again is a no-op.
func (c *ViciClient) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return nil
	}

	s, err := vici.NewSession(vici.WithAddr("unix", c.socket))
	if err != nil {
		return fmt.Errorf("failed to open vici session on %s: %w", c.socket, err)
	}
	c.session = s
	c.logger.Info().Str("socket", c.socket).Msg("VICI session established")
	return nil
}

// Close ends the VICI session
func (c *ViciClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

func (c *ViciClient) request(cmd string, msg *vici.Message) (*vici.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, types.ErrNotReady
	}

	resp, err := c.session.CommandRequest(cmd, msg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return resp, nil
}

// CreateConnection loads (or replaces) a connection in charon
func (c *ViciClient) CreateConnection(conn *types.IKEConnection) error {
	if conn == nil {
		return types.ErrNullParameter
	}

	body, err := connectionMessage(conn)
	if err != nil {
		return err
	}

	msg := vici.NewMessage()
	if err := msg.Set(conn.Name, body); err != nil {
		return fmt.Errorf("failed to build %s: %w", cmdLoadConn, err)
	}

	_, err = c.request(cmdLoadConn, msg)
	return err
}

func connectionMessage(conn *types.IKEConnection) (*vici.Message, error) {
	body := vici.NewMessage()

	local, err := peerMessage(&conn.LocalPeer)
	if err != nil {
		return nil, err
	}
	remote, err := peerMessage(&conn.RemotePeer)
	if err != nil {
		return nil, err
	}

	child := vici.NewMessage()
	if err := child.Set("mode", string(conn.Child.Mode)); err != nil {
		return nil, err
	}
	if p := conn.Child.Proposal(); p != "" {
		key := "esp_proposals"
		if conn.Child.AuthMethod == types.ProtocolAH {
			key = "ah_proposals"
		}
		if err := child.Set(key, []string{p}); err != nil {
			return nil, err
		}
	}
	children := vici.NewMessage()
	if err := children.Set(conn.Name, child); err != nil {
		return nil, err
	}

	fields := []struct {
		key   string
		value interface{}
	}{
		{"local_addrs", []string{conn.LocalAddr}},
		{"remote_addrs", []string{conn.RemoteAddr}},
		{"version", versionString(conn.Version)},
		{"local", local},
		{"remote", remote},
		{"children", children},
	}
	for _, f := range fields {
		if err := body.Set(f.key, f.value); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", f.key, err)
		}
	}
	if p := conn.Proposal(); p != "" {
		if err := body.Set("proposals", []string{p}); err != nil {
			return nil, err
		}
	}

	return body, nil
}

func peerMessage(p *types.Peer) (*vici.Message, error) {
	m := vici.NewMessage()
	if err := m.Set("auth", string(p.AuthBy)); err != nil {
		return nil, err
	}
	if p.ID != "" {
		if err := m.Set("id", p.ID); err != nil {
			return nil, err
		}
	}
	if p.Cert != "" {
		if err := m.Set("certs", []string{p.Cert}); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func versionString(v types.IKEVersion) string {
	switch v {
	case types.IKEVersionV1:
		return "1"
	case types.IKEVersionV2:
		return "2"
	default:
		return "0"
	}
}

// DeleteConnection unloads a connection by name
func (c *ViciClient) DeleteConnection(name string) error {
	msg := vici.NewMessage()
	if err := msg.Set("name", name); err != nil {
		return err
	}
	_, err := c.request(cmdUnloadConn, msg)
	return err
}

// StartConnection initiates the child SA of a connection
func (c *ViciClient) StartConnection(name string, timeout time.Duration) error {
	msg := vici.NewMessage()
	for k, v := range map[string]string{
		"child":   name,
		"ike":     name,
		"timeout": strconv.FormatInt(timeout.Milliseconds(), 10),
	} {
		if err := msg.Set(k, v); err != nil {
			return err
		}
	}
	_, err := c.request(cmdInitiate, msg)
	return err
}

// StopConnection terminates the IKE SA of a connection
func (c *ViciClient) StopConnection(name string, timeout time.Duration) error {
	msg := vici.NewMessage()
	for k, v := range map[string]string{
		"ike":     name,
		"timeout": strconv.FormatInt(timeout.Milliseconds(), 10),
	} {
		if err := msg.Set(k, v); err != nil {
			return err
		}
	}
	_, err := c.request(cmdTerminate, msg)
	return err
}

// LoadCredential loads a pre-shared key or an RSA private key
func (c *ViciClient) LoadCredential(cred *types.Credential) error {
	if cred == nil {
		return types.ErrNullParameter
	}

	msg := vici.NewMessage()
	switch cred.Type {
	case types.CredentialPSK:
		if err := msg.Set("type", "IKE"); err != nil {
			return err
		}
		if err := msg.Set("data", cred.PSK); err != nil {
			return err
		}
		if len(cred.Owners) > 0 {
			if err := msg.Set("owners", cred.Owners); err != nil {
				return err
			}
		}
		_, err := c.request(cmdLoadShared, msg)
		return err

	case types.CredentialRSA:
		if err := msg.Set("type", "rsa"); err != nil {
			return err
		}
		if err := msg.Set("data", string(cred.RSA)); err != nil {
			return err
		}
		_, err := c.request(cmdLoadKey, msg)
		return err

	default:
		return fmt.Errorf("unsupported credential type: %s", cred.Type)
	}
}

// LoadAuthority loads a CA certificate
func (c *ViciClient) LoadAuthority(ca *types.CA) error {
	if ca == nil {
		return types.ErrNullParameter
	}

	body := vici.NewMessage()
	if err := body.Set("cacert", ca.Cert); err != nil {
		return err
	}
	msg := vici.NewMessage()
	if err := msg.Set(ca.Name, body); err != nil {
		return err
	}
	_, err := c.request(cmdLoadAuthority, msg)
	return err
}

// UnloadAuthority removes a CA by name
func (c *ViciClient) UnloadAuthority(name string) error {
	msg := vici.NewMessage()
	if err := msg.Set("name", name); err != nil {
		return err
	}
	_, err := c.request(cmdUnloadAuthority, msg)
	return err
}

// ikeSA mirrors the list-sa event section of one IKE SA
type ikeSA struct {
	State        string             `vici:"state"`
	LocalHost    string             `vici:"local-host"`
	RemoteHost   string             `vici:"remote-host"`
	InitiatorSPI string             `vici:"initiator-spi"`
	ResponderSPI string             `vici:"responder-spi"`
	Established  string             `vici:"established"`
	Children     map[string]childSA `vici:"child-sas"`
}

type childSA struct {
	BytesIn    string `vici:"bytes-in"`
	BytesOut   string `vici:"bytes-out"`
	PacketsIn  string `vici:"packets-in"`
	PacketsOut string `vici:"packets-out"`
}

// GetConnectionStats lists the IKE SA of a connection
func (c *ViciClient) GetConnectionStats(name string) (*types.IKEConnectionStats, error) {
	msg := vici.NewMessage()
	if err := msg.Set("ike", name); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, types.ErrNotReady
	}
	stream, err := c.session.StreamedCommandRequest(cmdListSAs, eventListSA, msg)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmdListSAs, err)
	}

	for _, m := range stream.Messages() {
		if err := m.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", cmdListSAs, err)
		}
		section, ok := m.Get(name).(*vici.Message)
		if !ok {
			continue
		}
		var sa ikeSA
		if err := vici.UnmarshalMessage(section, &sa); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", eventListSA, err)
		}
		return sa.stats(name), nil
	}

	return nil, fmt.Errorf("connection %s: %w", name, types.ErrNotFound)
}

func (sa *ikeSA) stats(name string) *types.IKEConnectionStats {
	st := &types.IKEConnectionStats{
		Name:           name,
		State:          types.ParseIKEState(sa.State),
		LocalHost:      sa.LocalHost,
		RemoteHost:     sa.RemoteHost,
		InitiatorSPI:   sa.InitiatorSPI,
		ResponderSPI:   sa.ResponderSPI,
		EstablishedSec: parseInt(sa.Established),
	}
	for _, child := range sa.Children {
		st.BytesIn += parseUint(child.BytesIn)
		st.BytesOut += parseUint(child.BytesOut)
		st.PacketsIn += parseUint(child.PacketsIn)
		st.PacketsOut += parseUint(child.PacketsOut)
	}
	return st
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}
