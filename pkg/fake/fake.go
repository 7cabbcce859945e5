// Package fake provides in-memory IKE and kernel IPsec clients for tests.
package fake

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/ipsecd/pkg/ike"
	"github.com/cuemby/ipsecd/pkg/types"
	"github.com/cuemby/ipsecd/pkg/xfrm"
)

var (
	_ ike.Client  = (*IKEClient)(nil)
	_ xfrm.Client = (*XfrmClient)(nil)
)

// ErrInjected is returned by calls listed in a fake's Fail set
var ErrInjected = errors.New("injected failure")

// Recorder records the calls made on a fake, in order
type Recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	hook  func(call string)
}

func (c *Recorder) record(call string) error {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	failed := c.fail[call]
	hook := c.hook
	c.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if failed {
		return ErrInjected
	}
	return nil
}

// Fail makes every later call with this exact description fail
func (c *Recorder) Fail(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail == nil {
		c.fail = make(map[string]bool)
	}
	c.fail[call] = true
}

// OnCall registers a function run after each call is recorded
func (c *Recorder) OnCall(fn func(call string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = fn
}

// Calls returns a copy of the recorded calls
func (c *Recorder) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Count returns the number of recorded calls
func (c *Recorder) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// IKEClient is an in-memory ike.Client
type IKEClient struct {
	Recorder

	mu          sync.Mutex
	connections map[string]types.IKEConnection
	authorities map[string]types.CA
}

// NewIKEClient creates an empty fake IKE client
func NewIKEClient() *IKEClient {
	return &IKEClient{
		connections: make(map[string]types.IKEConnection),
		authorities: make(map[string]types.CA),
	}
}

func (f *IKEClient) Initialize() error {
	return f.record("Initialize")
}

func (f *IKEClient) CreateConnection(conn *types.IKEConnection) error {
	if err := f.record("CreateConnection " + conn.Name); err != nil {
		return err
	}
	f.mu.Lock()
	f.connections[conn.Name] = *conn
	f.mu.Unlock()
	return nil
}

func (f *IKEClient) DeleteConnection(name string) error {
	if err := f.record("DeleteConnection " + name); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.connections, name)
	f.mu.Unlock()
	return nil
}

func (f *IKEClient) StartConnection(name string, _ time.Duration) error {
	return f.record("StartConnection " + name)
}

func (f *IKEClient) StopConnection(name string, _ time.Duration) error {
	return f.record("StopConnection " + name)
}

func (f *IKEClient) LoadCredential(cred *types.Credential) error {
	return f.record("LoadCredential " + string(cred.Type))
}

func (f *IKEClient) LoadAuthority(ca *types.CA) error {
	if err := f.record("LoadAuthority " + ca.Name); err != nil {
		return err
	}
	f.mu.Lock()
	f.authorities[ca.Name] = *ca
	f.mu.Unlock()
	return nil
}

func (f *IKEClient) UnloadAuthority(name string) error {
	if err := f.record("UnloadAuthority " + name); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.authorities, name)
	f.mu.Unlock()
	return nil
}

func (f *IKEClient) GetConnectionStats(name string) (*types.IKEConnectionStats, error) {
	if err := f.record("GetConnectionStats " + name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[name]
	if !ok {
		return nil, fmt.Errorf("connection %q: %w", name, types.ErrNotFound)
	}
	return &types.IKEConnectionStats{
		Name:       conn.Name,
		State:      types.IKEStateEstablished,
		LocalHost:  conn.LocalAddr,
		RemoteHost: conn.RemoteAddr,
	}, nil
}

// Connection returns a loaded connection
func (f *IKEClient) Connection(name string) (types.IKEConnection, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[name]
	return conn, ok
}

// XfrmClient is an in-memory xfrm.Client
type XfrmClient struct {
	Recorder

	mu  sync.Mutex
	sas map[uint32]types.SA
	sps map[types.SPID]types.SP
}

// NewXfrmClient creates an empty fake kernel client
func NewXfrmClient() *XfrmClient {
	return &XfrmClient{
		sas: make(map[uint32]types.SA),
		sps: make(map[types.SPID]types.SP),
	}
}

func (f *XfrmClient) AddSA(sa *types.SA) error {
	if err := f.record("AddSA " + types.FormatSPI(sa.SPI)); err != nil {
		return err
	}
	f.mu.Lock()
	f.sas[sa.SPI] = *sa
	f.mu.Unlock()
	return nil
}

func (f *XfrmClient) ModifySA(sa *types.SA) error {
	if err := f.record("ModifySA " + types.FormatSPI(sa.SPI)); err != nil {
		return err
	}
	f.mu.Lock()
	f.sas[sa.SPI] = *sa
	f.mu.Unlock()
	return nil
}

func (f *XfrmClient) GetSA(spi uint32) (*types.SA, error) {
	if err := f.record("GetSA " + types.FormatSPI(spi)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sa, ok := f.sas[spi]
	if !ok {
		return nil, fmt.Errorf("sa %s: %w", types.FormatSPI(spi), types.ErrNotFound)
	}
	return &sa, nil
}

func (f *XfrmClient) DelSA(spi uint32) error {
	if err := f.record("DelSA " + types.FormatSPI(spi)); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.sas, spi)
	f.mu.Unlock()
	return nil
}

func (f *XfrmClient) AddSP(sp *types.SP) error {
	if err := f.record("AddSP " + sp.ID.String()); err != nil {
		return err
	}
	f.mu.Lock()
	f.sps[sp.ID] = *sp
	f.mu.Unlock()
	return nil
}

func (f *XfrmClient) ModifySP(sp *types.SP) error {
	if err := f.record("ModifySP " + sp.ID.String()); err != nil {
		return err
	}
	f.mu.Lock()
	f.sps[sp.ID] = *sp
	f.mu.Unlock()
	return nil
}

func (f *XfrmClient) GetSP(id types.SPID) (*types.SP, error) {
	if err := f.record("GetSP " + id.String()); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.sps[id]
	if !ok {
		return nil, fmt.Errorf("sp %s: %w", id, types.ErrNotFound)
	}
	return &sp, nil
}

func (f *XfrmClient) DelSP(id types.SPID) error {
	if err := f.record("DelSP " + id.String()); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.sps, id)
	f.mu.Unlock()
	return nil
}

// SA returns an installed SA
func (f *XfrmClient) SA(spi uint32) (types.SA, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sa, ok := f.sas[spi]
	return sa, ok
}
