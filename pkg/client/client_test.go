package client

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ipsecd/pkg/api"
	"github.com/cuemby/ipsecd/pkg/orchestrator"
	"github.com/cuemby/ipsecd/pkg/publisher"
	"github.com/cuemby/ipsecd/pkg/storage"
	"github.com/cuemby/ipsecd/pkg/types"
)

type stubDaemon struct {
	store  storage.Store
	queued int
	err    error
	got    []byte
}

func (d *stubDaemon) Status() orchestrator.Status {
	return orchestrator.Status{
		Publisher:     publisher.Stats{Passes: 7},
		Subscriptions: []publisher.Subscription{publisher.SASubscription(0x2000)},
	}
}

func (d *stubDaemon) Store() storage.Store { return d.store }

func (d *stubDaemon) ApplyYAML(data []byte) (int, error) {
	d.got = data
	return d.queued, d.err
}

func newTestClient(t *testing.T) (*Client, *stubDaemon) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir(), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d := &stubDaemon{store: store}
	srv := httptest.NewServer(api.NewServer(&api.Config{Daemon: d}).Handler())
	t.Cleanup(srv.Close)

	return NewClient(srv.URL), d
}

func TestClientStatus(t *testing.T) {
	c, _ := newTestClient(t)

	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), status.Publisher.Passes)
	require.Len(t, status.Subscriptions, 1)
	assert.Equal(t, uint32(0x2000), status.Subscriptions[0].SPI)
}

func TestClientStatsAndErrors(t *testing.T) {
	c, d := newTestClient(t)
	require.NoError(t, d.store.PutStat(&types.StatSnapshot{
		Kind:      types.StatSA,
		Timestamp: time.Now(),
		SA:        &types.SA{SPI: 0x2000, Stats: types.SAStats{Bytes: 42}},
	}))
	require.NoError(t, d.store.RecordError(&types.IPsecError{ID: "e1", Event: types.ErrorEventCertExpired}))

	snaps, err := c.Stats(types.StatSA)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, uint64(42), snaps[0].SA.Stats.Bytes)

	snaps, err = c.Stats(types.StatIKE)
	require.NoError(t, err)
	assert.Empty(t, snaps)

	errs, err := c.Errors(10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, types.ErrorEventCertExpired, errs[0].Event)

	_, err = c.Errors(-1)
	assert.Error(t, err)
}

func TestClientApply(t *testing.T) {
	tests := []struct {
		name       string
		queued     int
		err        error
		wantQueued int
		wantErr    string
	}{
		{name: "applied", queued: 3, wantQueued: 3},
		{name: "rejected", err: errors.New("sas[0]: spi is required"), wantErr: "manifest rejected: sas[0]: spi is required"},
		{name: "partial", queued: 2, err: errors.New("psk failed"), wantQueued: 2, wantErr: "manifest partially applied: psk failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, d := newTestClient(t)
			d.queued, d.err = tt.queued, tt.err

			n, err := c.Apply([]byte("sas: []\n"))
			assert.Equal(t, tt.wantQueued, n)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, "sas: []\n", string(d.got))
		})
	}
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	addr := srv.Listener.Addr().String()
	srv.Close()

	c := NewClient(addr)
	_, err := c.Status()
	assert.Error(t, err)
}
