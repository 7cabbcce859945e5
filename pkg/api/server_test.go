package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ipsecd/pkg/dispatcher"
	"github.com/cuemby/ipsecd/pkg/metrics"
	"github.com/cuemby/ipsecd/pkg/orchestrator"
	"github.com/cuemby/ipsecd/pkg/storage"
	"github.com/cuemby/ipsecd/pkg/types"
)

type fakeDaemon struct {
	store   storage.Store
	status  orchestrator.Status
	applied [][]byte
	queued  int
	err     error
}

func (d *fakeDaemon) Status() orchestrator.Status { return d.status }

func (d *fakeDaemon) Store() storage.Store { return d.store }

func (d *fakeDaemon) ApplyYAML(data []byte) (int, error) {
	d.applied = append(d.applied, data)
	return d.queued, d.err
}

func newTestServer(t *testing.T, readOnly bool) (*Server, *fakeDaemon) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir(), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d := &fakeDaemon{store: store}
	return NewServer(&Config{Daemon: d, ReadOnly: readOnly}), d
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	metrics.Reset()
	t.Cleanup(metrics.Reset)
	s, _ := newTestServer(t, false)

	// Nothing registered: healthy but not ready
	w := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	for _, c := range metrics.DefaultCriticalComponents {
		metrics.RegisterComponent(c, true, "ok")
	}
	w = do(s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")

	w = do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ipsecd_api_requests_total")
}

func TestStatusEndpoint(t *testing.T) {
	s, d := newTestServer(t, false)
	d.status = orchestrator.Status{
		Dispatcher: dispatcher.Stats{Executed: 3, Queued: 1},
		Listener:   orchestrator.ListenerStatus{Socket: "/run/test.sock", Ready: true},
	}

	w := do(s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got orchestrator.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, uint64(3), got.Dispatcher.Executed)
	assert.Equal(t, 1, got.Dispatcher.Queued)
	assert.True(t, got.Listener.Ready)
	assert.Equal(t, "/run/test.sock", got.Listener.Socket)

	w = do(s, http.MethodPost, "/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	s, d := newTestServer(t, false)
	now := time.Now()
	require.NoError(t, d.store.PutStat(&types.StatSnapshot{Kind: types.StatSA, Timestamp: now, SA: &types.SA{SPI: 0x1000}}))
	require.NoError(t, d.store.PutStat(&types.StatSnapshot{Kind: types.StatIKE, Timestamp: now, IKE: &types.IKEConnectionStats{Name: "site-a"}}))

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "all", target: "/stats", want: 2},
		{name: "sa only", target: "/stats?kind=sa", want: 1},
		{name: "ike only", target: "/stats?kind=ike", want: 1},
		{name: "no sp", target: "/stats?kind=sp", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, w.Code)

			var got []*types.StatSnapshot
			require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
			assert.Len(t, got, tt.want)
		})
	}
}

func TestErrorsEndpoint(t *testing.T) {
	s, d := newTestServer(t, false)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.store.RecordError(&types.IPsecError{
			ID:         string(rune('a' + i)),
			Connection: "site-a",
			Event:      types.ErrorEventPeerAuthFailed,
			Timestamp:  time.Now(),
		}))
	}

	w := do(s, http.MethodGet, "/errors", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got []*types.IPsecError
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].ID)

	w = do(s, http.MethodGet, "/errors?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	got = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	for _, bad := range []string{"x", "-1"} {
		w = do(s, http.MethodGet, "/errors?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestApplyEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		queued   int
		err      error
		wantCode int
		wantErr  bool
	}{
		{name: "applied", queued: 4, wantCode: http.StatusAccepted},
		{name: "rejected", err: errors.New("invalid manifest"), wantCode: http.StatusBadRequest, wantErr: true},
		{name: "partial", queued: 2, err: errors.New("credential failed"), wantCode: http.StatusAccepted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := newTestServer(t, false)
			d.queued, d.err = tt.queued, tt.err

			w := do(s, http.MethodPost, "/apply", "sas: []\n")
			assert.Equal(t, tt.wantCode, w.Code)

			var resp ApplyResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.queued, resp.Queued)
			assert.Equal(t, tt.wantErr, resp.Error != "")

			require.Len(t, d.applied, 1)
			assert.Equal(t, "sas: []\n", string(d.applied[0]))
		})
	}
}

func TestApplyEndpointRestrictions(t *testing.T) {
	s, d := newTestServer(t, true)

	w := do(s, http.MethodPost, "/apply", "sas: []\n")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(s, http.MethodGet, "/apply", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	assert.Empty(t, d.applied)
}

func TestApplyEndpointTooLarge(t *testing.T) {
	s, d := newTestServer(t, false)

	w := do(s, http.MethodPost, "/apply", strings.Repeat("#", maxManifestSize+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, d.applied)
}

func TestStoreUnavailable(t *testing.T) {
	s := NewServer(&Config{Daemon: &fakeDaemon{}})

	for _, target := range []string{"/stats", "/errors"} {
		w := do(s, http.MethodGet, target, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, target)
	}
}

func TestShutdownNotStarted(t *testing.T) {
	metrics.Reset()
	t.Cleanup(metrics.Reset)

	s := NewServer(&Config{Daemon: &fakeDaemon{}})
	assert.NoError(t, s.Shutdown(context.Background()))
}

func waitStart(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}

func TestStartAfterShutdownReturns(t *testing.T) {
	metrics.Reset()
	t.Cleanup(metrics.Reset)

	s := NewServer(&Config{Daemon: &fakeDaemon{}})
	require.NoError(t, s.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Start("127.0.0.1:0") }()
	waitStart(t, done)

	comp := metrics.GetHealth().Components[metrics.ComponentAPI]
	assert.Contains(t, comp, "stopped")
}

func TestShutdownStopsServing(t *testing.T) {
	metrics.Reset()
	t.Cleanup(metrics.Reset)

	s := NewServer(&Config{Daemon: &fakeDaemon{}})
	done := make(chan error, 1)
	go func() { done <- s.Start("127.0.0.1:0") }()

	// Shutdown may run before or after Start has begun serving
	require.Eventually(t, func() bool {
		_, ok := metrics.GetHealth().Components[metrics.ComponentAPI]
		return ok
	}, time.Second, time.Millisecond)
	require.NoError(t, s.Shutdown(context.Background()))
	waitStart(t, done)
}

func TestStartListenError(t *testing.T) {
	metrics.Reset()
	t.Cleanup(metrics.Reset)

	s := NewServer(&Config{Daemon: &fakeDaemon{}})
	err := s.Start("256.0.0.1:bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
