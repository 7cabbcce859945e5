package errnotify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ipsecd/pkg/types"
)

type readResult struct {
	data []byte
	n    int // used when data is nil
	err  error
}

// fakeSys scripts the reads of one connection. Read blocks until a result
// is queued or the socket is shut down.
type fakeSys struct {
	mu          sync.Mutex
	socketErr   error
	connectErr  error
	nextFD      int
	sockets     int
	connectPath string
	closed      []int
	shutdowns   int

	reads      chan readResult
	shutdownCh chan struct{}
}

func newFakeSys() *fakeSys {
	return &fakeSys{
		nextFD:     7,
		reads:      make(chan readResult, 16),
		shutdownCh: make(chan struct{}),
	}
}

func (f *fakeSys) Socket(domain, typ, proto int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sockets++
	if f.socketErr != nil {
		return -1, f.socketErr
	}
	fd := f.nextFD
	f.nextFD++
	return fd, nil
}

func (f *fakeSys) Connect(fd int, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectPath = path
	return f.connectErr
}

func (f *fakeSys) Read(fd int, p []byte) (int, error) {
	select {
	case r := <-f.reads:
		if r.data == nil {
			return r.n, r.err
		}
		return copy(p, r.data), r.err
	case <-f.shutdownCh:
		return 0, nil
	}
}

func (f *fakeSys) Shutdown(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shutdowns == 0 {
		close(f.shutdownCh)
	}
	f.shutdowns++
	return nil
}

func (f *fakeSys) Close(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, fd)
	return nil
}

func (f *fakeSys) closedFDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.closed...)
}

func (f *fakeSys) send(chunks ...[]byte) {
	for _, c := range chunks {
		f.reads <- readResult{data: c}
	}
}

type collector struct {
	ch chan *types.IPsecError
}

func newCollector() *collector {
	return &collector{ch: make(chan *types.IPsecError, 16)}
}

func (c *collector) ErrorEvent(err *types.IPsecError) {
	c.ch <- err
}

func (c *collector) next(t *testing.T) *types.IPsecError {
	t.Helper()
	select {
	case err := <-c.ch:
		return err
	case <-time.After(time.Second):
		t.Fatal("no error delivered")
		return nil
	}
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestListener(sys *fakeSys, c Consumer) *Listener {
	return NewListener(&Config{
		Path:     "/tmp/charon.enfy",
		Consumer: c,
		Sys:      sys,
		Now:      func() time.Time { return fixedNow },
	})
}

func encode(t *testing.T, r *Record) []byte {
	t.Helper()
	b, err := r.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, RecordSize)
	return b
}

func TestInitialize(t *testing.T) {
	sys := newFakeSys()
	l := newTestListener(sys, nil)

	assert.False(t, l.IsReady())
	require.NoError(t, l.Initialize())
	assert.True(t, l.IsReady())
	assert.True(t, l.IsRunning())
	assert.Equal(t, "/tmp/charon.enfy", sys.connectPath)

	// Already ready: no new socket
	require.NoError(t, l.Initialize())
	assert.Equal(t, 1, sys.sockets)

	require.NoError(t, l.Close())
	assert.False(t, l.IsReady())
	assert.False(t, l.IsRunning())
	assert.Equal(t, []int{7}, sys.closedFDs())
	assert.NoError(t, l.Err())
}

func TestInitializeSocketFailure(t *testing.T) {
	sys := newFakeSys()
	sys.socketErr = errors.New("EMFILE")
	l := newTestListener(sys, nil)

	err := l.Initialize()
	assert.ErrorIs(t, err, types.ErrSocketCreate)
	assert.False(t, l.IsReady())
	assert.False(t, l.IsRunning())
	assert.Empty(t, sys.closedFDs())
}

func TestInitializeConnectFailure(t *testing.T) {
	sys := newFakeSys()
	sys.connectErr = errors.New("ENOENT")
	l := newTestListener(sys, nil)

	err := l.Initialize()
	assert.ErrorIs(t, err, types.ErrSocketConnect)
	assert.Contains(t, err.Error(), "/tmp/charon.enfy")
	assert.False(t, l.IsReady())
	assert.False(t, l.IsRunning())
	assert.Equal(t, []int{7}, sys.closedFDs())
}

func TestReassembleShortReads(t *testing.T) {
	rec := &Record{
		Type: 3,
		Str:  "authentication of 'CC1' with pre-shared key failed",
		Name: "IPsec",
		ID:   "CC1",
		IP:   "10.100.1.1:8080",
	}

	tests := []struct {
		name   string
		splits []int
	}{
		{name: "single read", splits: []int{RecordSize}},
		{name: "two halves", splits: []int{RecordSize / 2, RecordSize / 2}},
		{name: "uneven", splits: []int{1, 500, RecordSize - 501}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newFakeSys()
			c := newCollector()
			l := newTestListener(sys, c)
			require.NoError(t, l.Initialize())
			defer l.Close()

			b := encode(t, rec)
			off := 0
			for _, n := range tt.splits {
				sys.send(b[off : off+n])
				off += n
			}

			got := c.next(t)
			assert.Equal(t, "IPsec", got.Connection)
			assert.Equal(t, "Peer 'CC1' with connection name 'IPsec' and address of '10.100.1.1:8080' encountered an error", got.Message)
			assert.Equal(t, rec.Str, got.Detail)
			assert.Equal(t, types.ErrorEventPeerAuthFailed, got.Event)
			assert.Equal(t, fixedNow, got.Timestamp)
			assert.NotEmpty(t, got.ID)
			assert.True(t, l.IsRunning())
		})
	}
}

func TestConsecutiveRecords(t *testing.T) {
	sys := newFakeSys()
	c := newCollector()
	l := newTestListener(sys, c)
	require.NoError(t, l.Initialize())
	defer l.Close()

	sys.send(encode(t, &Record{Type: 8, Name: "first"}), encode(t, &Record{Type: 42, Name: "second"}))

	first := c.next(t)
	second := c.next(t)
	assert.Equal(t, "first", first.Connection)
	assert.Equal(t, types.ErrorEventProposalMismatchIKE, first.Event)
	assert.Equal(t, "second", second.Connection)
	assert.Equal(t, types.ErrorEventUnknown, second.Event)
}

func TestReadFailure(t *testing.T) {
	tests := []struct {
		name   string
		result readResult
	}{
		{name: "negative count", result: readResult{n: -1}},
		{name: "read error", result: readResult{n: -1, err: errors.New("ECONNRESET")}},
		{name: "peer closed", result: readResult{n: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newFakeSys()
			c := newCollector()
			l := newTestListener(sys, c)
			require.NoError(t, l.Initialize())

			// Half a record, then the failure
			sys.send(make([]byte, RecordSize/2))
			sys.reads <- tt.result

			require.Eventually(t, func() bool { return !l.IsRunning() && !l.IsReady() }, time.Second, time.Millisecond)
			assert.ErrorIs(t, l.Err(), types.ErrIO)
			assert.Equal(t, []int{7}, sys.closedFDs())
			assert.Empty(t, c.ch)

			// Cleanup is idempotent
			require.NoError(t, l.Close())
			assert.Equal(t, []int{7}, sys.closedFDs())
		})
	}
}

func TestReinitializeAfterFailure(t *testing.T) {
	sys := newFakeSys()
	c := newCollector()
	l := newTestListener(sys, c)
	require.NoError(t, l.Initialize())

	sys.reads <- readResult{n: -1}
	require.Eventually(t, func() bool { return !l.IsReady() }, time.Second, time.Millisecond)

	require.NoError(t, l.Initialize())
	assert.True(t, l.IsRunning())
	assert.NoError(t, l.Err())
	assert.Equal(t, 2, sys.sockets)

	sys.send(encode(t, &Record{Type: 17, Name: "after"}))
	assert.Equal(t, types.ErrorEventCertExpired, c.next(t).Event)

	require.NoError(t, l.Close())
	assert.Equal(t, []int{7, 8}, sys.closedFDs())
}

func TestCloseWhileBlocked(t *testing.T) {
	sys := newFakeSys()
	c := newCollector()
	l := newTestListener(sys, c)
	require.NoError(t, l.Initialize())

	// Partial record pending; Close must not deliver it
	sys.send(make([]byte, 100))

	done := make(chan struct{})
	go func() {
		_ = l.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	assert.False(t, l.IsRunning())
	assert.NoError(t, l.Err())
	assert.Equal(t, 1, sys.shutdowns)
	assert.Equal(t, []int{7}, sys.closedFDs())
	assert.Empty(t, c.ch)

	require.NoError(t, l.Close())
	assert.Equal(t, []int{7}, sys.closedFDs())
}

func TestCloseNeverInitialized(t *testing.T) {
	sys := newFakeSys()
	l := newTestListener(sys, nil)

	require.NoError(t, l.Close())
	assert.Empty(t, sys.closedFDs())
	assert.Zero(t, sys.shutdowns)
}

func TestNilConsumer(t *testing.T) {
	sys := newFakeSys()
	l := newTestListener(sys, nil)
	require.NoError(t, l.Initialize())
	defer l.Close()

	sys.send(encode(t, &Record{Type: 1, Name: "dropped"}))
	sys.send(encode(t, &Record{Type: 2, Name: "dropped"}))

	// Both records consumed without a consumer
	assert.Eventually(t, func() bool { return len(sys.reads) == 0 }, time.Second, time.Millisecond)
	assert.True(t, l.IsRunning())
}

func TestDefaults(t *testing.T) {
	l := NewListener(&Config{})
	assert.Equal(t, DefaultSocket, l.Path())
	assert.NotNil(t, l.sys)
}
