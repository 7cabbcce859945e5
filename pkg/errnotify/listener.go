package errnotify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ipsecd/pkg/lifecycle"
	"github.com/cuemby/ipsecd/pkg/log"
	"github.com/cuemby/ipsecd/pkg/types"
)

// DefaultSocket is where charon's error-notify plugin listens
const DefaultSocket = "/var/run/charon.enfy"

// noSocket marks the descriptor as unset
const noSocket = -1

// Consumer receives decoded errors on the listener goroutine. It must not
// call Close on the listener that delivered the error.
type Consumer interface {
	ErrorEvent(err *types.IPsecError)
}

// ConsumerFunc adapts a function to a Consumer
type ConsumerFunc func(err *types.IPsecError)

// ErrorEvent calls f(err)
func (f ConsumerFunc) ErrorEvent(err *types.IPsecError) { f(err) }

// Config holds listener configuration
type Config struct {
	Path     string      // defaults to DefaultSocket
	Consumer Consumer    // records are logged and dropped when nil
	Sys      SystemCalls // defaults to UnixCalls()
	Now      func() time.Time
}

// Listener holds one connection to the error-notify socket and forwards
// every record it reads to a consumer.
type Listener struct {
	path     string
	consumer Consumer
	sys      SystemCalls
	now      func() time.Time
	logger   zerolog.Logger
	runner   *lifecycle.Runner

	mu    sync.Mutex
	fd    int
	ready bool
	err   error
}

// NewListener creates a listener that is not connected yet
func NewListener(cfg *Config) *Listener {
	l := &Listener{
		path:     cfg.Path,
		consumer: cfg.Consumer,
		sys:      cfg.Sys,
		now:      cfg.Now,
		logger:   log.WithComponent("errnotify"),
		runner:   lifecycle.NewRunner(),
		fd:       noSocket,
	}
	if l.path == "" {
		l.path = DefaultSocket
	}
	if l.sys == nil {
		l.sys = UnixCalls()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Initialize connects to the socket and starts the receiver. It returns
// nil without doing anything when the listener is already ready.
func (l *Listener) Initialize() error {
	if l.IsReady() {
		return nil
	}

	// A receiver that failed on its own may still be returning
	l.runner.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ready {
		return nil
	}

	fd, err := l.sys.Socket(afUnix, sockStream, 0)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrSocketCreate, err)
	}

	if err := l.sys.Connect(fd, l.path); err != nil {
		_ = l.sys.Close(fd)
		return fmt.Errorf("%w: %s: %w", types.ErrSocketConnect, l.path, err)
	}

	if err := l.runner.Start(func(stopCh <-chan struct{}) { l.receive(stopCh, fd) }); err != nil {
		_ = l.sys.Close(fd)
		return err
	}

	l.fd = fd
	l.ready = true
	l.err = nil

	l.logger.Info().Str("socket", l.path).Msg("Connected to error notify socket")
	return nil
}

// Close stops the receiver, waits for it to return and closes the socket.
// Calling Close more than once is safe.
func (l *Listener) Close() error {
	l.cleanup(true)
	return nil
}

// IsReady reports whether the socket is connected
func (l *Listener) IsReady() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// IsRunning reports whether the receiver is running
func (l *Listener) IsRunning() bool {
	return l.runner.Running()
}

// Err returns the error that stopped the receiver, if any
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Path returns the socket path
func (l *Listener) Path() string {
	return l.path
}

// cleanup stops the receiver and releases the socket. join is false when
// called from the receiver itself.
func (l *Listener) cleanup(join bool) {
	if join {
		if err := l.runner.Stop(l.shutdown); err != nil {
			// Already stopping on its own
			l.runner.Wait()
		}
	} else {
		l.runner.Cancel()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ready = false
	if l.fd != noSocket {
		if err := l.sys.Close(l.fd); err != nil {
			l.logger.Debug().Err(err).Msg("Failed to close error notify socket")
		}
		l.fd = noSocket
	}
}

// shutdown unblocks a pending read
func (l *Listener) shutdown() {
	l.mu.Lock()
	fd := l.fd
	l.mu.Unlock()

	if fd != noSocket {
		_ = l.sys.Shutdown(fd)
	}
}

func (l *Listener) receive(stopCh <-chan struct{}, fd int) {
	buf := make([]byte, RecordSize)

	for !lifecycle.Stopped(stopCh) {
		if err := l.readRecord(fd, buf); err != nil {
			if lifecycle.Stopped(stopCh) {
				return
			}
			l.fail(err)
			return
		}

		// Stopped while the record was being assembled
		if lifecycle.Stopped(stopCh) {
			return
		}

		rec, err := DecodeRecord(buf)
		if err != nil {
			l.logger.Error().Err(err).Msg("Failed to decode error record")
			continue
		}
		l.deliver(rec)
	}
}

// readRecord fills buf, reading as many times as needed
func (l *Listener) readRecord(fd int, buf []byte) error {
	for n := 0; n < len(buf); {
		r, err := l.sys.Read(fd, buf[n:])
		switch {
		case err != nil:
			return err
		case r < 0:
			return fmt.Errorf("read returned %d", r)
		case r == 0:
			return io.EOF
		}
		n += r
	}
	return nil
}

func (l *Listener) fail(cause error) {
	err := fmt.Errorf("%w: failed to read error record: %w", types.ErrIO, cause)

	l.mu.Lock()
	l.err = err
	l.mu.Unlock()

	l.logger.Error().Err(err).Str("socket", l.path).Msg("Error notify receiver stopped")
	l.cleanup(false)
}

func (l *Listener) deliver(rec *Record) {
	ipsecErr := rec.IPsecError(l.now())

	logger := log.WithConnection(ipsecErr.Connection)
	logger.Warn().
		Str("component", "errnotify").
		Str("event", string(ipsecErr.Event)).
		Str("detail", ipsecErr.Detail).
		Msg(ipsecErr.Message)

	if l.consumer != nil {
		l.consumer.ErrorEvent(ipsecErr)
	}
}
