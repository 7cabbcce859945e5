package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cuemby/ipsecd/pkg/dispatcher"
	"github.com/cuemby/ipsecd/pkg/errnotify"
	"github.com/cuemby/ipsecd/pkg/events"
	"github.com/cuemby/ipsecd/pkg/ike"
	"github.com/cuemby/ipsecd/pkg/log"
	"github.com/cuemby/ipsecd/pkg/metrics"
	"github.com/cuemby/ipsecd/pkg/publisher"
	"github.com/cuemby/ipsecd/pkg/storage"
	"github.com/cuemby/ipsecd/pkg/types"
	"github.com/cuemby/ipsecd/pkg/xfrm"
)

const (
	defaultSuperviseInterval = time.Second
	defaultReconnectInitial  = 500 * time.Millisecond
	defaultReconnectMax      = time.Minute
)

// Config holds orchestrator configuration
type Config struct {
	IKE   ike.Client
	IPsec xfrm.Client

	// Store and Broker are optional
	Store  storage.Store
	Broker *events.Broker

	ErrorSocket string
	Sys         errnotify.SystemCalls // defaults to the host socket calls

	Clock           clock.Clock // drives the publisher and the supervisor
	PublishTick     time.Duration
	PublishInterval time.Duration

	SuperviseInterval        time.Duration
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration
}

// Status is a point-in-time view of the workers
type Status struct {
	Dispatcher    dispatcher.Stats         `json:"dispatcher"`
	Publisher     publisher.Stats          `json:"publisher"`
	Listener      ListenerStatus           `json:"listener"`
	Subscriptions []publisher.Subscription `json:"subscriptions"`
}

// ListenerStatus describes the error-notify connection
type ListenerStatus struct {
	Socket  string `json:"socket"`
	Ready   bool   `json:"ready"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

// Orchestrator wires the IKE and kernel clients to the config dispatcher,
// the stat publisher and the error listener, and keeps the listener
// connected.
type Orchestrator struct {
	ike    ike.Client
	ipsec  xfrm.Client
	store  storage.Store
	broker *events.Broker
	clock  clock.Clock
	logger zerolog.Logger

	dispatcher *dispatcher.Dispatcher
	publisher  *publisher.Publisher
	listener   *errnotify.Listener

	superviseInterval time.Duration
	reconnectInitial  time.Duration
	reconnectMax      time.Duration

	mu          sync.Mutex
	initialized bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates an orchestrator. Nothing is started until Initialize.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.IKE == nil || cfg.IPsec == nil {
		return nil, fmt.Errorf("IKE and IPsec clients are required: %w", types.ErrNullParameter)
	}

	o := &Orchestrator{
		ike:               cfg.IKE,
		ipsec:             cfg.IPsec,
		store:             cfg.Store,
		broker:            cfg.Broker,
		clock:             cfg.Clock,
		logger:            log.WithComponent("orchestrator"),
		superviseInterval: cfg.SuperviseInterval,
		reconnectInitial:  cfg.ReconnectInitialInterval,
		reconnectMax:      cfg.ReconnectMaxInterval,
	}
	if o.clock == nil {
		o.clock = clock.NewClock()
	}
	if o.superviseInterval <= 0 {
		o.superviseInterval = defaultSuperviseInterval
	}
	if o.reconnectInitial <= 0 {
		o.reconnectInitial = defaultReconnectInitial
	}
	if o.reconnectMax <= 0 {
		o.reconnectMax = defaultReconnectMax
	}

	o.dispatcher = dispatcher.NewDispatcher(&dispatcher.Config{
		IKE:      cfg.IKE,
		IPsec:    cfg.IPsec,
		OnResult: o.taskResult,
	})

	sinks := publisher.MultiSink{metrics.NewSink()}
	if o.store != nil {
		sinks = append(sinks, publisher.SinkFunc(o.storeStat))
	}
	o.publisher = publisher.NewPublisher(&publisher.Config{
		IKE:      cfg.IKE,
		IPsec:    cfg.IPsec,
		Sink:     sinks,
		Clock:    o.clock,
		Tick:     cfg.PublishTick,
		Interval: cfg.PublishInterval,
	})

	o.listener = errnotify.NewListener(&errnotify.Config{
		Path:     cfg.ErrorSocket,
		Consumer: o,
		Sys:      cfg.Sys,
	})

	return o, nil
}

// Initialize connects the IKE client and starts the workers. A listener
// that cannot connect does not fail startup; it is retried in the
// background until ctx is cancelled or Shutdown is called.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		return nil
	}

	if err := o.ike.Initialize(); err != nil {
		metrics.UpdateComponent(metrics.ComponentIKE, false, err.Error())
		return fmt.Errorf("failed to initialize IKE client: %w", err)
	}
	metrics.RegisterComponent(metrics.ComponentIKE, true, "connected")

	if err := o.dispatcher.Start(); err != nil && !errors.Is(err, types.ErrAlreadyRunning) {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	metrics.RegisterComponent(metrics.ComponentDispatcher, true, "running")

	if err := o.publisher.Start(); err != nil && !errors.Is(err, types.ErrAlreadyRunning) {
		return fmt.Errorf("failed to start publisher: %w", err)
	}
	metrics.RegisterComponent(metrics.ComponentPublisher, true, "running")

	if o.broker != nil {
		if err := o.broker.Start(); err != nil && !errors.Is(err, types.ErrAlreadyRunning) {
			return fmt.Errorf("failed to start event broker: %w", err)
		}
	}

	if err := o.listener.Initialize(); err != nil {
		o.logger.Warn().Err(err).Str("socket", o.listener.Path()).Msg("Error listener not connected, retrying in background")
		metrics.RegisterComponent(metrics.ComponentErrNotify, false, err.Error())
	} else {
		metrics.RegisterComponent(metrics.ComponentErrNotify, true, "connected")
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.wg.Add(1)
	go o.supervise(ctx)

	o.initialized = true
	o.logger.Info().Msg("Orchestrator initialized")
	return nil
}

// Shutdown stops the workers: the listener is closed, the publisher is
// stopped and the dispatcher applies every queued task before stopping.
func (o *Orchestrator) Shutdown() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.initialized {
		return nil
	}

	o.cancel()
	o.wg.Wait()

	var errs []error
	if err := o.listener.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close error listener: %w", err))
	}
	metrics.UpdateComponent(metrics.ComponentErrNotify, false, "stopped")

	if err := o.publisher.Stop(); err != nil && !errors.Is(err, types.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("failed to stop publisher: %w", err))
	}
	metrics.UpdateComponent(metrics.ComponentPublisher, false, "stopped")

	if err := o.dispatcher.Stop(); err != nil && !errors.Is(err, types.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("failed to stop dispatcher: %w", err))
	}
	metrics.UpdateComponent(metrics.ComponentDispatcher, false, "stopped")

	if o.broker != nil {
		if err := o.broker.Stop(); err != nil && !errors.Is(err, types.ErrNotRunning) {
			errs = append(errs, fmt.Errorf("failed to stop event broker: %w", err))
		}
	}

	if closer, ok := o.ike.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close IKE client: %w", err))
		}
	}
	metrics.UpdateComponent(metrics.ComponentIKE, false, "closed")

	o.initialized = false
	o.logger.Info().Msg("Orchestrator shut down")
	return errors.Join(errs...)
}

// supervise reconnects the error listener after it fails
func (o *Orchestrator) supervise(ctx context.Context) {
	defer o.wg.Done()

	ticker := o.clock.NewTicker(o.superviseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !o.listener.IsReady() {
				o.reconnect(ctx)
			}
		}
	}
}

func (o *Orchestrator) reconnect(ctx context.Context) {
	if err := o.listener.Err(); err != nil {
		metrics.UpdateComponent(metrics.ComponentErrNotify, false, err.Error())
		o.publishEvent(&events.Event{
			Type:    events.EventListenerLost,
			Message: err.Error(),
		})
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.reconnectInitial
	b.MaxInterval = o.reconnectMax
	b.MaxElapsedTime = 0

	notify := func(err error, next time.Duration) {
		o.logger.Warn().Err(err).Dur("retry_in", next).Msg("Failed to reconnect error listener")
	}

	if err := backoff.RetryNotify(o.listener.Initialize, backoff.WithContext(b, ctx), notify); err != nil {
		return
	}

	o.logger.Info().Str("socket", o.listener.Path()).Msg("Error listener reconnected")
	metrics.UpdateComponent(metrics.ComponentErrNotify, true, "connected")
	o.publishEvent(&events.Event{
		Type:    events.EventListenerConnected,
		Message: "connected to " + o.listener.Path(),
	})
}

// ErrorEvent records an error reported by the IKE daemon. It runs on the
// listener goroutine.
func (o *Orchestrator) ErrorEvent(ipsecErr *types.IPsecError) {
	if ipsecErr == nil {
		return
	}

	metrics.RecordError(ipsecErr)

	if o.store != nil {
		if err := o.store.RecordError(ipsecErr); err != nil {
			o.logger.Error().Err(err).Msg("Failed to store IPsec error")
		}
	}

	o.publishEvent(events.ErrorEvent(ipsecErr))
}

func (o *Orchestrator) taskResult(task *dispatcher.Task, err error) {
	ev := &events.Event{
		Type:    events.EventTaskApplied,
		Message: fmt.Sprintf("%s %s %s", task.Action(), task.Kind(), task.Target()),
		Metadata: map[string]string{
			"task_id": task.ID(),
			"kind":    string(task.Kind()),
			"action":  string(task.Action()),
			"target":  task.Target(),
		},
	}
	if err != nil {
		ev.Type = events.EventTaskFailed
		ev.Metadata["error"] = err.Error()
	}
	o.publishEvent(ev)
}

func (o *Orchestrator) storeStat(snap *types.StatSnapshot) {
	if err := o.store.PutStat(snap); err != nil {
		o.logger.Error().Err(err).Str("key", snap.Key()).Msg("Failed to store stat sample")
	}
}

func (o *Orchestrator) publishEvent(ev *events.Event) {
	if o.broker != nil {
		o.broker.Publish(ev)
	}
}

// Status returns worker counters and the listener state
func (o *Orchestrator) Status() Status {
	st := Status{
		Dispatcher:    o.dispatcher.Stats(),
		Publisher:     o.publisher.Stats(),
		Subscriptions: o.publisher.Subscriptions(),
		Listener: ListenerStatus{
			Socket:  o.listener.Path(),
			Ready:   o.listener.IsReady(),
			Running: o.listener.IsRunning(),
		},
	}
	if err := o.listener.Err(); err != nil {
		st.Listener.Error = err.Error()
	}
	return st
}

// Dispatcher returns the config dispatcher
func (o *Orchestrator) Dispatcher() *dispatcher.Dispatcher { return o.dispatcher }

// Publisher returns the stat publisher
func (o *Orchestrator) Publisher() *publisher.Publisher { return o.publisher }

// Listener returns the error listener
func (o *Orchestrator) Listener() *errnotify.Listener { return o.listener }

// Store returns the store, which may be nil
func (o *Orchestrator) Store() storage.Store { return o.store }
