package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ef-ds/deque"
	"github.com/rs/zerolog"

	"github.com/cuemby/ipsecd/pkg/ike"
	"github.com/cuemby/ipsecd/pkg/lifecycle"
	"github.com/cuemby/ipsecd/pkg/log"
	"github.com/cuemby/ipsecd/pkg/metrics"
	"github.com/cuemby/ipsecd/pkg/types"
	"github.com/cuemby/ipsecd/pkg/xfrm"
)

// ResultFunc is called on the dispatcher goroutine after each task.
// err is nil on success.
type ResultFunc func(task *Task, err error)

// Config holds dispatcher configuration
type Config struct {
	IKE      ike.Client
	IPsec    xfrm.Client
	OnResult ResultFunc // optional
}

// Stats counts task outcomes since the dispatcher was created
type Stats struct {
	Executed uint64 `json:"executed"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
	Queued   int    `json:"queued"`
}

// ErrClosing is returned by AddTask while Close is in progress
var ErrClosing = errors.New("dispatcher is closing")

// Dispatcher applies configuration tasks one at a time, in submission
// order, on a single goroutine.
type Dispatcher struct {
	ike      ike.Client
	ipsec    xfrm.Client
	onResult ResultFunc
	logger   zerolog.Logger
	runner   *lifecycle.Runner

	mu      sync.Mutex
	cond    *sync.Cond
	queue   *deque.Deque
	closing bool

	executed atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// NewDispatcher creates a stopped dispatcher
func NewDispatcher(cfg *Config) *Dispatcher {
	d := &Dispatcher{
		ike:      cfg.IKE,
		ipsec:    cfg.IPsec,
		onResult: cfg.OnResult,
		logger:   log.WithComponent("dispatcher"),
		runner:   lifecycle.NewRunner(),
		queue:    deque.New(),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// AddTask queues a task and returns without waiting for it to run
func (d *Dispatcher) AddTask(task *Task) error {
	if task == nil {
		return types.ErrNullParameter
	}

	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return ErrClosing
	}
	d.queue.PushBack(task)
	metrics.ConfigQueueDepth.Set(float64(d.queue.Len()))
	d.mu.Unlock()

	d.cond.Signal()
	return nil
}

// Start spawns the consumer goroutine
func (d *Dispatcher) Start() error {
	if err := d.runner.Start(d.run); err != nil {
		return err
	}
	d.logger.Info().Msg("Config dispatcher started")
	return nil
}

// Stop waits for every queued task to run, then stops the consumer
func (d *Dispatcher) Stop() error {
	if err := d.runner.Stop(d.wake); err != nil {
		return err
	}
	d.logger.Info().Msg("Config dispatcher stopped")
	return nil
}

// Close discards queued tasks without running them and stops the consumer
// if it is running. Tasks added while Close is in progress are rejected
// with ErrClosing. It is meant for teardown, not for normal shutdown.
func (d *Dispatcher) Close() error {
	if n := d.clean(); n > 0 {
		d.logger.Warn().Int("discarded", n).Msg("Discarded queued tasks on close")
	}
	defer func() {
		d.mu.Lock()
		d.closing = false
		d.mu.Unlock()
	}()

	if d.runner.Running() {
		return d.Stop()
	}
	return nil
}

// IsRunning reports whether the consumer is running
func (d *Dispatcher) IsRunning() bool {
	return d.runner.Running()
}

// Len returns the number of queued tasks
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}

// Stats returns task counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Executed: d.executed.Load(),
		Failed:   d.failed.Load(),
		Dropped:  d.dropped.Load(),
		Queued:   d.Len(),
	}
}

func (d *Dispatcher) wake() {
	d.mu.Lock()
	d.cond.Broadcast()
	d.mu.Unlock()
}

// clean marks the dispatcher closing, empties the queue and returns how
// many tasks were discarded
func (d *Dispatcher) clean() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closing = true
	n := d.queue.Len()
	d.queue.Init()
	metrics.ConfigQueueDepth.Set(0)
	return n
}

// run is the consumer loop. It only exits once stopped and the queue is
// empty, so tasks queued before Stop are always executed.
func (d *Dispatcher) run(stopCh <-chan struct{}) {
	for {
		task, ok := d.next(stopCh)
		if !ok {
			return
		}
		d.execute(task)
	}
}

func (d *Dispatcher) next(stopCh <-chan struct{}) (*Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.queue.Len() == 0 {
		if lifecycle.Stopped(stopCh) {
			return nil, false
		}
		d.cond.Wait()
	}

	v, _ := d.queue.PopFront()
	metrics.ConfigQueueDepth.Set(float64(d.queue.Len()))
	return v.(*Task), true
}

func (d *Dispatcher) execute(task *Task) {
	logger := d.logger.With().
		Str("task_id", task.ID()).
		Str("kind", string(task.Kind())).
		Str("action", string(task.Action())).
		Logger()

	var err error
	switch task.Kind() {
	case KindIKE:
		err = d.handleIKE(task)
	case KindCA:
		err = d.handleCA(task)
	case KindSA:
		err = d.handleSA(task)
	case KindSP:
		err = d.handleSP(task)
	default:
		d.dropped.Add(1)
		metrics.ConfigTasksTotal.WithLabelValues(string(task.Kind()), string(task.Action()), "dropped").Inc()
		logger.Warn().Msg("Dropping task of unknown kind")
		return
	}

	if err != nil {
		err = types.ExternalCallError(string(task.Kind())+" "+string(task.Action()), err)
		d.failed.Add(1)
		metrics.ConfigTasksTotal.WithLabelValues(string(task.Kind()), string(task.Action()), "failed").Inc()
		logger.Error().Err(err).Str("target", task.Target()).Msg("Config task failed")
	} else {
		d.executed.Add(1)
		metrics.ConfigTasksTotal.WithLabelValues(string(task.Kind()), string(task.Action()), "ok").Inc()
		logger.Debug().Str("target", task.Target()).Msg("Config task applied")
	}

	if d.onResult != nil {
		d.onResult(task, err)
	}
}

func unsupportedAction(a Action) error {
	return fmt.Errorf("unsupported action: %q", a)
}

func (d *Dispatcher) handleIKE(task *Task) error {
	conn := task.IKEConnection()
	switch task.Action() {
	case ActionAdd, ActionModify:
		return d.ike.CreateConnection(conn)
	case ActionRemove:
		return d.ike.DeleteConnection(conn.Name)
	default:
		return unsupportedAction(task.Action())
	}
}

func (d *Dispatcher) handleCA(task *Task) error {
	ca := task.CA()
	switch task.Action() {
	case ActionAdd, ActionModify:
		return d.ike.LoadAuthority(ca)
	case ActionRemove:
		return d.ike.UnloadAuthority(ca.Name)
	default:
		return unsupportedAction(task.Action())
	}
}

func (d *Dispatcher) handleSA(task *Task) error {
	sa := task.SA()
	switch task.Action() {
	case ActionAdd:
		return d.ipsec.AddSA(sa)
	case ActionModify:
		return d.ipsec.ModifySA(sa)
	case ActionRemove:
		return d.ipsec.DelSA(sa.SPI)
	default:
		return unsupportedAction(task.Action())
	}
}

func (d *Dispatcher) handleSP(task *Task) error {
	sp := task.SP()
	switch task.Action() {
	case ActionAdd:
		return d.ipsec.AddSP(sp)
	case ActionModify:
		return d.ipsec.ModifySP(sp)
	case ActionRemove:
		return d.ipsec.DelSP(sp.ID)
	default:
		return unsupportedAction(task.Action())
	}
}
