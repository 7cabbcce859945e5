// Package publisher samples subscribed SAs, policies and IKE connections
// on a fixed interval and hands the samples to a sink.
package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/rs/zerolog"

	"github.com/cuemby/ipsecd/pkg/ike"
	"github.com/cuemby/ipsecd/pkg/lifecycle"
	"github.com/cuemby/ipsecd/pkg/log"
	"github.com/cuemby/ipsecd/pkg/metrics"
	"github.com/cuemby/ipsecd/pkg/types"
	"github.com/cuemby/ipsecd/pkg/xfrm"
)

const (
	// DefaultTick is how often the loop wakes up
	DefaultTick = 250 * time.Millisecond

	// DefaultInterval is how often subscriptions are sampled
	DefaultInterval = 5 * time.Second
)

// Sink receives published snapshots. Publish is called on the publisher
// goroutine and should not block for long.
type Sink interface {
	Publish(snap *types.StatSnapshot)
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(snap *types.StatSnapshot)

// Publish calls f(snap)
func (f SinkFunc) Publish(snap *types.StatSnapshot) { f(snap) }

// MultiSink fans a snapshot out to several sinks in order
type MultiSink []Sink

// Publish forwards snap to every sink
func (m MultiSink) Publish(snap *types.StatSnapshot) {
	for _, s := range m {
		s.Publish(snap)
	}
}

// Config holds publisher configuration
type Config struct {
	IKE      ike.Client
	IPsec    xfrm.Client
	Sink     Sink
	Clock    clock.Clock   // defaults to the real clock
	Tick     time.Duration // defaults to DefaultTick
	Interval time.Duration // zero publishes on every tick
}

// Stats counts publisher activity
type Stats struct {
	Ticks     uint64 `json:"ticks"`
	Passes    uint64 `json:"passes"`
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
}

// Publisher samples subscribed SAs, SPs and IKE connections on a fixed
// cadence and forwards each sample to a sink.
type Publisher struct {
	ike    ike.Client
	ipsec  xfrm.Client
	sink   Sink
	clock  clock.Clock
	tick   time.Duration
	logger zerolog.Logger
	runner *lifecycle.Runner

	interval atomic.Int64

	mu   sync.Mutex
	subs []Subscription

	ticks     atomic.Uint64
	passes    atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

// NewPublisher creates a stopped publisher
func NewPublisher(cfg *Config) *Publisher {
	p := &Publisher{
		ike:    cfg.IKE,
		ipsec:  cfg.IPsec,
		sink:   cfg.Sink,
		clock:  cfg.Clock,
		tick:   cfg.Tick,
		logger: log.WithComponent("publisher"),
		runner: lifecycle.NewRunner(),
	}
	if p.clock == nil {
		p.clock = clock.NewClock()
	}
	if p.tick <= 0 {
		p.tick = DefaultTick
	}
	p.interval.Store(int64(cfg.Interval))
	return p
}

// AddStat subscribes to an object. Duplicates are kept.
func (p *Publisher) AddStat(sub Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, sub)
}

// RemoveStat removes the first subscription equal to sub. It reports
// whether one was found.
func (p *Publisher) RemoveStat(sub Subscription) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.subs {
		if s == sub {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Subscriptions returns a copy of the subscription list
func (p *Publisher) Subscriptions() []Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Subscription(nil), p.subs...)
}

// SetInterval changes the publish interval, effective from the next tick
func (p *Publisher) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	p.interval.Store(int64(d))
}

// Interval returns the publish interval
func (p *Publisher) Interval() time.Duration {
	return time.Duration(p.interval.Load())
}

// Start spawns the publish loop
func (p *Publisher) Start() error {
	if err := p.runner.Start(p.run); err != nil {
		return err
	}
	p.logger.Info().
		Dur("tick", p.tick).
		Dur("interval", p.Interval()).
		Msg("Stat publisher started")
	return nil
}

// Stop ends the publish loop. A pass in progress is abandoned after the
// current query.
func (p *Publisher) Stop() error {
	if err := p.runner.Stop(nil); err != nil {
		return err
	}
	p.logger.Info().Msg("Stat publisher stopped")
	return nil
}

// IsRunning reports whether the loop is running
func (p *Publisher) IsRunning() bool {
	return p.runner.Running()
}

// Stats returns publisher counters
func (p *Publisher) Stats() Stats {
	return Stats{
		Ticks:     p.ticks.Load(),
		Passes:    p.passes.Load(),
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Publisher) run(stopCh <-chan struct{}) {
	ticker := p.clock.NewTicker(p.tick)
	defer ticker.Stop()

	var elapsed time.Duration
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C():
			p.ticks.Add(1)
			elapsed += p.tick
			if elapsed < p.Interval() {
				continue
			}
			elapsed = 0
			p.publish(stopCh)
		}
	}
}

// publish runs one pass over a snapshot of the subscription list.
// Subscriptions added during the pass are sampled on the next one.
func (p *Publisher) publish(stopCh <-chan struct{}) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PublishDuration)

	subs := p.Subscriptions()
	p.passes.Add(1)

	for _, sub := range subs {
		if lifecycle.Stopped(stopCh) {
			return
		}

		snap, err := p.query(sub)
		if err != nil {
			p.failed.Add(1)
			metrics.StatQueriesTotal.WithLabelValues(string(sub.Kind), "failed").Inc()
			p.logger.Warn().
				Err(types.ExternalCallError("query "+string(sub.Kind), err)).
				Str("target", sub.String()).
				Msg("Stat query failed")
			continue
		}

		metrics.StatQueriesTotal.WithLabelValues(string(sub.Kind), "ok").Inc()
		p.published.Add(1)
		if p.sink != nil {
			p.sink.Publish(snap)
		}
	}
}

func (p *Publisher) query(sub Subscription) (*types.StatSnapshot, error) {
	snap := &types.StatSnapshot{
		Kind:      sub.Kind,
		Timestamp: p.clock.Now(),
	}

	var err error
	switch sub.Kind {
	case types.StatSA:
		snap.SA, err = p.ipsec.GetSA(sub.SPI)
	case types.StatSP:
		snap.SP, err = p.ipsec.GetSP(sub.SPID)
	case types.StatIKE:
		snap.IKE, err = p.ike.GetConnectionStats(sub.Name)
	default:
		err = fmt.Errorf("unknown subscription kind: %q", sub.Kind)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}
