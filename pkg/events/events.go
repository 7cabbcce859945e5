package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/ipsecd/pkg/lifecycle"
	"github.com/cuemby/ipsecd/pkg/types"
)

// EventType represents the type of event
type EventType string

const (
	EventTaskApplied       EventType = "task.applied"
	EventTaskFailed        EventType = "task.failed"
	EventManifestApplied   EventType = "manifest.applied"
	EventIPsecError        EventType = "ipsec.error"
	EventListenerConnected EventType = "listener.connected"
	EventListenerLost      EventType = "listener.lost"
)

// Event represents a daemon event
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Error     *types.IPsecError `json:"error,omitempty"`
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	runner      *lifecycle.Runner
	dropped     atomic.Uint64
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		runner:      lifecycle.NewRunner(),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() error {
	return b.runner.Start(b.run)
}

// Stop stops the broker. Events still buffered are not delivered.
func (b *Broker) Stop() error {
	return b.runner.Stop(nil)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues an event for all subscribers. It never blocks: when the
// buffer is full the event is dropped.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many events were dropped because the buffer was full
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broker) run(stopCh <-chan struct{}) {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ErrorEvent wraps an error reported by the IKE daemon
func ErrorEvent(err *types.IPsecError) *Event {
	return &Event{
		Type:      EventIPsecError,
		Timestamp: err.Timestamp,
		Message:   err.Message,
		Metadata: map[string]string{
			"connection": err.Connection,
			"event":      string(err.Event),
		},
		Error: err,
	}
}
