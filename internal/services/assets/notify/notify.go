// Package notify publishes bridge-updated events after successful asset
// mutations. Delivery is best effort: it runs detached from the request and
// its failures are logged, never returned.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/bridgeassets/internal/platform/id"
	"github.com/louisbranch/bridgeassets/internal/platform/timeouts"
	"github.com/louisbranch/bridgeassets/internal/services/assets/render"
	"github.com/louisbranch/bridgeassets/internal/services/assets/storage"
)

// EventTypeBridgeUpdated is published after every successful mutation.
const EventTypeBridgeUpdated = "bridge.updated"

// Event is one bridge-updated event.
type Event struct {
	ID        string
	Type      string
	BridgeID  string
	Bridge    render.Bridge
	CreatedAt time.Time
}

// Publisher delivers one event.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Notifier fans events out to publishers in the background.
type Notifier struct {
	publishers []Publisher
	timeout    time.Duration
	clock      func() time.Time
	newID      func() (string, error)

	wg sync.WaitGroup
}

// New returns a notifier. A non-positive timeout uses timeouts.Notify.
func New(timeout time.Duration, publishers ...Publisher) *Notifier {
	if timeout <= 0 {
		timeout = timeouts.Notify
	}
	return &Notifier{
		publishers: publishers,
		timeout:    timeout,
		clock:      time.Now,
		newID:      id.NewID,
	}
}

// BridgeUpdated schedules delivery of graph and returns immediately.
func (n *Notifier) BridgeUpdated(ctx context.Context, graph storage.BridgeGraph) {
	if n == nil || len(n.publishers) == 0 {
		return
	}
	eventID, err := n.newID()
	if err != nil {
		log.Printf("assets: notify bridge=%q: generate event id: %v", graph.Bridge.ID, err)
		return
	}
	event := Event{
		ID:        eventID,
		Type:      EventTypeBridgeUpdated,
		BridgeID:  graph.Bridge.ID,
		Bridge:    render.NewBridge(graph),
		CreatedAt: n.clock().UTC(),
	}

	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		n.deliver(deliverCtx, event)
	}()
}

func (n *Notifier) deliver(ctx context.Context, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("assets: notify bridge=%q: publisher panic: %v", event.BridgeID, r)
		}
	}()
	for _, publisher := range n.publishers {
		if err := publisher.Publish(ctx, event); err != nil {
			log.Printf("assets: notify bridge=%q event=%q: %v", event.BridgeID, event.ID, err)
		}
	}
}

// Wait blocks until in-flight deliveries finish or ctx ends.
func (n *Notifier) Wait(ctx context.Context) error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OutboxPublisher appends events to the bridge event outbox.
type OutboxPublisher struct {
	store storage.EventStore
}

// NewOutboxPublisher returns a publisher backed by store.
func NewOutboxPublisher(store storage.EventStore) *OutboxPublisher {
	return &OutboxPublisher{store: store}
}

// Publish stores event with the rendered bridge as its payload.
func (p *OutboxPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.store == nil {
		return fmt.Errorf("event store is not configured")
	}
	payload, err := json.Marshal(event.Bridge)
	if err != nil {
		return fmt.Errorf("marshal bridge payload: %w", err)
	}
	return p.store.AppendBridgeEvent(ctx, storage.BridgeEventRecord{
		ID:          event.ID,
		BridgeID:    event.BridgeID,
		EventType:   event.Type,
		PayloadJSON: string(payload),
		CreatedAt:   event.CreatedAt,
	})
}

// LogPublisher writes a one-line summary of each event.
type LogPublisher struct {
	logger *log.Logger
}

// NewLogPublisher returns a publisher writing to logger, or the standard
// logger when nil.
func NewLogPublisher(logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs event.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Printf("assets: %s bridge=%q icons=%d images=%d", event.Type, event.BridgeID, len(event.Bridge.Icons), len(event.Bridge.Images))
	return nil
}
