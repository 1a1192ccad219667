// Package event delivers committed segment changes to registered observers.
package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/segments/domain"
)

// Observer reacts to a published event. Returned errors are logged only.
type Observer interface {
	Observe(ctx context.Context, evt domain.Event) error
}

type ObserverFunc func(ctx context.Context, evt domain.Event) error

func (f ObserverFunc) Observe(ctx context.Context, evt domain.Event) error {
	return f(ctx, evt)
}

type SubscriptionID uint64

// SegmentEvents lists every event the segment store publishes.
var SegmentEvents = []domain.EventName{
	domain.EventSegmentCreate,
	domain.EventSegmentUpdate,
	domain.EventSegmentDelete,
}

type subscription struct {
	id       SubscriptionID
	name     string
	observer Observer
}

// Publisher fans events out to observers synchronously, in subscription order.
type Publisher struct {
	mu        sync.RWMutex
	observers map[domain.EventName][]subscription
	nextID    SubscriptionID
	logger    *zap.Logger
}

func NewPublisher(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		observers: make(map[domain.EventName][]subscription),
		logger:    logger,
	}
}

// Subscribe registers observer for one event name. The label shows up in logs.
func (p *Publisher) Subscribe(name domain.EventName, label string, observer Observer) SubscriptionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.observers[name] = append(p.observers[name], subscription{id: p.nextID, name: label, observer: observer})
	return p.nextID
}

// SubscribeAll registers observer for every segment event.
func (p *Publisher) SubscribeAll(label string, observer Observer) []SubscriptionID {
	ids := make([]SubscriptionID, 0, len(SegmentEvents))
	for _, name := range SegmentEvents {
		ids = append(ids, p.Subscribe(name, label, observer))
	}
	return ids
}

// Unsubscribe removes a registration. It reports whether id was known.
func (p *Publisher) Unsubscribe(id SubscriptionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, subs := range p.observers {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			p.observers[name] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish invokes every observer of evt.Name before returning. Observer
// failures and panics are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, evt domain.Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	subs := append([]subscription(nil), p.observers[evt.Name]...)
	p.mu.RUnlock()

	for _, sub := range subs {
		if err := p.deliver(ctx, sub, evt); err != nil {
			p.logger.Warn("event observer failed",
				zap.String("observer", sub.name),
				zap.String("event", string(evt.Name)),
				zap.String("event_id", evt.ID),
				zap.Error(err))
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, sub subscription, evt domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	// each observer gets its own copy of the segment
	evt.Segment = evt.Segment.Clone()
	return sub.observer.Observe(ctx, evt)
}
