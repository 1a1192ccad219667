package services

import (
	"context"
	"encoding/json"

	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/internal/infrastructure/buffer"
	"github.com/fastygo/segments/usecase/event"
)

// RelayObserver turns published segment events into outbox items.
type RelayObserver struct {
	relay *EventRelay
}

func NewRelayObserver(relay *EventRelay) *RelayObserver {
	return &RelayObserver{relay: relay}
}

func (o *RelayObserver) Observe(ctx context.Context, evt domain.Event) error {
	if o.relay == nil || evt.Segment == nil {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	item := buffer.Item{
		ID:        evt.ID,
		EventName: string(evt.Name),
		SegmentID: evt.Segment.ID,
		Data:      payload,
		Timestamp: evt.Timestamp,
	}
	return o.relay.Relay(ctx, item)
}

var _ event.Observer = (*RelayObserver)(nil)
