package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jehyuk/seatgate/internal/store"
)

// Bus is the typed event bus over the store's pub/sub channels.
type Bus struct {
	ps store.PubSub
}

func NewBus(ps store.PubSub) *Bus { return &Bus{ps: ps} }

// PublishAdmission announces an admission on the admission channel.
func (b *Bus) PublishAdmission(ctx context.Context, ev AdmissionEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.ps.Publish(ctx, store.ChannelAdmission, string(raw)); err != nil {
		return fmt.Errorf("publish admission: %w", err)
	}
	return nil
}

// PublishRankUpdate announces a queue position on the rank channel.
func (b *Bus) PublishRankUpdate(ctx context.Context, ev RankUpdateEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.ps.Publish(ctx, store.ChannelRankUpdate, string(raw)); err != nil {
		return fmt.Errorf("publish rank update: %w", err)
	}
	return nil
}

// SubscribeAdmissions delivers admission events until ctx is cancelled.
// Subscribe once per process; the gateway fans out to connections.
func (b *Bus) SubscribeAdmissions(ctx context.Context) (<-chan AdmissionEvent, error) {
	msgs, err := b.ps.Subscribe(ctx, store.ChannelAdmission)
	if err != nil {
		return nil, err
	}
	out := make(chan AdmissionEvent, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev AdmissionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[bus] bad admission payload: %v", err)
				continue
			}
			out <- ev
		}
	}()
	return out, nil
}

// SubscribeRankUpdates delivers rank events until ctx is cancelled.
func (b *Bus) SubscribeRankUpdates(ctx context.Context) (<-chan RankUpdateEvent, error) {
	msgs, err := b.ps.Subscribe(ctx, store.ChannelRankUpdate)
	if err != nil {
		return nil, err
	}
	out := make(chan RankUpdateEvent, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev RankUpdateEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[bus] bad rank payload: %v", err)
				continue
			}
			out <- ev
		}
	}()
	return out, nil
}
