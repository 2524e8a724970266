package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jehyuk/seatgate/internal/seat"
)

const (
	confirmedQueueName = "booking.confirmed"
	cancelledQueueName = "booking.cancelled"
)

// Syncer is the slice of the seat reconciler the cancellation path needs:
// after a cancellation the whole event is re-checked against durable truth
// rather than trusting the single message.
type Syncer interface {
	SyncEvent(ctx context.Context, eventID string) error
}

// Consumer listens on the booking.confirmed and booking.cancelled queues
// and applies each message to the seat cache.
type Consumer struct {
	url    string
	seats  seat.StateStore
	syncer Syncer
}

// NewConsumer builds a consumer. syncer may be nil, in which case
// cancellations release the seat but skip the emergency sync.
func NewConsumer(url string, seats seat.StateStore, syncer Syncer) *Consumer {
	return &Consumer{url: url, seats: seats, syncer: syncer}
}

// Run connects to RabbitMQ, declares both queues (durable), and consumes
// until ctx is cancelled. It runs a reconnect loop with exponential backoff;
// processing errors are logged and the offending message rejected so the
// server keeps operating.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Printf("[booking-consumer] failed to dial broker: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := c.consumeLoop(ctx, conn); err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[booking-consumer] consume loop ended: %v; reconnecting", err)
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("[booking-consumer] set QoS failed: %v", err)
	}

	for _, name := range []string{confirmedQueueName, cancelledQueueName} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
	}

	confirmed, err := ch.Consume(confirmedQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume %s: %w", confirmedQueueName, err)
	}
	cancelled, err := ch.Consume(cancelledQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume %s: %w", cancelledQueueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-confirmed:
			if !ok {
				return errors.New("confirmed deliveries channel closed")
			}
			c.dispatch(ctx, d, c.handleConfirmed)
		case d, ok := <-cancelled:
			if !ok {
				return errors.New("cancelled deliveries channel closed")
			}
			c.dispatch(ctx, d, c.handleCancelled)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handle func(context.Context, []byte) error) {
	if err := handle(ctx, d.Body); err != nil {
		log.Printf("[booking-consumer] handle message failed: %v", err)
		_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
		return
	}
	_ = d.Ack(false)
}

// handleConfirmed pins the seat BOOKED regardless of its cached state. The
// booking service already holds the durable row, so a cache that disagrees
// is the one that is wrong.
func (c *Consumer) handleConfirmed(ctx context.Context, body []byte) error {
	var ev ConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal confirmed: %w", err)
	}
	if ev.EventID == "" || ev.SeatID == "" {
		return fmt.Errorf("confirmed event missing ids: %+v", ev)
	}
	if err := c.seats.FinalizeBooking(ctx, ev.EventID, ev.SeatID, ev.UserID); err != nil {
		return fmt.Errorf("finalize %s/%s: %w", ev.EventID, ev.SeatID, err)
	}
	return nil
}

// handleCancelled frees the seat and, because a cancellation often arrives
// alongside refunds and re-releases, kicks off a full sync of the event so
// the cache converges even if other messages were lost.
func (c *Consumer) handleCancelled(ctx context.Context, body []byte) error {
	var ev CancelledEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal cancelled: %w", err)
	}
	if ev.EventID == "" || ev.SeatID == "" {
		return fmt.Errorf("cancelled event missing ids: %+v", ev)
	}
	if err := c.seats.ForceRelease(ctx, ev.EventID, ev.SeatID); err != nil {
		return fmt.Errorf("force release %s/%s: %w", ev.EventID, ev.SeatID, err)
	}
	if c.syncer != nil {
		if err := c.syncer.SyncEvent(ctx, ev.EventID); err != nil {
			log.Printf("[booking-consumer] emergency sync of event %s failed: %v", ev.EventID, err)
		}
	}
	return nil
}
