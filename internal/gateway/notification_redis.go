package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

// RedisNotifier publishes booking notices onto a Redis stream consumed by
// the delivery service (template rendering and transport live there, not in
// this engine).
type RedisNotifier struct {
	client *redis.Client
	stream string
}

// NewRedisNotifier constructs a RedisNotifier.
func NewRedisNotifier(client *redis.Client, stream string) *RedisNotifier {
	if stream == "" {
		stream = "booking-notifications"
	}
	return &RedisNotifier{client: client, stream: stream}
}

type notificationEnvelope struct {
	Kind     NotificationKind `json:"kind"`
	SentAt   time.Time        `json:"sent_at"`
	Booking  BookingSnapshot  `json:"booking"`
	Previous *BookingSnapshot `json:"previous,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// SendBookingConfirmation publishes a confirmation notice.
func (n *RedisNotifier) SendBookingConfirmation(ctx context.Context, snapshot BookingSnapshot) error {
	return n.publish(ctx, notificationEnvelope{Kind: NotificationBookingConfirmed, Booking: snapshot})
}

// SendBookingCancellation publishes a cancellation notice.
func (n *RedisNotifier) SendBookingCancellation(ctx context.Context, snapshot BookingSnapshot, reason string) error {
	return n.publish(ctx, notificationEnvelope{Kind: NotificationBookingCancelled, Booking: snapshot, Reason: reason})
}

// SendBookingReschedule publishes a reschedule notice carrying both the old
// and the new interval.
func (n *RedisNotifier) SendBookingReschedule(ctx context.Context, previous, current BookingSnapshot) error {
	return n.publish(ctx, notificationEnvelope{Kind: NotificationBookingRescheduled, Booking: current, Previous: &previous})
}

func (n *RedisNotifier) publish(ctx context.Context, envelope notificationEnvelope) error {
	envelope.SentAt = time.Now().UTC()
	raw, err := json.Marshal(envelope)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "encode notification")
	}

	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{"kind": string(envelope.Kind), "payload": raw},
	}).Err()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "publish notification")
	}
	return nil
}
