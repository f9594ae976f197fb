package receiver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/badge"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/models"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/notifications"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/metrics"
)

// Broadcaster delivers a message to every open application window.
type Broadcaster interface {
	Broadcast(msg models.ClientMessage)
}

// Deduper remembers announcement IDs so a broker redelivery does not notify
// the user twice. Nil means dedupe is disabled.
type Deduper interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
}

// Receiver turns an inbound announcement into a shown notification plus an
// in-app broadcast.
type Receiver struct {
	center  *notifications.Center
	hub     Broadcaster
	badge   *badge.Counter
	dedupe  Deduper
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(center *notifications.Center, hub Broadcaster, counter *badge.Counter, dedupe Deduper, m *metrics.Metrics, logger *slog.Logger) *Receiver {
	return &Receiver{
		center:  center,
		hub:     hub,
		badge:   counter,
		dedupe:  dedupe,
		metrics: m,
		logger:  logger,
	}
}

// HandleDelivery processes one broker delivery. The delivery is always
// acked: a malformed payload degrades to the default notification instead of
// being dropped or requeued, and the ack happens only after both the
// notification and the window broadcast have completed.
func (r *Receiver) HandleDelivery(ctx context.Context, msg amqp.Delivery) {
	id, payload := unwrap(msg)

	if r.dedupe != nil && id != "" {
		first, err := r.dedupe.FirstSeen(ctx, id)
		if err != nil {
			// Dedupe is advisory; on infrastructure failure we notify rather
			// than risk swallowing an announcement.
			r.logger.Warn("dedupe check failed", slog.String("announcement_id", id), slog.Any("error", err))
		} else if !first {
			r.metrics.IncDuplicate()
			r.logger.Info("duplicate announcement skipped", slog.String("announcement_id", id))
			_ = msg.Ack(false)
			return
		}
	}

	r.Notify(payload)
	_ = msg.Ack(false)
}

// Notify shows the notification and broadcasts the in-app signal. The two
// steps are independent: the broadcast is not gated on anything about the
// notification beyond its creation.
func (r *Receiver) Notify(payload []byte) notifications.Notification {
	p := models.ParsePushPayload(payload)

	n := r.center.Show(p.Title, p.Body, p.URL)
	r.hub.Broadcast(models.ClientMessage{Type: models.MessageNewNotification})
	r.badge.Increment()

	r.metrics.IncNotified()
	r.logger.Info("announcement notified",
		slog.String("notification_id", n.ID),
		slog.String("title", p.Title),
		slog.String("url", p.URL))
	return n
}

// unwrap extracts the announcement ID and payload bytes from a delivery.
// Bodies that are not relay envelopes are treated as bare payloads, keyed by
// the broker message ID when present.
func unwrap(msg amqp.Delivery) (string, []byte) {
	var ann models.Announcement
	if err := json.Unmarshal(msg.Body, &ann); err == nil && ann.ID != "" {
		return ann.ID, ann.Payload
	}
	return msg.MessageId, msg.Body
}
