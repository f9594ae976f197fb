package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/models"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/retry"
)

// Publisher fans announcements out to every bound worker queue through a
// durable fanout exchange.
type Publisher struct {
	conn     *amqp.Connection
	exchange string
	retryCfg retry.Config
	logger   *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection, exchange string, retryCfg retry.Config, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:     conn,
		exchange: exchange,
		retryCfg: retryCfg,
		logger:   logger,
	}
}

// Publish wraps the payload in an announcement envelope and publishes it.
// Transient broker failures are retried with backoff; the envelope ID stays
// stable across attempts so workers can deduplicate redeliveries.
func (p *Publisher) Publish(ctx context.Context, payload json.RawMessage) (models.Announcement, error) {
	ann := models.Announcement{
		ID:        uuid.New().String(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(ann)
	if err != nil {
		return models.Announcement{}, fmt.Errorf("encode announcement: %w", err)
	}

	err = retry.Do(ctx, p.retryCfg, func() error {
		return p.publishOnce(ann.ID, body)
	})
	if err != nil {
		return models.Announcement{}, err
	}
	return ann, nil
}

func (p *Publisher) publishOnce(id string, body []byte) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	err = ch.Publish(
		p.exchange,
		"", // fanout ignores the routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    id,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		p.dropChannel()
		p.logger.Warn("announcement publish attempt failed", slog.String("id", id), slog.Any("error", err))
	}
	return err
}

// channel lazily opens a publish channel and declares the exchange, reusing
// the channel until a publish fails on it.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		return p.ch, nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := ch.ExchangeDeclare(
		p.exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, err
	}

	p.ch = ch
	return ch, nil
}

func (p *Publisher) dropChannel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

func (p *Publisher) Close() {
	p.dropChannel()
}
