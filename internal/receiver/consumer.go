package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// Consumer wires RabbitMQ connectivity, binds this worker's announcement
// queue to the relay's fanout exchange and feeds deliveries to a handler.
type Consumer struct {
	conn     *amqp.Connection
	exchange string
	queue    string
	prefetch int
	workers  int
	logger   *slog.Logger
}

func NewConsumer(conn *amqp.Connection, exchange, queue string, prefetch, workers int, logger *slog.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 16
	}
	if workers <= 0 {
		workers = 2
	}
	return &Consumer{
		conn:     conn,
		exchange: exchange,
		queue:    queue,
		prefetch: prefetch,
		workers:  workers,
		logger:   logger,
	}
}

// Start consumes until the context is cancelled. Deliveries are acked by the
// handler once fully processed; the pending ack is what keeps a push event
// alive across the handler's suspension points.
func (c *Consumer) Start(ctx context.Context, handler func(context.Context, amqp.Delivery)) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.setupQueue(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					handler(ctx, msg)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (c *Consumer) setupQueue(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		c.exchange,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		c.queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}

	return ch.QueueBind(
		c.queue,
		"",
		c.exchange,
		false,
		nil,
	)
}
