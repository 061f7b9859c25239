// Package events publishes click events to RabbitMQ for the analytics
// consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"github.com/edgelink/shortener/internal/model"
)

// DefaultQueue is the durable queue the analytics consumers read from.
const DefaultQueue = "click_events"

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher handles RabbitMQ event publishing
type Publisher struct {
	conn    *amqp.Connection
	channel channel
	queue   string
}

// Connect dials RabbitMQ and declares the click events queue.
func Connect(rabbitURL, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue, // queue name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &Publisher{conn: conn, channel: ch, queue: q.Name}, nil
}

func newPublisher(ch channel, queue string) *Publisher {
	return &Publisher{channel: ch, queue: queue}
}

func (p *Publisher) Name() string { return "amqp" }

// Emit publishes one event. The publish itself cannot be cancelled, so a
// hung broker only costs the caller its ctx deadline.
func (p *Publisher) Emit(ctx context.Context, event model.ClickEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal click event: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- p.channel.Publish(
			"",      // exchange
			p.queue, // routing key (queue name)
			false,   // mandatory
			false,   // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    event.ID,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to publish click event: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish click event: %w", ctx.Err())
	}
}

// Close closes the RabbitMQ connection and channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
