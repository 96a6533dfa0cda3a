package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName     = "veriflow.batches"
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
	dialTimeout      = 15 * time.Second
)

// RabbitMQPublisher publishes batch lifecycle events to a durable topic
// exchange with routing key batch.<kind>.
type RabbitMQPublisher struct {
	url string

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
}

func NewRabbitMQPublisher(url string) (*RabbitMQPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	p := &RabbitMQPublisher{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := p.ensureConnected(ctx); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *RabbitMQPublisher) PublishBatchEvent(ctx context.Context, ev BatchEvent) error {
	if p == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if strings.TrimSpace(ev.BatchID) == "" {
		return fmt.Errorf("batch id is required")
	}
	if strings.TrimSpace(ev.Kind) == "" {
		return fmt.Errorf("event kind is required")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal batch event: %w", err)
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    ev.BatchID,
		Body:         payload,
	}

	routingKey := "batch." + ev.Kind
	if err := ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish batch event %q: %w", routingKey, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

func (p *RabbitMQPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if err := p.ensureConnected(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()

	ch, err := conn.Channel()
	if err != nil {
		if errReconnect := p.reconnectWithBackoff(ctx); errReconnect != nil {
			return nil, errReconnect
		}

		p.mu.RLock()
		conn = p.conn
		p.mu.RUnlock()

		ch, err = conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to create rabbitmq channel after reconnect: %w", err)
		}
	}

	if err := ch.ExchangeDeclare(
		exchangeName,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare batch events exchange: %w", err)
	}

	return ch, nil
}

func (p *RabbitMQPublisher) ensureConnected(ctx context.Context) error {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()

	if conn != nil && !conn.IsClosed() {
		return nil
	}

	return p.reconnectWithBackoff(ctx)
}

func (p *RabbitMQPublisher) reconnectWithBackoff(ctx context.Context) error {
	p.reconnectMu.Lock()
	defer p.reconnectMu.Unlock()

	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn != nil && !conn.IsClosed() {
		return nil
	}

	wait := reconnectBackoff
	for {
		newConn, err := amqp.Dial(p.url)
		if err == nil {
			p.mu.Lock()
			oldConn := p.conn
			p.conn = newConn
			p.mu.Unlock()

			if oldConn != nil && !oldConn.IsClosed() {
				_ = oldConn.Close()
			}

			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq reconnect canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}
