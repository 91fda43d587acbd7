package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher fans ledger entries out to a topic exchange so downstream
// consumers (reporting, CRM sync) can subscribe without touching the
// database. Publishing is best-effort; the ledger row is the source of truth.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the exchange. The exchange
// is durable and survives broker restarts; entries themselves are published
// persistent.
func NewAMQPPublisher(url, exchange string, log *slog.Logger) (*AMQPPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("broker URL is required")
	}
	if exchange == "" {
		exchange = "call.ledger"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, ch: ch, log: log}, nil
}

// Publish sends one entry with routing key "routing.<tenant>.<kind>".
// Consumers bind with patterns like "routing.*.escalation_transition" or
// "routing.<tenant>.#".
func (p *AMQPPublisher) Publish(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	key := fmt.Sprintf("routing.%s.%s", e.TenantID, e.Kind)

	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil || ch.IsClosed() {
		ch, err = p.reopen()
		if err != nil {
			return err
		}
	}

	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Kind),
		Timestamp:    e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("publish entry %s: %w", e.ID, err)
	}
	return nil
}

func (p *AMQPPublisher) reopen() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("reopen channel: %w", err)
	}
	p.ch = ch
	if p.log != nil {
		p.log.Info("broker channel reopened", slog.String("exchange", p.exchange))
	}
	return ch, nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
