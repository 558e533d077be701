package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 3 * time.Second

type publisherChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher forwards successful events to a topic exchange, routed by kind.
// Loading and Error events are not published.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       publisherChannel
	exchange string
	logger   *slog.Logger
}

// NewAMQPPublisher dials url and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch publisherChannel, exchange string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{ch: ch, exchange: exchange, logger: logger}
}

func (p *AMQPPublisher) Notify(ctx context.Context, ev Event) {
	if ev.Level != Success || ev.Kind == "" {
		return
	}
	msg, err := publishing(ev)
	if err != nil {
		p.logger.Warn("encode event failed", "kind", ev.Kind, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.ch.PublishWithContext(ctx, p.exchange, ev.Kind, false, false, msg); err != nil {
		p.logger.Warn("publish event failed", "kind", ev.Kind, "project_id", ev.ProjectID, "err", err)
	}
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func publishing(ev Event) (amqp.Publishing, error) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.Time,
		Type:         ev.Kind,
		AppId:        "campuscanvas",
		Body:         body,
	}, nil
}
