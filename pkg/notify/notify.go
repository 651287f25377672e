package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"bookworm/pkg/domain"
)

// Publisher fans notification events out to delivery workers (push, email).
// The database notification rows are the ledger; publishing is best-effort
// and callers log rather than fail the request on publish errors.
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
	Close() error
}

// Event is the wire shape published to the notifications exchange.
type Event struct {
	ID     string                  `json:"id"`
	UserID string                  `json:"userId"`
	Type   domain.NotificationType `json:"type"`
	Title  string                  `json:"title"`
	Body   string                  `json:"body"`
	SentAt time.Time               `json:"sentAt"`
}

// AMQPPublisher publishes notification events to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = "bookworm.notifications"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// Publish sends one event with routing key "notify.<type>".
func (p *AMQPPublisher) Publish(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(Event{
		ID:     n.ID,
		UserID: n.UserID,
		Type:   n.Type,
		Title:  n.Title,
		Body:   n.Body,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, p.exchange, "notify."+string(n.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NoopPublisher drops events. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domain.Notification) error { return nil }
func (NoopPublisher) Close() error                                       { return nil }

// Recorder captures published events for tests.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Event{
		ID:     n.ID,
		UserID: n.UserID,
		Type:   n.Type,
		Title:  n.Title,
		Body:   n.Body,
	})
	return nil
}

func (r *Recorder) Close() error { return nil }

// Published returns a copy of the captured events.
func (r *Recorder) Published() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.Events))
	copy(out, r.Events)
	return out
}

// LogPublishError reports a best-effort publish failure without failing the
// surrounding request.
func LogPublishError(err error, userID string, kind domain.NotificationType) {
	if err == nil {
		return
	}
	slog.Warn("notification publish failed", "user_id", userID, "type", string(kind), "err", err)
}
