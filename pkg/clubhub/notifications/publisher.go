package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mikepea/clubhub/pkg/clubhub/models"
)

// Message is the JSON body published for each notification
type Message struct {
	ID              uint      `json:"id"`
	UserID          uint      `json:"user_id"`
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	RelatedEntityID *uint     `json:"related_entity_id,omitempty"`
	SentAt          time.Time `json:"sent_at"`
}

// MessageFrom converts a stored notification into its published form
func MessageFrom(n models.Notification) Message {
	return Message{
		ID:              n.ID,
		UserID:          n.UserID,
		Type:            string(n.Type),
		Title:           n.Title,
		Message:         n.Message,
		RelatedEntityID: n.RelatedEntityID,
		SentAt:          n.SentAt,
	}
}

// Publisher forwards notification messages to an external system
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

const (
	// DialTimeout bounds each connection attempt to the broker
	DialTimeout = 2 * time.Second
	// RedialBackoff is how long Publish fails fast after a failed dial
	RedialBackoff = 30 * time.Second
)

// ErrBrokerUnavailable is returned while the publisher waits out RedialBackoff
var ErrBrokerUnavailable = errors.New("amqp broker unavailable")

// AMQPPublisher publishes persistent JSON messages to a durable queue.
// The connection is opened lazily and reopened after a failure, at most
// once per RedialBackoff.
type AMQPPublisher struct {
	url    string
	queue  string
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

// NewAMQPPublisher creates a publisher for queue on the broker at url
func NewAMQPPublisher(url, queue string, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, queue: queue, logger: logger, now: time.Now}
}

// WithClock replaces the clock used for the redial backoff
func (p *AMQPPublisher) WithClock(now func() time.Time) *AMQPPublisher {
	p.now = now
	return p
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	if p.now().Before(p.retryAt) {
		return nil, ErrBrokerUnavailable
	}

	ch, err := p.dial()
	if err != nil {
		p.retryAt = p.now().Add(RedialBackoff)
		p.logger.Warn("Broker unreachable", zap.Error(err), zap.Duration("retry_in", RedialBackoff))
		return nil, err
	}
	p.retryAt = time.Time{}
	return ch, nil
}

func (p *AMQPPublisher) dial() (*amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(DialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}

	p.conn, p.ch = conn, ch
	p.logger.Info("Connected to broker", zap.String("queue", p.queue))
	return ch, nil
}

// Publish sends msg to the configured queue
func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         msg.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.closeLocked()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close releases the broker connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
