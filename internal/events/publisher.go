// Package events publishes committed circulation changes to a RabbitMQ
// topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mrlokans/librapp/internal/circulation"
	"github.com/mrlokans/librapp/internal/config"
)

const (
	ExchangeType = "topic"
	AppID        = "librapp"

	RoutingLoanCheckedOut = "loan.checked_out"
	RoutingLoanCheckedIn  = "loan.checked_in"
	RoutingFinePaid       = "fine.paid"

	queueSize      = 256
	publishTimeout = 5 * time.Second
)

// Envelope is the JSON body of every published message.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func newEnvelope(eventType string, payload any, now time.Time) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: now.UTC(),
		Payload:    payload,
	}
}

// Message renders the envelope as a persistent AMQP message.
func Message(e Envelope) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.OccurredAt,
		Type:         e.Type,
		AppId:        AppID,
	}, nil
}

// sender delivers one message and returns once the broker has confirmed it.
type sender interface {
	send(ctx context.Context, routingKey string, msg amqp.Publishing) error
	close() error
}

// Publisher implements circulation.Observer. Events are queued and sent by a
// single background goroutine so observers never wait on the broker. When
// the queue is full the event is dropped and logged.
type Publisher struct {
	out   sender
	log   *zap.Logger
	now   func() time.Time
	queue chan outgoing
	done  chan struct{}
	once  sync.Once
}

type outgoing struct {
	key string
	env Envelope
}

var _ circulation.Observer = (*Publisher)(nil)

// NewPublisher connects to the broker and declares the exchange. It returns
// nil and no error when cfg.AMQPURL is empty.
func NewPublisher(cfg config.Events, log *zap.Logger) (*Publisher, error) {
	if cfg.AMQPURL == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	ch, err := dial(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	log.Info("event publisher connected", zap.String("exchange", cfg.Exchange))
	return newPublisher(ch, log), nil
}

func newPublisher(out sender, log *zap.Logger) *Publisher {
	p := &Publisher{
		out:   out,
		log:   log.Named("events"),
		now:   time.Now,
		queue: make(chan outgoing, queueSize),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer close(p.done)
	for o := range p.queue {
		msg, err := Message(o.env)
		if err != nil {
			p.log.Error("event dropped", zap.String("event_id", o.env.ID), zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = p.out.send(ctx, o.key, msg)
		cancel()
		if err != nil {
			p.log.Error("failed to publish event",
				zap.String("routing_key", o.key),
				zap.String("event_id", o.env.ID),
				zap.Error(err))
		}
	}
}

func (p *Publisher) enqueue(key string, payload any) {
	o := outgoing{key: key, env: newEnvelope(key, payload, p.now())}
	select {
	case p.queue <- o:
	default:
		p.log.Warn("event queue full, dropping event", zap.String("routing_key", key))
	}
}

func (p *Publisher) LoanCheckedOut(_ context.Context, loan circulation.LoanView) {
	p.enqueue(RoutingLoanCheckedOut, loan)
}

func (p *Publisher) LoanCheckedIn(_ context.Context, loan circulation.LoanView) {
	p.enqueue(RoutingLoanCheckedIn, loan)
}

// CheckoutRejected is not published; rejections are counted by metrics.
func (p *Publisher) CheckoutRejected(context.Context, circulation.Kind) {}

func (p *Publisher) FinePaid(_ context.Context, payment circulation.PaymentResult) {
	p.enqueue(RoutingFinePaid, payment)
}

// Close drains queued events and closes the broker connection. Observers
// must not be called after Close.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.queue)
		<-p.done
		err = p.out.close()
	})
	return err
}

type amqpSender struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func dial(url, exchange string) (*amqpSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &amqpSender{conn: conn, channel: ch, exchange: exchange}, nil
}

func (s *amqpSender) send(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	confirm, err := s.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		s.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	if confirm == nil {
		return nil
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker nacked event %s", msg.MessageId)
	}
	return nil
}

func (s *amqpSender) close() error {
	if s.channel != nil {
		s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
