package messaging

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/metrics"
)

// Publisher wraps payloads in envelopes and sends them over a managed
// connection. Failures are logged and reported as false, never returned.
type Publisher struct {
	mgr    *Manager
	source string
	log    zerolog.Logger
	mu     sync.Mutex
}

// NewPublisher registers exchange declaration on mgr, so it must be called
// before mgr.Start.
func NewPublisher(mgr *Manager, source string, log zerolog.Logger) *Publisher {
	mgr.OnConnect(DeclareExchanges)
	return &Publisher{mgr: mgr, source: source, log: log}
}

// Publish sends payload under routingKey, which doubles as the event type.
// The correlation id falls back to the one on ctx, then to a fresh one.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, payload any, correlationID string) bool {
	if correlationID == "" {
		correlationID = domain.CorrelationID(ctx)
	}
	env, err := domain.NewEnvelope(routingKey, p.source, correlationID, payload)
	if err != nil {
		p.failed(exchange, routingKey, "", err, "envelope build failed")
		return false
	}
	return p.PublishEnvelope(ctx, exchange, env)
}

// PublishEnvelope sends a prebuilt envelope. Delivery is persistent but not
// confirmed by the broker.
func (p *Publisher) PublishEnvelope(ctx context.Context, exchange string, env domain.Envelope) bool {
	ch, ok := p.mgr.Channel()
	if !ok {
		p.failed(exchange, env.EventType, env.EventID, domain.ErrPublishFailed, "broker not connected, event dropped")
		return false
	}

	body, err := json.Marshal(env)
	if err != nil {
		p.failed(exchange, env.EventType, env.EventID, err, "envelope encode failed")
		return false
	}

	msg := amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     env.EventID,
		CorrelationId: env.CorrelationID,
		Type:          env.EventType,
		AppId:         env.Source,
		Timestamp:     env.Timestamp,
		Body:          body,
	}

	p.mu.Lock()
	err = ch.PublishWithContext(ctx, exchange, env.EventType, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		p.failed(exchange, env.EventType, env.EventID, err, "publish failed")
		return false
	}

	metrics.EventsPublishedTotal.WithLabelValues(exchange, env.EventType, "delivered").Inc()
	p.log.Debug().
		Str("exchange", exchange).
		Str("routing_key", env.EventType).
		Str("event_id", env.EventID).
		Str("correlation_id", env.CorrelationID).
		Msg("event published")
	return true
}

func (p *Publisher) failed(exchange, routingKey, eventID string, err error, msg string) {
	metrics.EventsPublishedTotal.WithLabelValues(exchange, routingKey, "failed").Inc()
	p.log.Warn().
		Err(err).
		Str("exchange", exchange).
		Str("routing_key", routingKey).
		Str("event_id", eventID).
		Msg(msg)
}
