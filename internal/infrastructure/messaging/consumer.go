package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/ports"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/infrastructure/queue"
	"github.com/Joshsnailz/hospitalflow-sub002/internal/metrics"
)

const defaultPrefetch = 10

// Binding routes one routing key on one exchange to a handler.
type Binding struct {
	Exchange   string
	RoutingKey string
	Handler    ports.EventHandler
}

// DeliveryTracker remembers applied envelopes and counts attempts per queue.
// It is optional; errors from it are logged and never block processing.
type DeliveryTracker interface {
	IsProcessed(ctx context.Context, queue, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, queue, eventID string) error
	Attempt(ctx context.Context, queue, eventID string) (int64, error)
	Forget(ctx context.Context, queue, eventID string) error
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	// Service is the consuming service name used for queue naming.
	Service  string
	Prefetch int
	Workers  int
	// MaxDeliveries caps processing attempts per envelope before it is
	// dead-lettered. Zero retries forever. Requires a tracker.
	MaxDeliveries int
}

type job struct {
	queue    string
	handler  ports.EventHandler
	delivery amqp.Delivery
	env      domain.Envelope
	err      error
}

// Consumer binds queues on its own managed connection and hands deliveries
// to a sharded worker pool keyed by user id.
type Consumer struct {
	mgr      *Manager
	cfg      ConsumerConfig
	tracker  DeliveryTracker
	log      zerolog.Logger
	bindings []Binding

	dispatcher *queue.Dispatcher[job]
	ctx        context.Context
	cancel     context.CancelFunc
	pumps      sync.WaitGroup
}

// NewConsumer creates a Consumer on mgr. tracker may be nil.
func NewConsumer(mgr *Manager, cfg ConsumerConfig, tracker DeliveryTracker, log zerolog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}
	return &Consumer{
		mgr:     mgr,
		cfg:     cfg,
		tracker: tracker,
		log:     log.With().Str("service", cfg.Service).Logger(),
	}
}

// Bind adds a queue for routingKey on exchange. Call before Start.
func (c *Consumer) Bind(exchange, routingKey string, h ports.EventHandler) {
	c.bindings = append(c.bindings, Binding{Exchange: exchange, RoutingKey: routingKey, Handler: h})
}

// BindAll binds every routing key of handlers on exchange.
func (c *Consumer) BindAll(exchange string, handlers map[string]ports.EventHandler) {
	keys := make([]string, 0, len(handlers))
	for k := range handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Bind(exchange, k, handlers[k])
	}
}

// Start wires topology setup into the manager, starts the worker pool and
// then the manager itself.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.bindings) == 0 {
		return fmt.Errorf("consumer %s: no bindings", c.cfg.Service)
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.dispatcher = queue.NewDispatcher(c.cfg.Service, c.cfg.Workers, jobKey, c.handle, c.log)
	c.dispatcher.Start(c.ctx)
	c.mgr.OnConnect(c.setup)
	c.mgr.Start(c.ctx)
	return nil
}

// Close stops the connection, then the workers.
func (c *Consumer) Close() {
	if c.cancel == nil {
		return
	}
	c.mgr.Close()
	c.cancel()
	c.pumps.Wait()
	c.dispatcher.Wait()
}

func (c *Consumer) setup(ch Channel) error {
	if err := DeclareExchanges(ch); err != nil {
		return err
	}
	if err := DeclareDeadLetterQueue(ch, c.cfg.Service); err != nil {
		return err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	for _, b := range c.bindings {
		name, err := DeclareQueue(ch, c.cfg.Service, b)
		if err != nil {
			return err
		}
		deliveries, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", name, err)
		}
		c.pumps.Add(1)
		go c.pump(name, b.Handler, deliveries)
		c.log.Info().Str("queue", name).Str("routing_key", b.RoutingKey).Msg("consuming")
	}
	return nil
}

// pump feeds one queue's deliveries into the dispatcher until the channel closes.
func (c *Consumer) pump(name string, h ports.EventHandler, deliveries <-chan amqp.Delivery) {
	defer c.pumps.Done()
	for d := range deliveries {
		env, err := domain.DecodeEnvelope(d.Body)
		j := job{queue: name, handler: h, delivery: d, env: env, err: err}
		if err := c.dispatcher.Enqueue(c.ctx, j); err != nil {
			_ = d.Nack(false, true)
			return
		}
	}
}

func jobKey(j job) string {
	if j.err != nil {
		return j.delivery.MessageId
	}
	return j.env.PartitionKey()
}

func (c *Consumer) handle(ctx context.Context, j job) {
	start := time.Now()
	d := j.delivery
	log := c.log.With().Str("queue", j.queue).Str("event_id", j.env.EventID).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("event handler panicked, requeueing")
			c.settle(log, d.Nack(false, true))
			metrics.EventsConsumedTotal.WithLabelValues(j.queue, "requeued").Inc()
		}
	}()

	if j.err != nil {
		log.Error().Err(j.err).Str("message_id", d.MessageId).Msg("malformed envelope, dead-lettering")
		c.settle(log, d.Reject(false))
		c.deadLettered(j.queue, "malformed")
		return
	}

	if c.tracker != nil {
		done, err := c.tracker.IsProcessed(ctx, j.queue, j.env.EventID)
		if err != nil {
			log.Warn().Err(err).Msg("delivery check failed, processing anyway")
		} else if done {
			log.Debug().Msg("duplicate delivery acknowledged")
			c.settle(log, d.Ack(false))
			metrics.EventsConsumedTotal.WithLabelValues(j.queue, "duplicate").Inc()
			return
		}

		if c.cfg.MaxDeliveries > 0 {
			n, err := c.tracker.Attempt(ctx, j.queue, j.env.EventID)
			if err != nil {
				log.Warn().Err(err).Msg("attempt counter unavailable")
			} else if n > int64(c.cfg.MaxDeliveries) {
				log.Error().Int64("attempts", n).Msg("redelivery cap reached, dead-lettering")
				c.forget(ctx, log, j)
				c.settle(log, d.Nack(false, false))
				c.deadLettered(j.queue, "max_deliveries")
				return
			}
		}
	}

	err := j.handler(ctx, j.env)
	switch {
	case errors.Is(err, domain.ErrMalformedEvent):
		log.Error().Err(err).Msg("handler rejected payload, dead-lettering")
		c.forget(ctx, log, j)
		c.settle(log, d.Reject(false))
		c.deadLettered(j.queue, "malformed")
	case err != nil:
		log.Warn().Err(err).Bool("redelivered", d.Redelivered).Msg("event processing failed, requeueing")
		c.settle(log, d.Nack(false, true))
		metrics.EventsConsumedTotal.WithLabelValues(j.queue, "requeued").Inc()
	default:
		if c.tracker != nil {
			if err := c.tracker.MarkProcessed(ctx, j.queue, j.env.EventID); err != nil {
				log.Warn().Err(err).Msg("failed to mark delivery processed")
			}
			c.forget(ctx, log, j)
		}
		c.settle(log, d.Ack(false))
		metrics.EventsConsumedTotal.WithLabelValues(j.queue, "processed").Inc()
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.HandlerDuration.WithLabelValues(j.env.EventType, result).Observe(time.Since(start).Seconds())
}

func (c *Consumer) forget(ctx context.Context, log zerolog.Logger, j job) {
	if c.tracker == nil || c.cfg.MaxDeliveries <= 0 {
		return
	}
	if err := c.tracker.Forget(ctx, j.queue, j.env.EventID); err != nil {
		log.Warn().Err(err).Msg("failed to clear attempt counter")
	}
}

func (c *Consumer) deadLettered(queue, reason string) {
	metrics.EventsConsumedTotal.WithLabelValues(queue, "dead_lettered").Inc()
	metrics.DeadLetteredTotal.WithLabelValues(queue, reason).Inc()
}

// settle logs an ack/nack that could not reach the broker. The broker
// redelivers unacknowledged messages after the channel closes.
func (c *Consumer) settle(log zerolog.Logger, err error) {
	if err != nil {
		log.Warn().Err(err).Msg("acknowledgement failed")
	}
}
