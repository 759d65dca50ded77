package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Joshsnailz/hospitalflow-sub002/internal/core/domain"
)

// QueueName returns the queue a service consumes routingKey from,
// e.g. "user-service.user.created".
func QueueName(service, routingKey string) string {
	return service + "." + routingKey
}

// DeadLetterKey is both the dead-letter routing key and the parked queue
// name of a service, e.g. "user-service.dead".
func DeadLetterKey(service string) string {
	return service + ".dead"
}

// DeclareExchanges declares the shared exchanges. Declaration is idempotent
// so it runs on every (re)connect.
func DeclareExchanges(ch Channel) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{domain.ExchangeEvents, amqp.ExchangeTopic},
		{domain.ExchangeAudit, amqp.ExchangeDirect},
		{domain.ExchangeDeadLetter, amqp.ExchangeDirect},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

// DeclareDeadLetterQueue declares the parked queue of service and binds it
// to the dead-letter exchange.
func DeclareDeadLetterQueue(ch Channel, service string) error {
	name := DeadLetterKey(service)
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	if err := ch.QueueBind(name, name, domain.ExchangeDeadLetter, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", name, err)
	}
	return nil
}

// DeclareQueue declares the durable queue for b with dead-lettering to the
// service's parked queue and binds it. It returns the queue name.
func DeclareQueue(ch Channel, service string, b Binding) (string, error) {
	name := QueueName(service, b.RoutingKey)
	args := amqp.Table{
		"x-dead-letter-exchange":    domain.ExchangeDeadLetter,
		"x-dead-letter-routing-key": DeadLetterKey(service),
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return "", fmt.Errorf("declare queue %s: %w", name, err)
	}
	if err := ch.QueueBind(name, b.RoutingKey, b.Exchange, false, nil); err != nil {
		return "", fmt.Errorf("bind queue %s: %w", name, err)
	}
	return name, nil
}
