package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	RoutingKeyRequest = "detection.request"
	RoutingKeyStatus  = "detection.status"
)

type Topology struct {
	Exchange     string
	RequestQueue string
	StatusQueue  string
	DLQ          string
}

// Declare creates the exchange, the three durable queues and their bindings.
// Declarations are idempotent, so API and worker processes both call it on startup.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{t.RequestQueue, t.StatusQueue, t.DLQ} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if err := ch.QueueBind(t.RequestQueue, RoutingKeyRequest, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind request queue: %w", err)
	}
	if err := ch.QueueBind(t.StatusQueue, RoutingKeyStatus, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}
