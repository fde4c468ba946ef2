package notify

import (
	"context"

	"oxe-delivery/pkg/rabbitmq"
)

// AlertChannel is the concrete binding: alert payloads fan out through the
// broker to whatever operator tooling is subscribed.
type AlertChannel struct {
	publisher Publisher
}

type Publisher interface {
	PublishMessage(exchange, routingKey string, message []byte) error
}

func NewAlertChannel(publisher Publisher) *AlertChannel {
	return &AlertChannel{publisher: publisher}
}

func (c *AlertChannel) Name() string { return "alerts" }

func (c *AlertChannel) Send(ctx context.Context, payload []byte) error {
	return c.publisher.PublishMessage(rabbitmq.AlertsExchange, "", payload)
}
