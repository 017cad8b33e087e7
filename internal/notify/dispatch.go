package notify

import (
	"fmt"
	"strings"
	"time"
)

// NewSink builds the Sink addressed by a notifications.urls entry,
// dispatching on URL scheme (spec.md §9: https/http -> webhook,
// tg -> Telegram, amqp -> RabbitMQ).
func NewSink(rawURL string, sendTimeout time.Duration) (Sink, error) {
	switch {
	case strings.HasPrefix(rawURL, "https://"), strings.HasPrefix(rawURL, "http://"):
		return NewWebhookSink(rawURL, sendTimeout), nil
	case strings.HasPrefix(rawURL, "tg://"):
		return NewTelegramSink(rawURL)
	case strings.HasPrefix(rawURL, "amqp://"), strings.HasPrefix(rawURL, "amqps://"):
		exchange, routingKey := amqpExchangeFromQuery(rawURL)
		return NewAMQPSink(stripQuery(rawURL), exchange, routingKey)
	default:
		return nil, fmt.Errorf("unrecognized notification url scheme: %q", rawURL)
	}
}

func stripQuery(rawURL string) string {
	if idx := strings.IndexByte(rawURL, '?'); idx >= 0 {
		return rawURL[:idx]
	}
	return rawURL
}
