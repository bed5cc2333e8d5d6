package observability

import "context"

// Publisher is the slice of the RabbitMQ publisher used for ws lifecycle events.
type Publisher interface {
	PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends message through the publisher installed by SetPublisher.
// Failures are counted by the publisher itself.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	return defaultPublisher.PublishWithHeaders(ctx, routingKey, message, headers)
}
