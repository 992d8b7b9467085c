package observability

import "context"

// Publisher is the slice of the AMQP publisher the event stream needs.
// Satisfied by rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

var defaultPublisher Publisher

// SetPublisher installs the process-wide event publisher. Nil leaves event
// publishing disabled.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent emits one event envelope onto the stream, counting failures.
// With no publisher installed it is a no-op.
func PublishEvent(ctx context.Context, routingKey string, message any, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.Publish(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
