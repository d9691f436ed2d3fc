package workers

import (
	"context"

	kafka "educenter-server/internal/clients/kafka"
)

// EventMessage is an alias for the Kafka event message type.
// This allows worker packages to reference EventMessage without importing kafka directly.
type EventMessage = kafka.EventMessage

// EventProcessor defines the interface for processing events from Kafka.
// Implementations should be idempotent as events may be redelivered on failure.
type EventProcessor interface {
	// Process handles a single event from Kafka.
	// Returns an error if processing fails, which will prevent offset commit
	// and cause the event to be redelivered.
	Process(ctx context.Context, event EventMessage) error

	// Name returns the processor name for logging.
	Name() string
}

// EventConsumer defines the interface for consuming events from Kafka
// and distributing them to a pool of workers.
type EventConsumer interface {
	// Start begins consuming events from Kafka and processing them.
	// Blocks until context is cancelled or an unrecoverable error occurs.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the consumer, draining in-flight events.
	Stop()
}
