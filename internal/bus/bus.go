// Package bus connects the pipeline to the downstream delivery queue. The
// dispatcher and replay engine publish through it; consumers receive from it.
package bus

import "context"

// Publisher delivers canonical event payloads to the queue.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Message is one in-flight queue delivery.
type Message struct {
	// ID is the queue-assigned message identifier.
	ID string
	// Body carries the canonical event JSON.
	Body []byte
	// Receipt acknowledges this delivery; it is only valid while the message
	// is invisible to other receivers.
	Receipt string
}

// Receiver long-polls the delivery queue.
type Receiver interface {
	// Receive blocks up to the configured wait time and returns at most one
	// batch of messages. An empty slice means the poll timed out quietly.
	Receive(ctx context.Context) ([]Message, error)
	// Delete acknowledges a processed message. Undeleted messages become
	// visible again once their visibility timeout lapses.
	Delete(ctx context.Context, receipt string) error
}
