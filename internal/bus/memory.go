package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantfold/tip/errs"
)

// MemoryQueue is an in-process queue with SQS-like visibility semantics.
// Tests and local development use it in place of a real queue.
type MemoryQueue struct {
	mu       sync.Mutex
	batch    int
	seq      int
	pending  []Message
	inflight map[string]Message
	closed   bool
}

// NewMemoryQueue constructs a queue returning at most batch messages per
// receive. A non-positive batch takes DefaultReceiveBatch.
func NewMemoryQueue(batch int) *MemoryQueue {
	if batch <= 0 {
		batch = DefaultReceiveBatch
	}
	return &MemoryQueue{batch: batch, inflight: make(map[string]Message)}
}

// Publish appends one payload to the queue.
func (q *MemoryQueue) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish context: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errs.New("bus", errs.CodeUnavailable, errs.WithMessage("queue closed"))
	}
	q.seq++
	body := make([]byte, len(payload))
	copy(body, payload)
	q.pending = append(q.pending, Message{
		ID:      fmt.Sprintf("m-%d", q.seq),
		Body:    body,
		Receipt: fmt.Sprintf("r-%d", q.seq),
	})
	return nil
}

// Receive pops up to the configured batch of pending messages. Received
// messages stay invisible until deleted or requeued; there is no timer.
func (q *MemoryQueue) Receive(ctx context.Context) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("receive context: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, errs.New("bus", errs.CodeUnavailable, errs.WithMessage("queue closed"))
	}
	n := len(q.pending)
	if n > q.batch {
		n = q.batch
	}
	out := make([]Message, n)
	copy(out, q.pending[:n])
	q.pending = q.pending[n:]
	for _, m := range out {
		q.inflight[m.Receipt] = m
	}
	return out, nil
}

// Delete acknowledges an in-flight message.
func (q *MemoryQueue) Delete(ctx context.Context, receipt string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[receipt]; !ok {
		return errs.New("bus", errs.CodeNotFound, errs.WithMessage("unknown receipt handle"))
	}
	delete(q.inflight, receipt)
	return nil
}

// Requeue returns all in-flight messages to the front of the pending queue,
// simulating visibility-timeout expiry.
func (q *MemoryQueue) Requeue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.inflight) == 0 {
		return
	}
	restored := make([]Message, 0, len(q.inflight)+len(q.pending))
	// Receipt numbers encode publish order; restore it.
	for seq := 1; seq <= q.seq; seq++ {
		if m, ok := q.inflight[fmt.Sprintf("r-%d", seq)]; ok {
			restored = append(restored, m)
		}
	}
	q.pending = append(restored, q.pending...)
	q.inflight = make(map[string]Message)
}

// Len reports the number of pending (visible) messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects further operations.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

var (
	_ Publisher = (*MemoryQueue)(nil)
	_ Receiver  = (*MemoryQueue)(nil)
)
