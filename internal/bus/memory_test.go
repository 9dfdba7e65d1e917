package bus

import (
	"context"
	"testing"
)

func TestMemoryQueuePublishReceiveDelete(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)

	for _, body := range []string{"a", "b", "c"} {
		if err := q.Publish(ctx, []byte(body)); err != nil {
			t.Fatalf("publish %q: %v", body, err)
		}
	}

	first, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("received %d messages, want batch of 2", len(first))
	}
	if string(first[0].Body) != "a" || string(first[1].Body) != "b" {
		t.Fatalf("batch out of order: %q, %q", first[0].Body, first[1].Body)
	}

	second, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive remainder: %v", err)
	}
	if len(second) != 1 || string(second[0].Body) != "c" {
		t.Fatalf("remainder = %v", second)
	}

	for _, m := range append(first, second...) {
		if err := q.Delete(ctx, m.Receipt); err != nil {
			t.Fatalf("delete %s: %v", m.Receipt, err)
		}
	}
	if got := q.Len(); got != 0 {
		t.Fatalf("pending = %d after drain, want 0", got)
	}
}

func TestMemoryQueueRequeueRestoresOrder(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(10)

	for _, body := range []string{"1", "2", "3"} {
		if err := q.Publish(ctx, []byte(body)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	msgs, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("received %d, want 3", len(msgs))
	}
	// Ack the middle message only; the rest go back in publish order.
	if err := q.Delete(ctx, msgs[1].Receipt); err != nil {
		t.Fatalf("delete: %v", err)
	}
	q.Requeue()

	again, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive after requeue: %v", err)
	}
	if len(again) != 2 || string(again[0].Body) != "1" || string(again[1].Body) != "3" {
		t.Fatalf("requeued batch = %v", again)
	}
}

func TestMemoryQueueDeleteUnknownReceipt(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Delete(context.Background(), "r-404"); err == nil {
		t.Fatal("expected error for unknown receipt")
	}
}

func TestMemoryQueueClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)
	q.Close()

	if err := q.Publish(ctx, []byte("x")); err == nil {
		t.Fatal("publish on closed queue should fail")
	}
	if _, err := q.Receive(ctx); err == nil {
		t.Fatal("receive on closed queue should fail")
	}
}

func TestMemoryQueuePublishCopiesPayload(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)

	payload := []byte("original")
	if err := q.Publish(ctx, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	payload[0] = 'X'

	msgs, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(msgs[0].Body) != "original" {
		t.Fatalf("body = %q, caller mutation leaked", msgs[0].Body)
	}
}
