package database

import (
	"context"
	"testing"
	"time"

	"wallet-sync-go/internal/models"
)

func TestOutboxLifecycle(t *testing.T) {
	service, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	outbox := service.Outbox()

	base := time.Now().Add(-time.Minute)
	for i, id := range []string{"op-1", "op-2"} {
		err := outbox.Enqueue(ctx, models.OutboxOp{
			Id:         id,
			Kind:       "send_money",
			Method:     "POST",
			Path:       "/transactions",
			Body:       []byte(`{"amount":"5"}`),
			MaxRetries: 2,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	ready := outbox.DequeueReady(ctx, 10)
	if len(ready) != 2 || ready[0].Id != "op-1" {
		t.Fatalf("Expected op-1 first of 2 ready ops, got %+v", ready)
	}
	if string(ready[0].Body) != `{"amount":"5"}` {
		t.Errorf("Expected body to round-trip, got %s", ready[0].Body)
	}

	if err := outbox.Ack(ctx, "op-1"); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	if err := outbox.Nack(ctx, "op-2", "timeout", 1); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}
	if count := outbox.PendingCount(ctx); count != 1 {
		t.Errorf("Expected 1 pending op, got %d", count)
	}

	// Reaching the retry limit parks the op as failed.
	if err := outbox.Nack(ctx, "op-2", "timeout", 2); err != nil {
		t.Fatalf("Nack failed: %v", err)
	}
	if ready := outbox.DequeueReady(ctx, 10); len(ready) != 0 {
		t.Errorf("Expected no ready ops, got %d", len(ready))
	}
	ops := outbox.List(ctx)
	if len(ops) != 1 || ops[0].Status != models.OutboxFailed || ops[0].LastError != "timeout" {
		t.Errorf("Expected op-2 to be failed, got %+v", ops)
	}
}
