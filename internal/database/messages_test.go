package database

import (
	"context"
	"testing"
	"time"

	"wallet-sync-go/internal/models"
)

func TestMessagesGetByInteraction_NewestInOrder(t *testing.T) {
	service, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	var batch []models.Message
	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		batch = append(batch, models.Message{Id: id, InteractionId: "i1", Content: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	service.Messages().UpsertBatch(ctx, batch, "profile-1")

	got := service.Messages().GetByInteraction(ctx, "i1", "profile-1", 2)
	if len(got) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(got))
	}
	if got[0].Id != "m3" || got[1].Id != "m4" {
		t.Errorf("Expected [m3 m4], got [%s %s]", got[0].Id, got[1].Id)
	}
	if !got[1].CreatedAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("Expected created_at to round-trip, got %v", got[1].CreatedAt)
	}

	if all := service.Messages().GetByInteraction(ctx, "i1", "profile-1", 0); len(all) != 4 {
		t.Errorf("Expected all 4 messages without a limit, got %d", len(all))
	}
}

func TestMessageBatch_ConfirmedCopyWins(t *testing.T) {
	service, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	confirmed := models.Message{Id: "m1", InteractionId: "i1", Content: "server", Status: "sent"}
	optimistic := models.Message{Id: "m1", InteractionId: "i1", Content: "local", Metadata: map[string]any{"is_optimistic": true}}

	result := service.Messages().UpsertBatch(ctx, []models.Message{confirmed, optimistic}, "profile-1")
	if result.Duplicates != 1 {
		t.Errorf("Expected 1 duplicate, got %d", result.Duplicates)
	}

	got := service.Messages().GetAll(ctx, "profile-1")
	if len(got) != 1 || got[0].Content != "server" {
		t.Errorf("Expected confirmed copy to be stored, got %+v", got)
	}
}

func TestMessageSearch(t *testing.T) {
	service, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	service.Messages().UpsertBatch(ctx, []models.Message{
		{Id: "m1", InteractionId: "i1", Content: "lunch at noon"},
		{Id: "m2", InteractionId: "i1", Content: "paid 100% of it"},
		{Id: "m3", InteractionId: "i2", Content: "dinner"},
	}, "profile-1")

	if got := service.Messages().Search(ctx, "lunch", "profile-1", 10); len(got) != 1 || got[0].Id != "m1" {
		t.Errorf("Expected m1 for 'lunch', got %+v", got)
	}
	if got := service.Messages().Search(ctx, "100%", "profile-1", 10); len(got) != 1 || got[0].Id != "m2" {
		t.Errorf("Expected literal percent match, got %+v", got)
	}
	if got := service.Messages().Search(ctx, "lunch", "profile-2", 10); len(got) != 0 {
		t.Errorf("Expected no results for another owner, got %d", len(got))
	}
}
