package database

import (
	"context"
	"testing"
	"time"

	"wallet-sync-go/internal/models"
)

func TestMessageUpsert_CreatesPlaceholderInteraction(t *testing.T) {
	service, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	msg := models.Message{Id: "m1", InteractionId: "i-new", SenderEntityId: "entity-2", Content: "hello"}
	if err := service.Messages().Upsert(ctx, msg, "profile-1"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if !service.Interactions().Exists(ctx, "i-new") {
		t.Fatalf("Expected placeholder interaction to be created")
	}

	// A later remote merge overwrites the placeholder.
	remote := models.Interaction{Id: "i-new", Name: "Alice", IsActive: true}
	if err := service.Interactions().Upsert(ctx, remote, "profile-1"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	interactions := service.Interactions().GetAll(ctx, "profile-1")
	if len(interactions) != 1 || interactions[0].Name != "Alice" {
		t.Errorf("Expected merged interaction named Alice, got %+v", interactions)
	}
	if _, stub := interactions[0].Metadata["is_stub"]; stub {
		t.Errorf("Expected placeholder marker to be replaced")
	}
}

func TestInteractionUpsert_WritesMembers(t *testing.T) {
	service, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	interaction := models.Interaction{
		Id:       "i1",
		IsActive: true,
		Members: []models.InteractionMember{
			{EntityId: "entity-1", Role: "owner", JoinedAt: time.Now()},
			{EntityId: "entity-2", Role: "member", JoinedAt: time.Now()},
		},
	}
	if err := service.Interactions().Upsert(ctx, interaction, "profile-1"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Merging a copy without members keeps the stored members.
	interaction.Members = nil
	interaction.Name = "Renamed"
	if err := service.Interactions().Upsert(ctx, interaction, "profile-1"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	members := service.Interactions().GetMembers(ctx, "i1", "profile-1")
	if len(members) != 2 {
		t.Errorf("Expected 2 members, got %d", len(members))
	}
	if other := service.Interactions().GetMembers(ctx, "i1", "profile-2"); len(other) != 0 {
		t.Errorf("Expected no members visible to profile-2, got %d", len(other))
	}
}

func TestInteractionDelete_RemovesDependents(t *testing.T) {
	service, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "keep"} {
		err := service.Interactions().Upsert(ctx, models.Interaction{
			Id:      id,
			Members: []models.InteractionMember{{EntityId: "entity-1"}},
		}, "profile-X")
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		service.Messages().Upsert(ctx, models.Message{Id: "msg-" + id, InteractionId: id, Content: "x"}, "profile-X")
	}
	service.Transactions().Upsert(ctx, models.Transaction{Id: "t1", InteractionId: "a"}, "profile-X")

	if err := service.Interactions().DeleteBatch(ctx, []string{"a", "b", "unknown"}, "profile-X"); err != nil {
		t.Fatalf("DeleteBatch failed: %v", err)
	}

	remaining := service.Interactions().GetAll(ctx, "profile-X")
	if len(remaining) != 1 || remaining[0].Id != "keep" {
		t.Errorf("Expected only 'keep' to remain, got %+v", remaining)
	}
	if members := service.Interactions().GetMembers(ctx, "a", "profile-X"); len(members) != 0 {
		t.Errorf("Expected members of deleted interaction to be removed, got %d", len(members))
	}
	if messages := service.Messages().GetByInteraction(ctx, "a", "profile-X", 0); len(messages) != 0 {
		t.Errorf("Expected messages of deleted interaction to be removed, got %d", len(messages))
	}
	if !service.Transactions().Exists(ctx, "t1") {
		t.Errorf("Expected transactions to survive interaction deletion")
	}

	// Deleting again is a no-op.
	if err := service.Interactions().DeleteBatch(ctx, []string{"a", "b"}, "profile-X"); err != nil {
		t.Errorf("Expected repeated delete to succeed, got %v", err)
	}
}

func TestInteractionDelete_OtherOwnerUntouched(t *testing.T) {
	service, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	service.Interactions().Upsert(ctx, models.Interaction{Id: "shared"}, "profile-A")
	service.Interactions().Upsert(ctx, models.Interaction{Id: "shared"}, "profile-B")

	if err := service.Interactions().DeleteById(ctx, "shared", "profile-A"); err != nil {
		t.Fatalf("DeleteById failed: %v", err)
	}
	if len(service.Interactions().GetAll(ctx, "profile-B")) != 1 {
		t.Errorf("Expected profile-B interaction to survive")
	}
}
