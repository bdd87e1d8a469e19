package database

import (
	"context"
	"database/sql"
	"fmt"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/store"
)

// InteractionRepo stores interactions and their members scoped by profile id.
// Deleting an interaction removes its members and messages.
type InteractionRepo struct {
	*table[models.Interaction]
}

var _ store.InteractionStore = (*InteractionRepo)(nil)

func newInteractionRepo(s *Service) *InteractionRepo {
	return &InteractionRepo{table: &table[models.Interaction]{
		svc:        s,
		kind:       models.KindInteractions,
		selectAll:  queryGetInteractions,
		upsert:     queryUpsertInteraction,
		deleteById: queryDeleteInteraction,
		exists:     queryInteractionExists,
		args:       interactionArgs,
		scan:       scanInteraction,
		afterWrite: func(ctx context.Context, tx *sql.Tx, i models.Interaction, owner string) error {
			return upsertMembers(ctx, tx, i.Id, i.Members, owner)
		},
		beforeDelete: func(ctx context.Context, tx *sql.Tx, id, owner string) error {
			if _, err := tx.ExecContext(ctx, queryDeleteInteractionMembers, id, owner); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, queryDeleteInteractionMessages, id, owner)
			return err
		},
	}}
}

func (r *InteractionRepo) GetMembers(ctx context.Context, interactionId, owner string) []models.InteractionMember {
	if !r.svc.Available() || owner == "" || interactionId == "" {
		return nil
	}
	return queryRows(ctx, r.svc.db, r.kind, scanMember, queryGetInteractionMembers, interactionId, owner)
}

func (r *InteractionRepo) UpsertMembers(ctx context.Context, interactionId string, members []models.InteractionMember, owner string) error {
	if !r.svc.Available() || len(members) == 0 {
		return nil
	}
	if interactionId == "" || owner == "" {
		return fmt.Errorf("%w: interaction id and owner are required", store.ErrInvalidRecord)
	}
	return withTx(ctx, r.svc.db, func(tx *sql.Tx) error {
		if err := ensureInteraction(ctx, tx, interactionId, owner); err != nil {
			return err
		}
		return upsertMembers(ctx, tx, interactionId, members, owner)
	})
}

func upsertMembers(ctx context.Context, tx *sql.Tx, interactionId string, members []models.InteractionMember, owner string) error {
	for _, m := range members {
		if m.EntityId == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, queryUpsertInteractionMember,
			interactionId, owner, m.EntityId, m.Role, m.DisplayName, m.AvatarURL,
			formatTime(m.JoinedAt), formatTime(m.LastReadAt))
		if err != nil {
			return fmt.Errorf("failed to upsert member %s: %w", m.EntityId, err)
		}
	}
	return nil
}

func interactionArgs(i models.Interaction, owner string) []any {
	return []any{
		i.Id, owner, i.Name, i.IsGroup, i.CreatedByEntityId, i.IsActive, i.LastMessageSnippet,
		formatTime(i.LastMessageAt), i.LastMessageSenderId, i.UnreadCount,
		encodeMetadata(i.Metadata), formatTime(i.UpdatedAt),
	}
}

func scanInteraction(row rowScanner) (models.Interaction, error) {
	var i models.Interaction
	var lastMessageAt, metadata, updatedAt string
	err := row.Scan(&i.Id, &i.Name, &i.IsGroup, &i.CreatedByEntityId, &i.IsActive, &i.LastMessageSnippet,
		&lastMessageAt, &i.LastMessageSenderId, &i.UnreadCount, &metadata, &updatedAt)
	if err != nil {
		return i, fmt.Errorf("failed to scan interaction: %w", err)
	}
	i.LastMessageAt = parseTime(lastMessageAt)
	i.Metadata = decodeMetadata(metadata)
	i.UpdatedAt = parseTime(updatedAt)
	return i, nil
}

func scanMember(row rowScanner) (models.InteractionMember, error) {
	var m models.InteractionMember
	var joinedAt, lastReadAt string
	err := row.Scan(&m.InteractionId, &m.EntityId, &m.Role, &m.DisplayName, &m.AvatarURL, &joinedAt, &lastReadAt)
	if err != nil {
		return m, fmt.Errorf("failed to scan interaction member: %w", err)
	}
	m.JoinedAt = parseTime(joinedAt)
	m.LastReadAt = parseTime(lastReadAt)
	return m, nil
}
