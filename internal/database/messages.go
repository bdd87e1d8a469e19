package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/store"
)

// MessageRepo stores chat messages scoped by profile id.
type MessageRepo struct {
	*table[models.Message]
}

var _ store.MessageStore = (*MessageRepo)(nil)

func newMessageRepo(s *Service) *MessageRepo {
	return &MessageRepo{table: &table[models.Message]{
		svc:        s,
		kind:       models.KindMessages,
		selectAll:  queryGetMessages,
		upsert:     queryUpsertMessage,
		deleteById: queryDeleteMessage,
		exists:     queryMessageExists,
		validate:   validateMessage,
		args:       messageArgs,
		scan:       scanMessage,
		prefer:     preferConfirmedMessage,
		beforeWrite: func(ctx context.Context, tx *sql.Tx, m models.Message, owner string) error {
			return ensureInteraction(ctx, tx, m.InteractionId, owner)
		},
	}}
}

// GetByInteraction returns the newest limit messages in chronological order.
// A limit of zero or less returns every message.
func (r *MessageRepo) GetByInteraction(ctx context.Context, interactionId, owner string, limit int) []models.Message {
	if !r.svc.Available() || owner == "" || interactionId == "" {
		return nil
	}
	if limit <= 0 {
		limit = -1
	}
	return queryRows(ctx, r.svc.db, r.kind, scanMessage, queryGetMessagesByInteraction, owner, interactionId, limit)
}

// Search matches message content by substring. Ranking is left to the caller.
func (r *MessageRepo) Search(ctx context.Context, query, owner string, limit int) []models.Message {
	query = strings.TrimSpace(query)
	if !r.svc.Available() || owner == "" || query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(query) + "%"
	return queryRows(ctx, r.svc.db, r.kind, scanMessage, querySearchMessages, owner, pattern, limit)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// A confirmed copy always beats a provisional one with the same id.
func preferConfirmedMessage(prev, next models.Message) models.Message {
	if next.IsOptimistic() && !prev.IsOptimistic() {
		return prev
	}
	return next
}

func validateMessage(m models.Message) error {
	if m.InteractionId == "" {
		return fmt.Errorf("%w: message %s missing interaction id", store.ErrInvalidRecord, m.Id)
	}
	return nil
}

func messageArgs(m models.Message, owner string) []any {
	messageType := m.MessageType
	if messageType == "" {
		messageType = "text"
	}
	return []any{
		m.Id, owner, m.InteractionId, m.SenderEntityId, m.Content, messageType, m.Status,
		encodeMetadata(m.Metadata), formatTime(m.CreatedAt),
	}
}

func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var metadata, createdAt string
	err := row.Scan(&m.Id, &m.InteractionId, &m.SenderEntityId, &m.Content, &m.MessageType, &m.Status, &metadata, &createdAt)
	if err != nil {
		return m, fmt.Errorf("failed to scan message: %w", err)
	}
	m.Metadata = decodeMetadata(metadata)
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}
