package livecache

import (
	"context"
	"time"
	"unicode/utf8"

	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/querycache"

	"go.uber.org/zap"
)

const snippetLength = 100

func (d *Dispatcher) handleMessage(message models.Message, fromPush bool) {
	if message.Id == "" || message.InteractionId == "" {
		zap.L().Warn("Ignoring message event without ids", zap.String("message_id", message.Id))
		return
	}
	cache, identity := d.state()
	if cache == nil {
		return
	}
	if !d.markSeen("message:" + message.Id) {
		zap.L().Debug("Duplicate message event ignored", zap.String("message_id", message.Id))
		return
	}

	patched := patchTimelines(cache, identity.ProfileId, message.InteractionId, timelineEdit{
		items: func(items []models.TimelineItem, first bool) ([]models.TimelineItem, bool) {
			return upsertItem(items, models.MessageItem(message), first)
		},
		messages: func(messages []models.Message) ([]models.Message, bool) {
			return upsertMessage(messages, message), true
		},
	})
	d.patchInteractionPreview(cache, identity, message)

	zap.L().Debug("Applied message to cache",
		zap.String("message_id", message.Id),
		zap.String("interaction_id", message.InteractionId),
		zap.Int("timelines", patched))

	if fromPush {
		d.persist(func(ctx context.Context, p Persister, owner string) {
			p.PersistMessage(ctx, message, owner)
		})
	}
	d.notify(message.InteractionId, events.KindMessageNew, message)
}

// patchInteractionPreview moves the interaction to the top of the owner's
// list with the new snippet. Unread grows only for messages from others.
func (d *Dispatcher) patchInteractionPreview(cache *querycache.Cache, identity models.Identity, message models.Message) {
	if identity.ProfileId == "" {
		return
	}
	key := querycache.InteractionsKey(identity.ProfileId)
	found := false
	querycache.UpdateAs(cache, key, func(prev []models.Interaction, ok bool) ([]models.Interaction, bool) {
		idx := indexOfInteraction(prev, message.InteractionId)
		if !ok || idx < 0 {
			return prev, false
		}
		found = true

		updated := prev[idx]
		updated.LastMessageSnippet = snippet(message.Content)
		updated.LastMessageAt = message.CreatedAt
		updated.LastMessageSenderId = message.SenderEntityId
		if message.SenderEntityId != identity.EntityId {
			updated.UnreadCount++
		}
		return moveToFront(prev, idx, updated), true
	})

	if _, cached := cache.Get(key); cached && !found {
		// The list has never seen this interaction; only the server knows its shape.
		cache.Invalidate(querycache.MatchKey(key))
	}
}

func (d *Dispatcher) handleTransaction(tx models.Transaction, fromPush bool) {
	if tx.Id == "" {
		zap.L().Warn("Ignoring transaction event without id")
		return
	}
	cache, identity := d.state()
	if cache == nil {
		return
	}
	if !d.markSeen("transaction:" + tx.Id + ":" + tx.Status) {
		zap.L().Debug("Duplicate transaction event ignored",
			zap.String("transaction_id", tx.Id),
			zap.String("status", tx.Status))
		return
	}

	full := tx
	if cached, ok := cachedTransaction(cache, identity.ProfileId, tx.Id); ok {
		full = cached.Merge(tx)
	}
	patched := ApplyTransaction(cache, identity.ProfileId, tx)

	if tx.Status == models.TransactionCompleted {
		n := cache.Invalidate(querycache.MatchBalancesFor(full.FromEntityId, full.ToEntityId, identity.EntityId))
		zap.L().Debug("Transaction completed, invalidated balances",
			zap.String("transaction_id", tx.Id),
			zap.Int("refetches", n))
	}

	zap.L().Debug("Applied transaction update to cache",
		zap.String("transaction_id", tx.Id),
		zap.String("status", tx.Status),
		zap.Int("timelines", patched))

	if fromPush {
		d.persist(func(ctx context.Context, p Persister, owner string) {
			p.PersistTransaction(ctx, tx, owner)
		})
	}
	d.notify(full.InteractionId, events.KindTransactionUpdate, full)
}

func (d *Dispatcher) handleMessageDeleted(messageId, interactionId string, fromPush bool) {
	if messageId == "" {
		return
	}
	cache, identity := d.state()
	if cache == nil {
		return
	}
	if !d.markSeen("deleted:" + messageId) {
		zap.L().Debug("Duplicate deletion event ignored", zap.String("message_id", messageId))
		return
	}

	patched := patchTimelines(cache, identity.ProfileId, interactionId, timelineEdit{
		items: func(items []models.TimelineItem, _ bool) ([]models.TimelineItem, bool) {
			return removeItem(items, models.TimelineMessage, messageId)
		},
		messages: func(messages []models.Message) ([]models.Message, bool) {
			return removeMessage(messages, messageId)
		},
	})

	zap.L().Debug("Removed deleted message from cache",
		zap.String("message_id", messageId),
		zap.Int("timelines", patched))

	if fromPush {
		d.persist(func(ctx context.Context, p Persister, owner string) {
			p.PersistDeletedMessage(ctx, messageId, owner)
		})
	}
	d.notify(interactionId, events.KindMessageDeleted, messageId)
}

func (d *Dispatcher) handleInteraction(interaction models.Interaction, fromPush bool) {
	if interaction.Id == "" {
		return
	}
	cache, identity := d.state()
	if cache == nil {
		return
	}
	if !interaction.UpdatedAt.IsZero() &&
		!d.markSeen("interaction:"+interaction.Id+":"+interaction.UpdatedAt.UTC().Format(time.RFC3339Nano)) {
		return
	}

	if identity.ProfileId != "" {
		querycache.UpdateAs(cache, querycache.InteractionsKey(identity.ProfileId), func(prev []models.Interaction, ok bool) ([]models.Interaction, bool) {
			if !ok {
				return prev, false
			}
			idx := indexOfInteraction(prev, interaction.Id)
			if idx < 0 {
				return append([]models.Interaction{interaction}, prev...), true
			}
			next := append([]models.Interaction(nil), prev...)
			next[idx] = interaction
			return next, true
		})
	}

	if fromPush {
		d.persist(func(ctx context.Context, p Persister, owner string) {
			p.PersistInteraction(ctx, interaction, owner)
		})
	}
	d.notify(interaction.Id, events.KindInteractionUpdated, interaction)
}

// handleDataUpdated removes records the store has just deleted from every
// cached view of the current profile.
func (d *Dispatcher) handleDataUpdated(e events.DataUpdated) {
	if len(e.DeletedIds) == 0 {
		return
	}
	cache, identity := d.state()
	if cache == nil {
		return
	}

	switch e.RecordKind {
	case models.KindInteractions:
		DropInteractions(cache, identity.ProfileId, e.DeletedIds)
	case models.KindMessages:
		for _, id := range e.DeletedIds {
			patchTimelines(cache, identity.ProfileId, "", timelineEdit{
				items: func(items []models.TimelineItem, _ bool) ([]models.TimelineItem, bool) {
					return removeItem(items, models.TimelineMessage, id)
				},
				messages: func(messages []models.Message) ([]models.Message, bool) {
					return removeMessage(messages, id)
				},
			})
		}
	}
}

// DropInteractions removes deleted interactions from the profile's cached
// list and drops their timelines.
func DropInteractions(cache *querycache.Cache, profileId string, ids []string) int {
	if profileId == "" || len(ids) == 0 {
		return 0
	}
	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		deleted[id] = true
	}

	dropped := 0
	querycache.UpdateAs(cache, querycache.InteractionsKey(profileId), func(prev []models.Interaction, ok bool) ([]models.Interaction, bool) {
		if !ok {
			return prev, false
		}
		next := make([]models.Interaction, 0, len(prev))
		for _, interaction := range prev {
			if !deleted[interaction.Id] {
				next = append(next, interaction)
			}
		}
		dropped = len(prev) - len(next)
		return next, dropped > 0
	})
	for _, id := range ids {
		cache.Remove(querycache.MatchTimelines(profileId, id))
	}
	return dropped
}

func indexOfInteraction(list []models.Interaction, id string) int {
	for i, item := range list {
		if item.Id == id {
			return i
		}
	}
	return -1
}

func moveToFront(list []models.Interaction, idx int, updated models.Interaction) []models.Interaction {
	next := make([]models.Interaction, 0, len(list))
	next = append(next, updated)
	next = append(next, list[:idx]...)
	return append(next, list[idx+1:]...)
}

func upsertTransaction(list []models.Transaction, tx models.Transaction) []models.Transaction {
	for i, existing := range list {
		if existing.Id == tx.Id {
			next := append([]models.Transaction(nil), list...)
			next[i] = existing.Merge(tx)
			return next
		}
	}
	return append([]models.Transaction{tx}, list...)
}

func snippet(content string) string {
	if utf8.RuneCountInString(content) <= snippetLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:snippetLength])
}
