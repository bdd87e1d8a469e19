package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"wallet-sync-go/internal/fetch"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/querycache"
	"wallet-sync-go/internal/remote"
)

const timelinePageSize = 30

// Timeline returns the paginated interaction timeline. Local messages and
// transactions form the first page until the remote answers.
func (s *SyncService) Timeline(ctx context.Context, identity models.Identity, interactionId string, opts fetch.Options) *fetch.InfiniteQuery[models.TimelineItem] {
	opts.Disabled = opts.Disabled || interactionId == ""
	profileId := identity.ProfileId
	path := expandPath(s.endpoints.Timeline, map[string]string{"interaction_id": interactionId})

	q := fetch.NewInfiniteQuery(s.orchestrator, fetch.PageSpec[models.TimelineItem]{
		Key:   querycache.TimelineInfiniteKey(profileId, interactionId),
		Owner: profileId,
		ReadLocal: func(ctx context.Context) []models.TimelineItem {
			return s.localTimeline(ctx, interactionId, profileId)
		},
		FetchPage: func(ctx context.Context, cursor string) (json.RawMessage, error) {
			query := url.Values{"limit": []string{strconv.Itoa(timelinePageSize)}}
			if cursor != "" {
				query.Set("cursor", cursor)
			}
			return s.remote.Get(ctx, path, query)
		},
		Decode: func(raw json.RawMessage) ([]models.TimelineItem, string, bool) {
			items, next, more := remote.DecodePage[models.TimelineItem](raw)
			return models.WithDateSeparators(items), next, more
		},
		Reconcile: func(ctx context.Context, items []models.TimelineItem) {
			messages, transactions := splitTimeline(items, interactionId)
			if len(messages) > 0 {
				s.engine.MergeMessages(ctx, messages, profileId)
			}
			if len(transactions) > 0 {
				s.engine.MergeTransactions(ctx, transactions, profileId)
			}
		},
	}, opts)
	q.Start(ctx)
	return q
}

func (s *SyncService) localTimeline(ctx context.Context, interactionId, profileId string) []models.TimelineItem {
	messages := s.store.Messages().GetByInteraction(ctx, interactionId, profileId, timelinePageSize)
	transactions := s.store.Transactions().GetByInteraction(ctx, interactionId, profileId)

	items := make([]models.TimelineItem, 0, len(messages)+len(transactions))
	for _, m := range messages {
		items = append(items, models.MessageItem(m))
	}
	for _, tx := range transactions {
		items = append(items, models.TransactionItem(tx))
	}
	return models.WithDateSeparators(items)
}

func splitTimeline(items []models.TimelineItem, interactionId string) ([]models.Message, []models.Transaction) {
	var messages []models.Message
	var transactions []models.Transaction
	for _, item := range items {
		switch {
		case item.Kind == models.TimelineMessage && item.Message != nil:
			m := *item.Message
			if m.InteractionId == "" {
				m.InteractionId = interactionId
			}
			messages = append(messages, m)
		case item.Kind == models.TimelineTransaction && item.Transaction != nil:
			tx := *item.Transaction
			if tx.InteractionId == "" {
				tx.InteractionId = interactionId
			}
			transactions = append(transactions, tx)
		}
	}
	return messages, transactions
}
