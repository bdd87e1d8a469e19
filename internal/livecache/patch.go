package livecache

import (
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/querycache"
)

// ApplyTransaction merges tx into the cached timelines of its interaction and
// into the profile's transaction list when those entries exist. Fields left
// empty in tx keep their cached values.
func ApplyTransaction(cache *querycache.Cache, profileId string, tx models.Transaction) int {
	insert := tx.InteractionId != ""
	patched := patchTimelines(cache, profileId, tx.InteractionId, timelineEdit{
		items: func(items []models.TimelineItem, first bool) ([]models.TimelineItem, bool) {
			return mergeTransactionItem(items, tx, insert && first)
		},
	})

	if profileId != "" {
		querycache.UpdateAs(cache, querycache.TransactionsKey(profileId), func(prev []models.Transaction, ok bool) ([]models.Transaction, bool) {
			if !ok {
				return prev, false
			}
			return upsertTransaction(prev, tx), true
		})
	}
	return patched
}

// RemoveTransaction drops a transaction from every cached view, e.g. when an
// optimistic transfer is rolled back.
func RemoveTransaction(cache *querycache.Cache, profileId, interactionId, transactionId string) {
	patchTimelines(cache, profileId, interactionId, timelineEdit{
		items: func(items []models.TimelineItem, _ bool) ([]models.TimelineItem, bool) {
			return removeItem(items, models.TimelineTransaction, transactionId)
		},
	})

	if profileId == "" {
		return
	}
	querycache.UpdateAs(cache, querycache.TransactionsKey(profileId), func(prev []models.Transaction, ok bool) ([]models.Transaction, bool) {
		if !ok {
			return prev, false
		}
		for i, existing := range prev {
			if existing.Id == transactionId {
				next := append([]models.Transaction(nil), prev[:i]...)
				return append(next, prev[i+1:]...), true
			}
		}
		return prev, false
	})
}

// ReplaceTransaction swaps a provisional transaction for the confirmed one.
func ReplaceTransaction(cache *querycache.Cache, profileId, provisionalId string, confirmed models.Transaction) {
	if provisionalId != confirmed.Id {
		RemoveTransaction(cache, profileId, confirmed.InteractionId, provisionalId)
	}
	ApplyTransaction(cache, profileId, confirmed)
}

// cachedTransaction returns the profile's cached copy of a transaction.
func cachedTransaction(cache *querycache.Cache, profileId, transactionId string) (models.Transaction, bool) {
	list, ok := querycache.GetAs[[]models.Transaction](cache, querycache.TransactionsKey(profileId))
	if !ok {
		return models.Transaction{}, false
	}
	for _, tx := range list {
		if tx.Id == transactionId {
			return tx, true
		}
	}
	return models.Transaction{}, false
}

func mergeTransactionItem(items []models.TimelineItem, tx models.Transaction, insert bool) ([]models.TimelineItem, bool) {
	for i, existing := range items {
		if existing.Kind != models.TimelineTransaction || existing.Id != tx.Id {
			continue
		}
		merged := tx
		if existing.Transaction != nil {
			merged = existing.Transaction.Merge(tx)
		}
		next := append([]models.TimelineItem(nil), items...)
		next[i] = models.TransactionItem(merged)
		return models.WithDateSeparators(next), true
	}
	if !insert {
		return items, false
	}
	next := append(append([]models.TimelineItem(nil), items...), models.TransactionItem(tx))
	return models.WithDateSeparators(next), true
}
