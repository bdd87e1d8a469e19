package querycache

import (
	"strconv"

	"wallet-sync-go/internal/models"
)

// Cache keys shared by the queries that fill them and the dispatchers that
// patch them. The profile id is always the second segment of an owner-scoped
// key so one profile never reads another's cached rows.

func BalancesKey(profileId, entityId string) Key {
	return Key{string(models.KindWallets), profileId, entityId}
}

func TransactionsKey(profileId string) Key {
	return Key{string(models.KindTransactions), profileId}
}

func InteractionsKey(profileId string) Key {
	return Key{string(models.KindInteractions), profileId}
}

// TimelineKey is the size-limited timeline variant.
func TimelineKey(profileId, interactionId string, limit int) Key {
	return Key{"timeline", profileId, interactionId, "limit", strconv.Itoa(limit)}
}

// MessagesKey holds the newest messages of an interaction without the
// transactions that the timeline variants interleave.
func MessagesKey(profileId, interactionId string, limit int) Key {
	return Key{"timeline", profileId, interactionId, "messages", strconv.Itoa(limit)}
}

// TimelineInfiniteKey is the cursor-paginated timeline variant.
func TimelineInfiniteKey(profileId, interactionId string) Key {
	return Key{"timeline", profileId, interactionId, "infinite"}
}

func KycKey(profileId, entityId string) Key {
	return Key{string(models.KindKyc), profileId, entityId}
}

func PoolsKey() Key {
	return Key{string(models.KindPools)}
}

func PoolEnrollmentsKey(entityId string) Key {
	return Key{string(models.KindPoolEnrollments), entityId}
}

// Matchers for the broad invalidations.

// MatchTimelines selects the timelines of one interaction for profileId.
// Empty arguments widen the match to every profile or every interaction.
func MatchTimelines(profileId, interactionId string) Matcher {
	return func(k Key) bool {
		if len(k) < 3 || k[0] != "timeline" {
			return false
		}
		return (profileId == "" || k[1] == profileId) &&
			(interactionId == "" || k[2] == interactionId)
	}
}

func MatchBalances() Matcher {
	return MatchPrefix(string(models.KindWallets))
}

// MatchBalancesFor selects the balance entries of the given entities for
// every profile that has them cached.
func MatchBalancesFor(entityIds ...string) Matcher {
	wanted := make(map[string]bool, len(entityIds))
	for _, id := range entityIds {
		if id != "" {
			wanted[id] = true
		}
	}
	if len(wanted) == 0 {
		return MatchBalances()
	}
	return func(k Key) bool {
		return len(k) == 3 && k[0] == string(models.KindWallets) && wanted[k[2]]
	}
}

// MatchTransactionRelated selects every key whose data depends on
// transactions: transaction lists, timelines and balances.
func MatchTransactionRelated() Matcher {
	return func(k Key) bool {
		return k.HasPrefix(string(models.KindTransactions)) ||
			k.HasPrefix("timeline") ||
			k.HasPrefix(string(models.KindWallets))
	}
}

// MatchNotOwnedBy selects the per-user entries that do not belong to
// identity. The shared pool catalog is never selected.
func MatchNotOwnedBy(identity models.Identity) Matcher {
	return func(k Key) bool {
		if len(k) < 2 {
			return false
		}
		switch k[0] {
		case string(models.KindPools):
			return false
		case string(models.KindPoolEnrollments):
			return k[1] != identity.EntityId
		}
		return k[1] != identity.ProfileId
	}
}
