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

	"go.uber.org/zap"
)

// catalogScope stands in for the owner of the shared pool catalog.
const catalogScope = "catalog"

// Balances returns the started wallet query for entityId. An empty entityId
// yields an idle query with no data and no remote call.
func (s *SyncService) Balances(ctx context.Context, identity models.Identity, entityId string, opts fetch.Options) *fetch.Query[models.Wallet] {
	opts.Disabled = opts.Disabled || entityId == ""
	profileId := identity.ProfileId

	q := fetch.NewQuery(s.orchestrator, fetch.Spec[models.Wallet]{
		Key:   querycache.BalancesKey(profileId, entityId),
		Owner: profileId,
		ReadLocal: func(ctx context.Context) []models.Wallet {
			return s.store.Wallets().GetAll(ctx, profileId)
		},
		FetchRemote: s.get(s.endpoints.Wallets, map[string]string{"entity_id": entityId}, nil),
		Reconcile: func(ctx context.Context, rows []models.Wallet) {
			s.engine.MergeWallets(ctx, rows, profileId)
		},
	}, opts)
	q.Start(ctx)
	return q
}

func (s *SyncService) Transactions(ctx context.Context, identity models.Identity, opts fetch.Options) *fetch.Query[models.Transaction] {
	profileId := identity.ProfileId

	q := fetch.NewQuery(s.orchestrator, fetch.Spec[models.Transaction]{
		Key:   querycache.TransactionsKey(profileId),
		Owner: profileId,
		ReadLocal: func(ctx context.Context) []models.Transaction {
			return s.store.Transactions().GetAll(ctx, profileId)
		},
		FetchRemote: s.get(s.endpoints.Transactions, nil, nil),
		Reconcile: func(ctx context.Context, rows []models.Transaction) {
			s.engine.MergeTransactions(ctx, rows, profileId)
		},
	}, opts)
	q.Start(ctx)
	return q
}

func (s *SyncService) Interactions(ctx context.Context, identity models.Identity, opts fetch.Options) *fetch.Query[models.Interaction] {
	profileId := identity.ProfileId

	q := fetch.NewQuery(s.orchestrator, fetch.Spec[models.Interaction]{
		Key:   querycache.InteractionsKey(profileId),
		Owner: profileId,
		ReadLocal: func(ctx context.Context) []models.Interaction {
			return s.store.Interactions().GetAll(ctx, profileId)
		},
		FetchRemote: s.get(s.endpoints.Interactions, nil, nil),
		Reconcile: func(ctx context.Context, rows []models.Interaction) {
			s.engine.MergeInteractions(ctx, rows, profileId)
		},
	}, opts)
	q.Start(ctx)
	return q
}

// Messages returns the newest limit messages of an interaction.
func (s *SyncService) Messages(ctx context.Context, identity models.Identity, interactionId string, limit int, opts fetch.Options) *fetch.Query[models.Message] {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	opts.Disabled = opts.Disabled || interactionId == ""
	profileId := identity.ProfileId
	query := url.Values{"limit": []string{strconv.Itoa(limit)}}

	q := fetch.NewQuery(s.orchestrator, fetch.Spec[models.Message]{
		Key:   querycache.MessagesKey(profileId, interactionId, limit),
		Owner: profileId,
		ReadLocal: func(ctx context.Context) []models.Message {
			return s.store.Messages().GetByInteraction(ctx, interactionId, profileId, limit)
		},
		FetchRemote: s.get(s.endpoints.Messages, map[string]string{"interaction_id": interactionId}, query),
		Decode: func(raw json.RawMessage) []models.Message {
			messages := remote.DecodeList[models.Message](raw)
			for i := range messages {
				if messages[i].InteractionId == "" {
					messages[i].InteractionId = interactionId
				}
			}
			return messages
		},
		Reconcile: func(ctx context.Context, rows []models.Message) {
			s.engine.MergeMessages(ctx, rows, profileId)
		},
	}, opts)
	q.Start(ctx)
	return q
}

// KycStatus returns a query holding at most one status record.
func (s *SyncService) KycStatus(ctx context.Context, identity models.Identity, entityId string, opts fetch.Options) *fetch.Query[models.KycStatus] {
	opts.Disabled = opts.Disabled || entityId == ""
	profileId := identity.ProfileId

	q := fetch.NewQuery(s.orchestrator, fetch.Spec[models.KycStatus]{
		Key:   querycache.KycKey(profileId, entityId),
		Owner: profileId,
		ReadLocal: func(ctx context.Context) []models.KycStatus {
			if status := s.store.Kyc().Get(ctx, entityId, profileId); status != nil {
				return []models.KycStatus{*status}
			}
			return nil
		},
		FetchRemote: s.get(s.endpoints.Kyc, map[string]string{"entity_id": entityId}, nil),
		Decode: func(raw json.RawMessage) []models.KycStatus {
			status, err := remote.DecodeObject[models.KycStatus](raw)
			if err != nil {
				zap.L().Debug("Unrecognized KYC response", zap.Error(err))
				return nil
			}
			if status.EntityId == "" {
				status.EntityId = entityId
			}
			status.Raw = raw
			return []models.KycStatus{status}
		},
		Reconcile: func(ctx context.Context, rows []models.KycStatus) {
			for _, status := range rows {
				if err := s.engine.MergeKyc(ctx, status, profileId); err != nil {
					zap.L().Warn("Failed to store KYC status", zap.String("entity_id", status.EntityId), zap.Error(err))
				}
			}
		},
	}, opts)
	q.Start(ctx)
	return q
}

// Pools returns the shared pool catalog.
func (s *SyncService) Pools(ctx context.Context, opts fetch.Options) *fetch.Query[models.Pool] {
	q := fetch.NewQuery(s.orchestrator, fetch.Spec[models.Pool]{
		Key:   querycache.PoolsKey(),
		Owner: catalogScope,
		ReadLocal: func(ctx context.Context) []models.Pool {
			return s.store.Pools().GetAll(ctx)
		},
		FetchRemote: s.get(s.endpoints.Pools, nil, nil),
		Reconcile: func(ctx context.Context, rows []models.Pool) {
			s.engine.MergePools(ctx, rows)
		},
	}, opts)
	q.Start(ctx)
	return q
}

// PoolEnrollments is scoped by entity id rather than profile id.
func (s *SyncService) PoolEnrollments(ctx context.Context, entityId string, opts fetch.Options) *fetch.Query[models.PoolEnrollment] {
	q := fetch.NewQuery(s.orchestrator, fetch.Spec[models.PoolEnrollment]{
		Key:   querycache.PoolEnrollmentsKey(entityId),
		Owner: entityId,
		ReadLocal: func(ctx context.Context) []models.PoolEnrollment {
			return s.store.PoolEnrollments().GetAll(ctx, entityId)
		},
		FetchRemote: s.get(s.endpoints.PoolEnrollments, map[string]string{"entity_id": entityId}, nil),
		Reconcile: func(ctx context.Context, rows []models.PoolEnrollment) {
			s.engine.MergePoolEnrollments(ctx, rows, entityId)
		},
	}, opts)
	q.Start(ctx)
	return q
}
