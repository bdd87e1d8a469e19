package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wallet-sync-go/internal/database"
	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/fetch"
	"wallet-sync-go/internal/kv"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/network"
	"wallet-sync-go/internal/querycache"
	"wallet-sync-go/internal/reconcile"
	"wallet-sync-go/internal/remote"

	"github.com/shopspring/decimal"
)

var fastOptions = fetch.Options{Debounce: time.Millisecond, RetryBaseDelay: time.Millisecond}

// fakeAPI serves canned bodies by path and records every request.
type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]string
	requests  []*http.Request
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r)
	body, ok := f.responses[r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeAPI) last() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type testEnv struct {
	service     *SyncService
	local       *database.Service
	checkpoints *kv.MemoryStore
	network     *network.Status
	api         *fakeAPI
}

func setupTestService(t *testing.T, online bool, responses map[string]string) (*testEnv, func()) {
	ctx := context.Background()
	local, err := database.NewService(ctx, models.DatabaseConfig{
		Path:        ":memory:",
		PingTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	fake := &fakeAPI{responses: responses}
	server := httptest.NewServer(fake)

	checkpoints := kv.NewMemoryStore()
	engine := reconcile.NewEngine(local, checkpoints, events.NewBus())
	status := network.NewStatus(online)
	orchestrator := fetch.NewOrchestrator(querycache.New(), status, models.SyncConfig{})
	client := remote.NewClientWithHTTP(server.URL, "token", server.Client())

	env := &testEnv{
		service:     NewSyncService(local, engine, client, orchestrator, models.DefaultEndpoints()),
		local:       local,
		checkpoints: checkpoints,
		network:     status,
		api:         fake,
	}
	cleanup := func() {
		server.Close()
		local.Close()
	}
	return env, cleanup
}

func waitSettled(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for query to settle")
	}
}

var profile123 = models.Identity{ProfileId: "profile-123", EntityId: "entity-123"}

func TestBalances_FetchesAndStoresForOwner(t *testing.T) {
	env, cleanup := setupTestService(t, true, map[string]string{
		"/entities/entity-123/wallets": `{"data":[{"id":"w1","account_id":"acct-1","currency":{"id":"USD","code":"USD"},"balance":"1500","is_active":true}]}`,
	})
	defer cleanup()
	ctx := context.Background()

	if wallets := env.local.Wallets().GetAll(ctx, "profile-123"); len(wallets) != 0 {
		t.Fatalf("Expected no local wallets, got %d", len(wallets))
	}

	q := env.service.Balances(ctx, profile123, "entity-123", fastOptions)
	defer q.Close()
	waitSettled(t, q.Settled())

	state := q.State()
	if state.IsError {
		t.Fatalf("Expected success, got %v", state.Err)
	}
	if len(state.Data) != 1 || !state.Data[0].Balance.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("Expected one wallet with balance 1500, got %+v", state.Data)
	}

	stored := env.local.Wallets().GetAll(ctx, "profile-123")
	if len(stored) != 1 || stored[0].Id != "w1" || !stored[0].IsSynced {
		t.Errorf("Expected synced wallet w1 stored for profile-123, got %+v", stored)
	}
	if other := env.local.Wallets().GetAll(ctx, "profile-999"); len(other) != 0 {
		t.Errorf("Expected nothing under another profile, got %d", len(other))
	}

	calls := env.api.count()
	empty := env.service.Balances(ctx, profile123, "", fastOptions)
	defer empty.Close()
	waitSettled(t, empty.Settled())

	if data := empty.State().Data; data == nil || len(data) != 0 {
		t.Errorf("Expected empty non-nil data, got %+v", data)
	}
	time.Sleep(20 * time.Millisecond)
	if env.api.count() != calls {
		t.Errorf("Expected no remote call for an empty entity id")
	}
}

func TestBalances_OfflineServesLocalOnly(t *testing.T) {
	env, cleanup := setupTestService(t, false, nil)
	defer cleanup()
	ctx := context.Background()

	env.local.Wallets().Upsert(ctx, models.Wallet{
		Id:        "w1",
		AccountId: "acct-1",
		Currency:  models.Currency{Id: "USD", Code: "USD"},
		Balance:   decimal.NewFromInt(20),
	}, "profile-123")

	q := env.service.Balances(ctx, profile123, "entity-123", fastOptions)
	defer q.Close()
	waitSettled(t, q.Settled())

	state := q.State()
	if !state.IsOffline || len(state.Data) != 1 {
		t.Errorf("Expected offline state with the local wallet, got %+v", state)
	}
	if n := env.api.count(); n != 0 {
		t.Errorf("Expected no remote calls offline, got %d", n)
	}
}

func TestMessages_FillsInteractionAndLimit(t *testing.T) {
	env, cleanup := setupTestService(t, true, map[string]string{
		"/interactions/i1/messages": `{"items":[{"id":"m1","sender_entity_id":"entity-2","content":"hi","created_at":"2025-06-01T10:00:00Z"}]}`,
	})
	defer cleanup()
	ctx := context.Background()

	q := env.service.Messages(ctx, profile123, "i1", 20, fastOptions)
	defer q.Close()
	waitSettled(t, q.Settled())

	if got := env.api.last().URL.Query().Get("limit"); got != "20" {
		t.Errorf("Expected limit=20, got %q", got)
	}
	stored := env.local.Messages().GetByInteraction(ctx, "i1", "profile-123", 20)
	if len(stored) != 1 || stored[0].InteractionId != "i1" {
		t.Errorf("Expected m1 stored under i1, got %+v", stored)
	}
	if _, ok := env.service.Cache().Get(querycache.MessagesKey("profile-123", "i1", 20)); !ok {
		t.Errorf("Expected messages cached under their key")
	}
}

func TestTimeline_PagesAndReconciles(t *testing.T) {
	env, cleanup := setupTestService(t, true, map[string]string{
		"/interactions/i1/timeline": `{"items":[
			{"kind":"message","id":"m1","timestamp":"2025-06-01T10:00:00Z","message":{"id":"m1","sender_entity_id":"entity-2","content":"hi","created_at":"2025-06-01T10:00:00Z"}},
			{"kind":"transaction","id":"t1","timestamp":"2025-06-01T11:00:00Z","transaction":{"id":"t1","from_account_id":"a","to_account_id":"b","amount":"5","currency_id":"USD","status":"completed","created_at":"2025-06-01T11:00:00Z"}}
		],"next_cursor":"c2","has_more_next":true}`,
	})
	defer cleanup()
	ctx := context.Background()

	q := env.service.Timeline(ctx, profile123, "i1", fastOptions)
	defer q.Close()
	waitSettled(t, q.Settled())

	state := q.State()
	if !state.HasNextPage {
		t.Errorf("Expected another page")
	}
	// One separator plus two content items.
	if len(state.Data) != 3 {
		t.Errorf("Expected 3 timeline rows, got %+v", state.Data)
	}
	if msgs := env.local.Messages().GetByInteraction(ctx, "i1", "profile-123", 10); len(msgs) != 1 {
		t.Errorf("Expected timeline message to be stored, got %d", len(msgs))
	}
	if txs := env.local.Transactions().GetByInteraction(ctx, "i1", "profile-123"); len(txs) != 1 {
		t.Errorf("Expected timeline transaction to be stored, got %d", len(txs))
	}

	if err := q.FetchNextPage(ctx); err != nil {
		t.Fatalf("FetchNextPage failed: %v", err)
	}
	if got := env.api.last().URL.Query().Get("cursor"); got != "c2" {
		t.Errorf("Expected cursor c2, got %q", got)
	}
}

func TestMessagesAndTimeline_IsolatedByProfile(t *testing.T) {
	env, cleanup := setupTestService(t, false, nil)
	defer cleanup()
	ctx := context.Background()
	profileA := models.Identity{ProfileId: "profile-A", EntityId: "entity-A"}
	profileB := models.Identity{ProfileId: "profile-B", EntityId: "entity-B"}
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	if err := env.local.Messages().Upsert(ctx, models.Message{
		Id: "secret-a", InteractionId: "chat-1", SenderEntityId: "entity-A", Content: "A only", CreatedAt: at,
	}, "profile-A"); err != nil {
		t.Fatalf("Failed to store message: %v", err)
	}
	if err := env.local.Transactions().Upsert(ctx, models.Transaction{
		Id: "tx-a", InteractionId: "chat-1", FromAccountId: "a", ToAccountId: "b",
		Amount: decimal.NewFromInt(5), CurrencyId: "USD", Status: models.TransactionCompleted, CreatedAt: at,
	}, "profile-A"); err != nil {
		t.Fatalf("Failed to store transaction: %v", err)
	}

	messagesA := env.service.Messages(ctx, profileA, "chat-1", 20, fastOptions)
	waitSettled(t, messagesA.Settled())
	if len(messagesA.State().Data) != 1 {
		t.Fatalf("Expected profile-A to see its message, got %+v", messagesA.State().Data)
	}
	messagesA.Close()

	timelineA := env.service.Timeline(ctx, profileA, "chat-1", fastOptions)
	waitSettled(t, timelineA.Settled())
	if len(timelineA.State().Data) == 0 {
		t.Fatalf("Expected profile-A to see its timeline")
	}
	timelineA.Close()

	messagesB := env.service.Messages(ctx, profileB, "chat-1", 20, fastOptions)
	defer messagesB.Close()
	waitSettled(t, messagesB.Settled())
	if data := messagesB.State().Data; len(data) != 0 {
		t.Errorf("Expected no messages for profile-B, got %+v", data)
	}

	timelineB := env.service.Timeline(ctx, profileB, "chat-1", fastOptions)
	defer timelineB.Close()
	waitSettled(t, timelineB.Settled())
	if data := timelineB.State().Data; len(data) != 0 {
		t.Errorf("Expected an empty timeline for profile-B, got %+v", data)
	}
}

func TestSyncDeletions_AppliesBatchAndAdvancesCheckpoint(t *testing.T) {
	env, cleanup := setupTestService(t, true, map[string]string{
		"/interactions/deleted": `{"deletedIds":["a","b"],"syncTimestamp":"T"}`,
	})
	defer cleanup()
	ctx := context.Background()
	identity := models.Identity{ProfileId: "profile-X"}

	for _, id := range []string{"a", "b", "c"} {
		env.local.Interactions().Upsert(ctx, models.Interaction{
			Id:      id,
			Members: []models.InteractionMember{{EntityId: "entity-1"}},
		}, "profile-X")
	}
	cache := env.service.Cache()
	cache.Set(querycache.InteractionsKey("profile-X"), []models.Interaction{{Id: "a"}, {Id: "c"}})
	cache.Set(querycache.TimelineKey("profile-X", "a", 50), []models.TimelineItem{})

	batch, err := env.service.SyncDeletions(ctx, identity)
	if err != nil {
		t.Fatalf("SyncDeletions failed: %v", err)
	}
	if len(batch.DeletedIds) != 2 {
		t.Errorf("Expected 2 deleted ids, got %v", batch.DeletedIds)
	}
	if q := env.api.last().URL.Query(); q.Has("since") {
		t.Errorf("Expected no since parameter on the first sync, got %q", q.Get("since"))
	}

	remaining := env.local.Interactions().GetAll(ctx, "profile-X")
	if len(remaining) != 1 || remaining[0].Id != "c" {
		t.Errorf("Expected only c to remain, got %+v", remaining)
	}
	if members := env.local.Interactions().GetMembers(ctx, "a", "profile-X"); len(members) != 0 {
		t.Errorf("Expected members of a to be removed, got %d", len(members))
	}
	if value, _ := env.checkpoints.Get(ctx, "sync:interactions:last_sync:profile-X"); value != "T" {
		t.Errorf("Expected checkpoint T, got %q", value)
	}

	cached, _ := querycache.GetAs[[]models.Interaction](cache, querycache.InteractionsKey("profile-X"))
	if len(cached) != 1 || cached[0].Id != "c" {
		t.Errorf("Expected cached list without a, got %+v", cached)
	}
	if _, ok := cache.Get(querycache.TimelineKey("profile-X", "a", 50)); ok {
		t.Errorf("Expected timeline of a to be dropped")
	}

	if _, err := env.service.SyncDeletions(ctx, identity); err != nil {
		t.Fatalf("Second SyncDeletions failed: %v", err)
	}
	if got := env.api.last().URL.Query().Get("since"); got != "T" {
		t.Errorf("Expected since=T on the next sync, got %q", got)
	}
}

func TestSyncDeletions_OfflineIsNoop(t *testing.T) {
	env, cleanup := setupTestService(t, false, nil)
	defer cleanup()

	if _, err := env.service.SyncDeletions(context.Background(), profile123); err != nil {
		t.Errorf("Expected offline sync to be a no-op, got %v", err)
	}
	if n := env.api.count(); n != 0 {
		t.Errorf("Expected no remote calls, got %d", n)
	}
}

func TestHealthCheck(t *testing.T) {
	env, cleanup := setupTestService(t, true, map[string]string{"/health": `{"status":"ok"}`})
	defer cleanup()

	if err := env.service.HealthCheck(context.Background()); err != nil {
		t.Errorf("Expected healthy service, got %v", err)
	}

	env.api.mu.Lock()
	delete(env.api.responses, "/health")
	env.api.mu.Unlock()
	if err := env.service.HealthCheck(context.Background()); err == nil {
		t.Errorf("Expected an error when the remote health endpoint fails")
	}

	env.network.SetOnline(false)
	if err := env.service.HealthCheck(context.Background()); err != nil {
		t.Errorf("Expected offline health check to pass on the local store, got %v", err)
	}
}
