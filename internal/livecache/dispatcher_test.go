package livecache

import (
	"context"
	"sync"
	"testing"
	"time"

	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/querycache"

	"github.com/shopspring/decimal"
)

type callbacks[F any] struct {
	next int
	fns  map[int]F
}

func (c *callbacks[F]) add(mu *sync.Mutex, fn F) func() {
	mu.Lock()
	defer mu.Unlock()
	if c.fns == nil {
		c.fns = make(map[int]F)
	}
	c.next++
	id := c.next
	c.fns[id] = fn
	return func() {
		mu.Lock()
		defer mu.Unlock()
		delete(c.fns, id)
	}
}

func (c *callbacks[F]) all(mu *sync.Mutex) []F {
	mu.Lock()
	defer mu.Unlock()
	var out []F
	for _, fn := range c.fns {
		out = append(out, fn)
	}
	return out
}

type fakePush struct {
	mu           sync.Mutex
	messages     callbacks[func(models.Message)]
	transactions callbacks[func(models.Transaction)]
	deletions    callbacks[func(string, string)]
	interactions callbacks[func(models.Interaction)]
	reconnects   callbacks[func()]
}

func (f *fakePush) OnMessage(fn func(models.Message)) func() { return f.messages.add(&f.mu, fn) }
func (f *fakePush) OnTransactionUpdate(fn func(models.Transaction)) func() {
	return f.transactions.add(&f.mu, fn)
}
func (f *fakePush) OnMessageDeleted(fn func(string, string)) func() { return f.deletions.add(&f.mu, fn) }
func (f *fakePush) OnInteractionUpdated(fn func(models.Interaction)) func() {
	return f.interactions.add(&f.mu, fn)
}
func (f *fakePush) OnReconnect(fn func()) func() { return f.reconnects.add(&f.mu, fn) }

func (f *fakePush) sendMessage(m models.Message) {
	for _, fn := range f.messages.all(&f.mu) {
		fn(m)
	}
}

func (f *fakePush) sendTransaction(tx models.Transaction) {
	for _, fn := range f.transactions.all(&f.mu) {
		fn(tx)
	}
}

func (f *fakePush) sendDeletion(id, interactionId string) {
	for _, fn := range f.deletions.all(&f.mu) {
		fn(id, interactionId)
	}
}

func (f *fakePush) reconnect() {
	for _, fn := range f.reconnects.all(&f.mu) {
		fn()
	}
}

type fakePersister struct {
	mu       sync.Mutex
	messages []models.Message
	txs      []models.Transaction
	deleted  []string
}

func (p *fakePersister) PersistMessage(_ context.Context, m models.Message, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, m)
}

func (p *fakePersister) PersistTransaction(_ context.Context, tx models.Transaction, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = append(p.txs, tx)
}

func (p *fakePersister) PersistInteraction(context.Context, models.Interaction, string) {}

func (p *fakePersister) PersistDeletedMessage(_ context.Context, id, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, id)
}

var owner = models.Identity{ProfileId: "profile-1", EntityId: "entity-1"}

func setupTestDispatcher(t *testing.T) (*Dispatcher, *querycache.Cache, *fakePush, *fakePersister, *events.Bus, func()) {
	push := &fakePush{}
	persister := &fakePersister{}
	bus := events.NewBus()
	cache := querycache.New()

	d := NewDispatcher(DispatcherConfig{Bus: bus, Push: push, Persister: persister})
	d.Initialize(cache, owner)

	return d, cache, push, persister, bus, d.Cleanup
}

func chatMessage(id, sender string, at time.Time) models.Message {
	return models.Message{Id: id, InteractionId: "i1", SenderEntityId: sender, Content: "hello " + id, CreatedAt: at}
}

func TestDispatcher_DuplicatePushIsNoOp(t *testing.T) {
	d, cache, push, persister, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	cache.Set(querycache.TimelineKey("profile-1", "i1", 50), []models.TimelineItem{})
	cache.Set(querycache.InteractionsKey("profile-1"), []models.Interaction{{Id: "i0"}, {Id: "i1"}})

	msg := chatMessage("m1", "entity-2", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	push.sendMessage(msg)
	push.sendMessage(msg)
	d.Wait()

	timeline, _ := querycache.GetAs[[]models.TimelineItem](cache, querycache.TimelineKey("profile-1", "i1", 50))
	if len(timeline) != 2 || timeline[0].Kind != models.TimelineDateSeparator || timeline[1].Id != "m1" {
		t.Errorf("Expected separator plus one message, got %+v", timeline)
	}

	list, _ := querycache.GetAs[[]models.Interaction](cache, querycache.InteractionsKey("profile-1"))
	if list[0].Id != "i1" || list[0].UnreadCount != 1 || list[0].LastMessageSnippet != "hello m1" {
		t.Errorf("Expected i1 on top with unread 1, got %+v", list[0])
	}

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.messages) != 1 {
		t.Errorf("Expected message persisted once, got %d", len(persister.messages))
	}
}

func TestDispatcher_UnreadOnlyForOtherSenders(t *testing.T) {
	tests := []struct {
		name   string
		sender string
		unread int
	}{
		{"from other entity", "entity-2", 1},
		{"from current entity", "entity-1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cache, push, _, _, cleanup := setupTestDispatcher(t)
			defer cleanup()

			cache.Set(querycache.InteractionsKey("profile-1"), []models.Interaction{{Id: "i1"}})
			push.sendMessage(chatMessage("m1", tt.sender, time.Now()))

			list, _ := querycache.GetAs[[]models.Interaction](cache, querycache.InteractionsKey("profile-1"))
			if list[0].UnreadCount != tt.unread {
				t.Errorf("Expected unread %d, got %d", tt.unread, list[0].UnreadCount)
			}
			if list[0].LastMessageSenderId != tt.sender {
				t.Errorf("Expected last sender %s, got %s", tt.sender, list[0].LastMessageSenderId)
			}
		})
	}
}

func TestDispatcher_UnknownInteractionInvalidatesList(t *testing.T) {
	_, cache, push, _, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	key := querycache.InteractionsKey("profile-1")
	cache.Set(key, []models.Interaction{{Id: "other"}})
	refetches := 0
	cache.OnInvalidate(key, func() { refetches++ })

	push.sendMessage(chatMessage("m1", "entity-2", time.Now()))

	if refetches != 1 {
		t.Errorf("Expected interaction list refetch, got %d", refetches)
	}
}

func TestDispatcher_PatchesEveryTimelineVariant(t *testing.T) {
	_, cache, push, _, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	day := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	older := models.MessageItem(chatMessage("old", "entity-2", day.Add(-48*time.Hour)))
	newest := models.MessageItem(chatMessage("m0", "entity-2", day))

	cache.Set(querycache.TimelineInfiniteKey("profile-1", "i1"), querycache.Pages[models.TimelineItem]{Pages: []querycache.Page[models.TimelineItem]{
		{Items: models.WithDateSeparators([]models.TimelineItem{newest}), NextCursor: "c2", HasMoreNext: true},
		{Items: models.WithDateSeparators([]models.TimelineItem{older}), NextCursor: "c3", HasMoreNext: true},
	}})
	cache.Set(querycache.MessagesKey("profile-1", "i1", 20), []models.Message{chatMessage("m0", "entity-2", day)})
	cache.Set(querycache.TimelineKey("profile-1", "i2", 50), []models.TimelineItem{})

	push.sendMessage(chatMessage("m1", "entity-2", day.Add(time.Hour)))

	pages, _ := querycache.GetAs[querycache.Pages[models.TimelineItem]](cache, querycache.TimelineInfiniteKey("profile-1", "i1"))
	first := pages.Pages[0].Items
	if len(first) != 3 || first[2].Id != "m1" {
		t.Errorf("Expected m1 appended to newest page, got %+v", first)
	}
	if len(pages.Pages[1].Items) != 2 || !pages.HasNextPage() {
		t.Errorf("Expected older page untouched, got %+v", pages.Pages[1])
	}

	messages, _ := querycache.GetAs[[]models.Message](cache, querycache.MessagesKey("profile-1", "i1", 20))
	if len(messages) != 2 || messages[1].Id != "m1" {
		t.Errorf("Expected m1 in message list, got %+v", messages)
	}

	other, _ := querycache.GetAs[[]models.TimelineItem](cache, querycache.TimelineKey("profile-1", "i2", 50))
	if len(other) != 0 {
		t.Errorf("Expected other interaction untouched, got %+v", other)
	}
}

func TestDispatcher_TransactionUpdate(t *testing.T) {
	d, cache, push, persister, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	pending := models.Transaction{Id: "tx1", InteractionId: "i1", Status: models.TransactionPending, ToEntityId: "entity-2", CreatedAt: created}

	cache.Set(querycache.TimelineKey("profile-1", "i1", 50), models.WithDateSeparators([]models.TimelineItem{models.TransactionItem(pending)}))
	cache.Set(querycache.TransactionsKey("profile-1"), []models.Transaction{{Id: "tx0"}, pending})
	cache.Set(querycache.BalancesKey("profile-1", "entity-1"), []models.Wallet{})
	cache.Set(querycache.BalancesKey("profile-1", "entity-9"), []models.Wallet{})

	var invalidated []string
	cache.OnInvalidate(querycache.BalancesKey("profile-1", "entity-1"), func() { invalidated = append(invalidated, "entity-1") })
	cache.OnInvalidate(querycache.BalancesKey("profile-1", "entity-9"), func() { invalidated = append(invalidated, "entity-9") })

	completed := pending
	completed.Status = models.TransactionCompleted
	push.sendTransaction(completed)
	push.sendTransaction(completed)
	d.Wait()

	timeline, _ := querycache.GetAs[[]models.TimelineItem](cache, querycache.TimelineKey("profile-1", "i1", 50))
	if len(timeline) != 2 || timeline[1].Transaction.Status != models.TransactionCompleted {
		t.Errorf("Expected transaction patched in place, got %+v", timeline)
	}

	list, _ := querycache.GetAs[[]models.Transaction](cache, querycache.TransactionsKey("profile-1"))
	if len(list) != 2 || list[1].Status != models.TransactionCompleted {
		t.Errorf("Expected transaction list patched by id, got %+v", list)
	}

	if len(invalidated) != 1 || invalidated[0] != "entity-1" {
		t.Errorf("Expected only entity-1 balances invalidated, got %v", invalidated)
	}

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.txs) != 1 {
		t.Errorf("Expected one persisted update, got %d", len(persister.txs))
	}
}

func TestDispatcher_StatusOnlyUpdateKeepsFields(t *testing.T) {
	d, cache, push, persister, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	stored := models.Transaction{
		Id:            "tx-1",
		InteractionId: "i1",
		FromAccountId: "acc-1",
		ToAccountId:   "acc-2",
		ToEntityId:    "entity-9",
		Amount:        decimal.NewFromInt(100),
		CurrencyId:    "USD",
		Status:        models.TransactionPending,
		CreatedAt:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	cache.Set(querycache.TimelineKey("profile-1", "i1", 50), models.WithDateSeparators([]models.TimelineItem{models.TransactionItem(stored)}))
	cache.Set(querycache.TransactionsKey("profile-1"), []models.Transaction{stored})
	cache.Set(querycache.BalancesKey("profile-1", "entity-9"), []models.Wallet{})

	refetches := 0
	cache.OnInvalidate(querycache.BalancesKey("profile-1", "entity-9"), func() { refetches++ })

	push.sendTransaction(models.Transaction{Id: "tx-1", Status: models.TransactionCompleted})
	d.Wait()

	list, _ := querycache.GetAs[[]models.Transaction](cache, querycache.TransactionsKey("profile-1"))
	if len(list) != 1 {
		t.Fatalf("Expected one cached transaction, got %+v", list)
	}
	got := list[0]
	if got.Status != models.TransactionCompleted {
		t.Errorf("Expected status completed, got %s", got.Status)
	}
	if !got.Amount.Equal(decimal.NewFromInt(100)) || got.CurrencyId != "USD" || got.InteractionId != "i1" {
		t.Errorf("Expected amount, currency and interaction kept, got %+v", got)
	}

	timeline, _ := querycache.GetAs[[]models.TimelineItem](cache, querycache.TimelineKey("profile-1", "i1", 50))
	if len(timeline) != 2 || timeline[1].Transaction == nil {
		t.Fatalf("Expected the transaction to stay in the timeline, got %+v", timeline)
	}
	if tx := timeline[1].Transaction; tx.Status != models.TransactionCompleted || tx.CurrencyId != "USD" || !tx.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected timeline item merged in place, got %+v", tx)
	}

	if refetches != 1 {
		t.Errorf("Expected recipient balances refetched from the cached copy, got %d", refetches)
	}

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.txs) != 1 {
		t.Errorf("Expected the update to be persisted, got %d", len(persister.txs))
	}
}

func TestDispatcher_PendingUpdateDoesNotInvalidateBalances(t *testing.T) {
	_, cache, push, _, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	refetches := 0
	cache.OnInvalidate(querycache.BalancesKey("profile-1", "entity-1"), func() { refetches++ })
	push.sendTransaction(models.Transaction{Id: "tx1", Status: models.TransactionPending})

	if refetches != 0 {
		t.Errorf("Expected no balance refetch for pending status, got %d", refetches)
	}
}

func TestDispatcher_MessageDeleted(t *testing.T) {
	d, cache, push, persister, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cache.Set(querycache.TimelineKey("profile-1", "i1", 50), models.WithDateSeparators([]models.TimelineItem{
		models.MessageItem(chatMessage("m1", "entity-2", at)),
		models.MessageItem(chatMessage("m2", "entity-2", at.Add(time.Minute))),
	}))
	cache.Set(querycache.MessagesKey("profile-1", "i1", 20), []models.Message{chatMessage("m1", "entity-2", at)})

	push.sendDeletion("m1", "i1")
	d.Wait()

	timeline, _ := querycache.GetAs[[]models.TimelineItem](cache, querycache.TimelineKey("profile-1", "i1", 50))
	if len(timeline) != 2 || timeline[1].Id != "m2" {
		t.Errorf("Expected only m2 left, got %+v", timeline)
	}
	messages, _ := querycache.GetAs[[]models.Message](cache, querycache.MessagesKey("profile-1", "i1", 20))
	if len(messages) != 0 {
		t.Errorf("Expected message list emptied, got %+v", messages)
	}

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.deleted) != 1 || persister.deleted[0] != "m1" {
		t.Errorf("Expected deletion persisted, got %v", persister.deleted)
	}
}

func TestDispatcher_ReconnectInvalidatesTransactionData(t *testing.T) {
	_, cache, push, _, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	var keys []string
	for _, key := range []querycache.Key{
		querycache.TransactionsKey("profile-1"),
		querycache.TimelineKey("profile-1", "i1", 50),
		querycache.BalancesKey("profile-1", "entity-1"),
		querycache.PoolsKey(),
	} {
		k := key
		cache.OnInvalidate(k, func() { keys = append(keys, k.String()) })
	}

	push.reconnect()

	if len(keys) != 3 {
		t.Errorf("Expected 3 transaction-related refetches, got %v", keys)
	}
}

func TestDispatcher_SubscribersFilteredByInteraction(t *testing.T) {
	d, _, push, _, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	var scoped, global []Notification
	d.Subscribe("i1", func(n Notification) { scoped = append(scoped, n) })
	unsubscribe := d.Subscribe("", func(n Notification) { global = append(global, n) })

	push.sendMessage(chatMessage("m1", "entity-2", time.Now()))
	other := chatMessage("m2", "entity-2", time.Now())
	other.InteractionId = "i2"
	push.sendMessage(other)

	if len(scoped) != 1 || scoped[0].Event != events.KindMessageNew {
		t.Errorf("Expected one scoped notification, got %+v", scoped)
	}
	if len(global) != 2 {
		t.Errorf("Expected two global notifications, got %d", len(global))
	}

	unsubscribe()
	push.sendMessage(chatMessage("m3", "entity-2", time.Now()))
	if len(global) != 2 {
		t.Errorf("Expected no notifications after unsubscribe, got %d", len(global))
	}
}

func TestDispatcher_BusEventsScopedToOwner(t *testing.T) {
	d, cache, _, persister, bus, cleanup := setupTestDispatcher(t)
	defer cleanup()

	cache.Set(querycache.TimelineKey("profile-1", "i1", 50), []models.TimelineItem{})

	bus.Publish(events.MessageNew{Message: chatMessage("m1", "entity-2", time.Now()), Owner: "profile-2"})
	bus.Publish(events.MessageNew{Message: chatMessage("m2", "entity-2", time.Now()), Owner: "profile-1"})
	d.Wait()

	timeline, _ := querycache.GetAs[[]models.TimelineItem](cache, querycache.TimelineKey("profile-1", "i1", 50))
	if len(timeline) != 2 || timeline[1].Id != "m2" {
		t.Errorf("Expected only the owner's message, got %+v", timeline)
	}

	persister.mu.Lock()
	defer persister.mu.Unlock()
	if len(persister.messages) != 0 {
		t.Errorf("Expected bus events not to be persisted again, got %d", len(persister.messages))
	}
}

func TestDispatcher_ForceRefresh(t *testing.T) {
	d, cache, _, _, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	refetches := 0
	cache.OnInvalidate(querycache.TimelineInfiniteKey("profile-1", "i1"), func() { refetches++ })
	cache.OnInvalidate(querycache.TimelineInfiniteKey("profile-1", "i2"), func() { refetches += 10 })

	if n := d.ForceRefresh("i1"); n != 1 || refetches != 1 {
		t.Errorf("Expected one timeline refetch, got n=%d refetches=%d", n, refetches)
	}
}

func TestDispatcher_InitializeOnceAndCleanup(t *testing.T) {
	push := &fakePush{}
	cache := querycache.New()
	d := NewDispatcher(DispatcherConfig{Push: push})

	d.Initialize(cache, owner)
	d.Initialize(cache, models.Identity{ProfileId: "profile-2", EntityId: "entity-2"})

	if n := len(push.messages.all(&push.mu)); n != 1 {
		t.Fatalf("Expected one message listener, got %d", n)
	}
	if _, identity := d.state(); identity.ProfileId != "profile-2" {
		t.Errorf("Expected identity to be updated, got %s", identity.ProfileId)
	}

	cache.Set(querycache.TimelineKey("profile-1", "i1", 50), []models.TimelineItem{})
	push.sendMessage(chatMessage("m1", "entity-3", time.Now()))

	d.Cleanup()
	if n := len(push.messages.all(&push.mu)); n != 0 {
		t.Errorf("Expected listeners detached, got %d", n)
	}

	d.Initialize(cache, owner)
	defer d.Cleanup()
	if n := len(push.messages.all(&push.mu)); n != 1 {
		t.Errorf("Expected listener re-registered, got %d", n)
	}

	cache.Set(querycache.TimelineKey("profile-1", "i1", 50), []models.TimelineItem{})
	push.sendMessage(chatMessage("m1", "entity-3", time.Now()))
	timeline, _ := querycache.GetAs[[]models.TimelineItem](cache, querycache.TimelineKey("profile-1", "i1", 50))
	if len(timeline) != 2 {
		t.Errorf("Expected seen set reset after cleanup, got %+v", timeline)
	}
}

func TestPruneSeenDropsOldestFirst(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{SeenCapacity: 3})
	for _, key := range []string{"a", "b", "c", "d", "e"} {
		d.markSeen(key)
	}

	d.pruneSeen()

	if len(d.seenOrder) != 3 || d.seenOrder[0] != "c" {
		t.Errorf("Expected c d e to remain, got %v", d.seenOrder)
	}
	if !d.markSeen("a") {
		t.Errorf("Expected pruned key to be accepted again")
	}
	if d.markSeen("e") {
		t.Errorf("Expected retained key to be rejected")
	}
}

func TestDispatcher_IdentitySwitchDropsPreviousProfile(t *testing.T) {
	d, cache, _, _, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	cache.Set(querycache.MessagesKey("profile-1", "i1", 20), []models.Message{{Id: "m1"}})
	cache.Set(querycache.InteractionsKey("profile-1"), []models.Interaction{{Id: "i1"}})
	cache.Set(querycache.PoolsKey(), []models.Pool{{Id: "p1"}})
	cache.Set(querycache.PoolEnrollmentsKey("entity-1"), []models.PoolEnrollment{})

	d.Initialize(cache, models.Identity{ProfileId: "profile-2", EntityId: "entity-2"})

	for _, key := range []querycache.Key{
		querycache.MessagesKey("profile-1", "i1", 20),
		querycache.InteractionsKey("profile-1"),
		querycache.PoolEnrollmentsKey("entity-1"),
	} {
		if _, ok := cache.Get(key); ok {
			t.Errorf("Expected %s to be dropped", key)
		}
	}
	if _, ok := cache.Get(querycache.PoolsKey()); !ok {
		t.Errorf("Expected the shared pool catalog to survive")
	}
}

func TestDispatcher_DataUpdatedDropsDeletedInteractions(t *testing.T) {
	_, cache, _, _, bus, cleanup := setupTestDispatcher(t)
	defer cleanup()

	cache.Set(querycache.InteractionsKey("profile-1"), []models.Interaction{{Id: "a"}, {Id: "b"}})
	cache.Set(querycache.TimelineKey("profile-1", "a", 50), []models.TimelineItem{})
	cache.Set(querycache.InteractionsKey("profile-2"), []models.Interaction{{Id: "a"}})

	bus.Publish(events.DataUpdated{RecordKind: models.KindInteractions, Owner: "profile-1", DeletedIds: []string{"a"}})
	bus.Publish(events.DataUpdated{RecordKind: models.KindInteractions, Owner: "profile-2", DeletedIds: []string{"a"}})

	list, _ := querycache.GetAs[[]models.Interaction](cache, querycache.InteractionsKey("profile-1"))
	if len(list) != 1 || list[0].Id != "b" {
		t.Errorf("Expected only b to remain, got %+v", list)
	}
	if _, ok := cache.Get(querycache.TimelineKey("profile-1", "a", 50)); ok {
		t.Errorf("Expected the timeline of a to be dropped")
	}
	other, _ := querycache.GetAs[[]models.Interaction](cache, querycache.InteractionsKey("profile-2"))
	if len(other) != 1 {
		t.Errorf("Expected another profile's list untouched, got %+v", other)
	}
}
