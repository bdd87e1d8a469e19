package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/network"
	"wallet-sync-go/internal/querycache"
	"wallet-sync-go/internal/remote"
)

var fastOptions = Options{Debounce: time.Millisecond, RetryBaseDelay: time.Millisecond}

func setupTestOrchestrator(online bool) (*Orchestrator, *network.Status) {
	status := network.NewStatus(online)
	return NewOrchestrator(querycache.New(), status, models.SyncConfig{}), status
}

func waitSettled(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for query to settle")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for condition")
}

func localWallets(ids ...string) func(context.Context) []models.Wallet {
	return func(context.Context) []models.Wallet {
		var out []models.Wallet
		for _, id := range ids {
			out = append(out, models.Wallet{Id: id})
		}
		return out
	}
}

func TestQuery_ServesLocalDataBeforeRemote(t *testing.T) {
	o, _ := setupTestOrchestrator(true)
	release := make(chan struct{})

	q := NewQuery(o, Spec[models.Wallet]{
		Key:       querycache.BalancesKey("profile-1", "entity-1"),
		Owner:     "profile-1",
		ReadLocal: localWallets("w-local"),
		FetchRemote: func(ctx context.Context) (json.RawMessage, error) {
			<-release
			return json.RawMessage(`{"data":{"items":[{"id":"w-remote"}]}}`), nil
		},
	}, fastOptions)
	defer q.Close()

	q.Start(context.Background())

	state := q.State()
	if state.IsLoading {
		t.Errorf("Expected IsLoading false once local data resolved")
	}
	if len(state.Data) != 1 || state.Data[0].Id != "w-local" {
		t.Errorf("Expected local wallet immediately, got %+v", state.Data)
	}

	close(release)
	waitSettled(t, q.Settled())

	state = q.State()
	if len(state.Data) != 2 || state.Data[0].Id != "w-remote" || state.Data[1].Id != "w-local" {
		t.Errorf("Expected remote merged ahead of local, got %+v", state.Data)
	}
}

func TestQuery_OfflineNeverCallsRemote(t *testing.T) {
	o, _ := setupTestOrchestrator(false)
	var calls int32

	q := NewQuery(o, Spec[models.Wallet]{
		Key:       querycache.BalancesKey("profile-1", "entity-1"),
		Owner:     "profile-1",
		ReadLocal: localWallets("w1"),
		FetchRemote: func(context.Context) (json.RawMessage, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		},
	}, fastOptions)
	defer q.Close()

	q.Start(context.Background())
	waitSettled(t, q.Settled())
	time.Sleep(20 * time.Millisecond)

	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("Expected no remote calls while offline, got %d", calls)
	}
	state := q.State()
	if !state.IsOffline || len(state.Data) != 1 || state.IsError {
		t.Errorf("Expected offline state with local data, got %+v", state)
	}

	if err := q.Refetch(context.Background()); err != nil {
		t.Errorf("Expected offline refetch to be a no-op, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("Expected refetch to skip the remote while offline")
	}
}

func TestQuery_DisabledDoesNothing(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		opts  Options
	}{
		{"empty owner", "", fastOptions},
		{"explicitly disabled", "profile-1", Options{Disabled: true, Debounce: time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := setupTestOrchestrator(true)
			var reads, calls int32

			q := NewQuery(o, Spec[models.Wallet]{
				Key:   querycache.BalancesKey("profile-1", "entity-1"),
				Owner: tt.owner,
				ReadLocal: func(context.Context) []models.Wallet {
					atomic.AddInt32(&reads, 1)
					return nil
				},
				FetchRemote: func(context.Context) (json.RawMessage, error) {
					atomic.AddInt32(&calls, 1)
					return nil, nil
				},
			}, tt.opts)
			defer q.Close()

			q.Start(context.Background())
			waitSettled(t, q.Settled())
			time.Sleep(20 * time.Millisecond)

			if reads != 0 || calls != 0 {
				t.Errorf("Expected no reads and no remote calls, got %d reads %d calls", reads, calls)
			}
			state := q.State()
			if state.Data == nil || len(state.Data) != 0 || state.IsLoading {
				t.Errorf("Expected idle empty state, got %+v", state)
			}
		})
	}
}

func TestQuery_RemoteFailureKeepsLocalData(t *testing.T) {
	o, _ := setupTestOrchestrator(true)

	q := NewQuery(o, Spec[models.Wallet]{
		Key:       querycache.BalancesKey("profile-1", "entity-1"),
		Owner:     "profile-1",
		ReadLocal: localWallets("w1"),
		FetchRemote: func(context.Context) (json.RawMessage, error) {
			return nil, &remote.HTTPError{StatusCode: 500}
		},
	}, fastOptions)
	defer q.Close()

	q.Start(context.Background())
	waitSettled(t, q.Settled())

	state := q.State()
	if state.IsError {
		t.Errorf("Expected no error state while local data exists, got %v", state.Err)
	}
	if len(state.Data) != 1 {
		t.Errorf("Expected local data to be kept, got %+v", state.Data)
	}
}

func TestQuery_ErrorWithoutLocalData(t *testing.T) {
	o, _ := setupTestOrchestrator(true)
	var calls int32

	q := NewQuery(o, Spec[models.Wallet]{
		Key:       querycache.BalancesKey("profile-1", "entity-1"),
		Owner:     "profile-1",
		ReadLocal: localWallets(),
		FetchRemote: func(context.Context) (json.RawMessage, error) {
			atomic.AddInt32(&calls, 1)
			return nil, &remote.HTTPError{StatusCode: 404}
		},
	}, fastOptions)
	defer q.Close()

	q.Start(context.Background())
	waitSettled(t, q.Settled())

	state := q.State()
	if !state.IsError || remote.StatusCode(state.Err) != 404 {
		t.Errorf("Expected 404 error state, got %+v", state)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("Expected client errors not to be retried, got %d calls", calls)
	}
}

func TestQuery_RetriesTransientErrors(t *testing.T) {
	o, _ := setupTestOrchestrator(true)
	var calls int32
	var reconciled []models.Wallet

	q := NewQuery(o, Spec[models.Wallet]{
		Key:       querycache.BalancesKey("profile-1", "entity-1"),
		Owner:     "profile-1",
		ReadLocal: localWallets(),
		FetchRemote: func(context.Context) (json.RawMessage, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nil, errors.New("connection reset")
			}
			return json.RawMessage(`[{"id":"w1"}]`), nil
		},
		Reconcile: func(_ context.Context, rows []models.Wallet) { reconciled = rows },
	}, fastOptions)
	defer q.Close()

	q.Start(context.Background())
	waitSettled(t, q.Settled())

	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	if len(reconciled) != 1 || reconciled[0].Id != "w1" {
		t.Errorf("Expected fetched rows to be reconciled, got %+v", reconciled)
	}
	if state := q.State(); state.IsError || len(state.Data) != 1 {
		t.Errorf("Expected successful state, got %+v", state)
	}
}

func TestQuery_CloseBeforeDebounceSkipsFetch(t *testing.T) {
	o, _ := setupTestOrchestrator(true)
	var calls int32

	q := NewQuery(o, Spec[models.Wallet]{
		Key:       querycache.BalancesKey("profile-1", "entity-1"),
		Owner:     "profile-1",
		ReadLocal: localWallets(),
		FetchRemote: func(context.Context) (json.RawMessage, error) {
			atomic.AddInt32(&calls, 1)
			return json.RawMessage(`[]`), nil
		},
	}, Options{Debounce: 30 * time.Millisecond})

	q.Start(context.Background())
	q.Close()
	time.Sleep(60 * time.Millisecond)

	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("Expected closed query not to fetch, got %d calls", calls)
	}
}

func TestQuery_CachePatchesAndInvalidation(t *testing.T) {
	o, _ := setupTestOrchestrator(true)
	var calls int32
	key := querycache.BalancesKey("profile-1", "entity-1")

	q := NewQuery(o, Spec[models.Wallet]{
		Key:       key,
		Owner:     "profile-1",
		ReadLocal: localWallets(),
		FetchRemote: func(context.Context) (json.RawMessage, error) {
			atomic.AddInt32(&calls, 1)
			return json.RawMessage(`[{"id":"w1"}]`), nil
		},
	}, fastOptions)
	defer q.Close()

	q.Start(context.Background())
	waitSettled(t, q.Settled())

	o.Cache().Set(key, []models.Wallet{{Id: "w1"}, {Id: "w2"}})
	if len(q.State().Data) != 2 {
		t.Errorf("Expected cache patch to reach query data, got %+v", q.State().Data)
	}

	if n := o.Cache().Invalidate(querycache.MatchBalances()); n != 1 {
		t.Errorf("Expected 1 refetch triggered, got %d", n)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 2 })
}

func TestQuery_UnrecognizedShapeIsEmpty(t *testing.T) {
	o, _ := setupTestOrchestrator(true)

	q := NewQuery(o, Spec[models.Wallet]{
		Key:       querycache.BalancesKey("profile-1", "entity-1"),
		Owner:     "profile-1",
		ReadLocal: localWallets(),
		FetchRemote: func(context.Context) (json.RawMessage, error) {
			return json.RawMessage(`{"unexpected":true}`), nil
		},
	}, fastOptions)
	defer q.Close()

	q.Start(context.Background())
	waitSettled(t, q.Settled())

	if state := q.State(); state.IsError || len(state.Data) != 0 {
		t.Errorf("Expected empty successful state, got %+v", state)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		err      error
		offline  bool
		want     bool
	}{
		{"transient first failure", 1, errors.New("timeout"), false, true},
		{"transient at limit", 2, errors.New("timeout"), false, true},
		{"transient past limit", 3, errors.New("timeout"), false, false},
		{"server error", 1, &remote.HTTPError{StatusCode: 503}, false, true},
		{"client error", 1, &remote.HTTPError{StatusCode: 400}, false, false},
		{"canceled", 1, context.Canceled, false, false},
		{"offline", 1, errors.New("timeout"), true, false},
		{"no error", 1, nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.failures, DefaultMaxRetries, tt.err, tt.offline); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRetryDelayGrows(t *testing.T) {
	base := 10 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		d := RetryDelay(attempt, base)
		floor := base << attempt
		if d < floor || d >= floor+base {
			t.Errorf("Attempt %d: expected delay in [%v, %v), got %v", attempt, floor, floor+base, d)
		}
	}
	if d := RetryDelay(40, base); d > maxRetryDelay+base {
		t.Errorf("Expected delay to be capped, got %v", d)
	}
}
