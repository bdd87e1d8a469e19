package fetch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/querycache"
	"wallet-sync-go/internal/remote"

	"go.uber.org/zap"
)

// Spec describes one local-first resource.
type Spec[T models.Record] struct {
	Key   querycache.Key
	Owner string
	// ReadLocal returns the owner's stored rows. It must not fail; stores
	// report trouble as empty results.
	ReadLocal   func(ctx context.Context) []T
	FetchRemote func(ctx context.Context) (json.RawMessage, error)
	// Decode defaults to remote.DecodeList.
	Decode func(raw json.RawMessage) []T
	// Reconcile writes fetched rows to the store.
	Reconcile func(ctx context.Context, rows []T)
}

type State[T any] struct {
	Data       []T
	IsLoading  bool
	IsFetching bool
	IsError    bool
	Err        error
	IsOffline  bool
}

type Query[T models.Record] struct {
	o    *Orchestrator
	spec Spec[T]
	opts Options

	mu          sync.Mutex
	state       State[T]
	ctx         context.Context
	cancel      context.CancelFunc
	generation  uint64
	timer       *time.Timer
	settled     chan struct{}
	started     bool
	closed      bool
	nextSubId   uint64
	subscribers map[uint64]func(State[T])
	detach      []func()
}

func NewQuery[T models.Record](o *Orchestrator, spec Spec[T], opts Options) *Query[T] {
	if spec.Decode == nil {
		spec.Decode = remote.DecodeList[T]
	}
	return &Query[T]{
		o:           o,
		spec:        spec,
		opts:        o.resolve(opts),
		state:       State[T]{Data: []T{}, IsLoading: true},
		settled:     make(chan struct{}),
		subscribers: make(map[uint64]func(State[T])),
	}
}

func (q *Query[T]) enabled() bool {
	return !q.opts.Disabled && q.spec.Owner != "" && len(q.spec.Key) > 0 && q.spec.ReadLocal != nil
}

// Start reads the store, publishes the local rows and, when online, schedules
// the background remote fetch.
func (q *Query[T]) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	if !q.enabled() {
		q.finish(func(s *State[T]) { s.IsLoading = false })
		return
	}

	cache := q.o.cache
	q.mu.Lock()
	q.detach = append(q.detach,
		cache.Watch(q.spec.Key, q.onCacheChange),
		cache.OnInvalidate(q.spec.Key, func() {
			go func() {
				if err := q.Refetch(q.ctx); err != nil {
					zap.L().Debug("Refetch after invalidation failed", zap.String("key", q.spec.Key.String()), zap.Error(err))
				}
			}()
		}),
	)
	q.mu.Unlock()

	local := q.spec.ReadLocal(q.ctx)
	if local == nil {
		local = []T{}
	}
	data := local
	querycache.UpdateAs(cache, q.spec.Key, func(prev []T, ok bool) ([]T, bool) {
		if ok {
			data = prev
			return prev, false
		}
		return local, true
	})

	offline := !q.o.IsOnline()
	q.update(func(s *State[T]) {
		s.Data = data
		s.IsLoading = false
		s.IsOffline = offline
	})

	if offline {
		zap.L().Debug("Offline, serving local data only",
			zap.String("key", q.spec.Key.String()),
			zap.Int("count", len(data)))
		q.finish(nil)
		return
	}

	q.mu.Lock()
	q.generation++
	gen := q.generation
	q.timer = time.AfterFunc(q.opts.Debounce, func() { q.fetch(gen) })
	q.mu.Unlock()
}

// Refetch fetches the remote immediately and waits for the result.
func (q *Query[T]) Refetch(ctx context.Context) error {
	if !q.enabled() {
		return nil
	}
	q.mu.Lock()
	if q.closed || !q.started {
		q.mu.Unlock()
		return nil
	}
	if q.timer != nil {
		q.timer.Stop()
	}
	q.generation++
	gen := q.generation
	select {
	case <-q.settled:
		q.settled = make(chan struct{})
	default:
	}
	q.mu.Unlock()

	if !q.o.IsOnline() {
		q.finish(func(s *State[T]) { s.IsOffline = true })
		return nil
	}
	return q.fetchWith(ctx, gen)
}

func (q *Query[T]) fetch(gen uint64) {
	if err := q.fetchWith(q.ctx, gen); err != nil {
		zap.L().Debug("Background fetch failed", zap.String("key", q.spec.Key.String()), zap.Error(err))
	}
}

func (q *Query[T]) fetchWith(ctx context.Context, gen uint64) error {
	if !q.o.IsOnline() {
		q.finish(func(s *State[T]) { s.IsOffline = true })
		return nil
	}
	q.update(func(s *State[T]) {
		s.IsFetching = true
		s.IsOffline = false
	})

	id := q.spec.Key.String() + "|" + q.spec.Owner
	raw, err := q.o.fetchShared(ctx, id, q.opts, q.spec.FetchRemote)

	if q.stale(gen) {
		zap.L().Debug("Dropping stale response", zap.String("key", id))
		return nil
	}

	if err != nil {
		q.finish(func(s *State[T]) {
			s.IsFetching = false
			if len(s.Data) > 0 {
				return
			}
			s.IsError = true
			s.Err = err
		})
		zap.L().Warn("Remote fetch failed, keeping local data",
			zap.String("key", id),
			zap.Error(err))
		return err
	}

	rows := q.spec.Decode(raw)
	if q.spec.Reconcile != nil && len(rows) > 0 {
		q.spec.Reconcile(ctx, rows)
	}

	var merged []T
	querycache.UpdateAs(q.o.cache, q.spec.Key, func(prev []T, _ bool) ([]T, bool) {
		merged = mergeById(rows, prev)
		return merged, true
	})
	q.finish(func(s *State[T]) {
		s.Data = merged
		s.IsFetching = false
		s.IsError = false
		s.Err = nil
	})
	return nil
}

func (q *Query[T]) onCacheChange(data any) {
	rows, ok := data.([]T)
	if !ok {
		return
	}
	q.update(func(s *State[T]) { s.Data = rows })
}

func (q *Query[T]) stale(gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed || gen != q.generation
}

func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Settled is closed once the current load cycle has finished: after the local
// read when offline or disabled, otherwise after the remote attempt.
func (q *Query[T]) Settled() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.settled
}

// Subscribe calls fn with every new state.
func (q *Query[T]) Subscribe(fn func(State[T])) func() {
	q.mu.Lock()
	q.nextSubId++
	id := q.nextSubId
	q.subscribers[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.subscribers, id)
		q.mu.Unlock()
	}
}

// Close cancels any pending fetch and detaches from the cache. Responses that
// arrive afterwards are dropped.
func (q *Query[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
	}
	if q.cancel != nil {
		q.cancel()
	}
	detach := q.detach
	q.detach = nil
	q.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
}

func (q *Query[T]) update(fn func(*State[T])) {
	q.mu.Lock()
	fn(&q.state)
	if q.state.Data == nil {
		q.state.Data = []T{}
	}
	state := q.state
	subs := make([]func(State[T]), 0, len(q.subscribers))
	for _, sub := range q.subscribers {
		subs = append(subs, sub)
	}
	q.mu.Unlock()

	for _, sub := range subs {
		sub(state)
	}
}

// finish applies fn and closes the settled channel of the current cycle.
func (q *Query[T]) finish(fn func(*State[T])) {
	if fn != nil {
		q.update(fn)
	}
	q.mu.Lock()
	select {
	case <-q.settled:
	default:
		close(q.settled)
	}
	q.mu.Unlock()
}
