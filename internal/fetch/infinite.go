package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/querycache"
	"wallet-sync-go/internal/remote"

	"go.uber.org/zap"
)

var ErrNoNextPage = errors.New("no next page")

// PageSpec describes a cursor-paginated resource. FetchPage receives "" for
// the first page.
type PageSpec[T models.Record] struct {
	Key       querycache.Key
	Owner     string
	ReadLocal func(ctx context.Context) []T
	FetchPage func(ctx context.Context, cursor string) (json.RawMessage, error)
	// Decode defaults to remote.DecodePage.
	Decode    func(raw json.RawMessage) (items []T, nextCursor string, hasMore bool)
	Reconcile func(ctx context.Context, rows []T)
}

type PagesState[T any] struct {
	Pages              querycache.Pages[T]
	Data               []T
	HasNextPage        bool
	IsLoading          bool
	IsFetching         bool
	IsFetchingNextPage bool
	IsError            bool
	Err                error
	IsOffline          bool
}

type InfiniteQuery[T models.Record] struct {
	o    *Orchestrator
	spec PageSpec[T]
	opts Options

	mu         sync.Mutex
	state      PagesState[T]
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	timer      *time.Timer
	settled    chan struct{}
	started    bool
	closed     bool
	detach     []func()
}

func NewInfiniteQuery[T models.Record](o *Orchestrator, spec PageSpec[T], opts Options) *InfiniteQuery[T] {
	if spec.Decode == nil {
		spec.Decode = remote.DecodePage[T]
	}
	return &InfiniteQuery[T]{
		o:       o,
		spec:    spec,
		opts:    o.resolve(opts),
		state:   PagesState[T]{Data: []T{}, IsLoading: true},
		settled: make(chan struct{}),
	}
}

func (q *InfiniteQuery[T]) enabled() bool {
	return !q.opts.Disabled && q.spec.Owner != "" && len(q.spec.Key) > 0 && q.spec.ReadLocal != nil
}

// Start serves the stored rows as a single page and schedules the first
// remote page.
func (q *InfiniteQuery[T]) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.mu.Unlock()

	if !q.enabled() {
		q.finish(func(s *PagesState[T]) { s.IsLoading = false })
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

	local := querycache.Pages[T]{Pages: []querycache.Page[T]{{Items: q.spec.ReadLocal(q.ctx)}}}
	pages := local
	querycache.UpdateAs(cache, q.spec.Key, func(prev querycache.Pages[T], ok bool) (querycache.Pages[T], bool) {
		if ok {
			pages = prev
			return prev, false
		}
		return local, true
	})

	offline := !q.o.IsOnline()
	q.update(func(s *PagesState[T]) {
		setPages(s, pages)
		s.IsLoading = false
		s.IsOffline = offline
	})
	if offline {
		q.finish(nil)
		return
	}

	q.mu.Lock()
	q.generation++
	gen := q.generation
	q.timer = time.AfterFunc(q.opts.Debounce, func() {
		if err := q.fetchFirst(q.ctx, gen); err != nil {
			zap.L().Debug("Background page fetch failed", zap.String("key", q.spec.Key.String()), zap.Error(err))
		}
	})
	q.mu.Unlock()
}

// Refetch reloads the first page and drops every later page.
func (q *InfiniteQuery[T]) Refetch(ctx context.Context) error {
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

	return q.fetchFirst(ctx, gen)
}

func (q *InfiniteQuery[T]) fetchFirst(ctx context.Context, gen uint64) error {
	if !q.o.IsOnline() {
		q.finish(func(s *PagesState[T]) { s.IsOffline = true })
		return nil
	}
	q.update(func(s *PagesState[T]) { s.IsFetching = true })

	page, err := q.fetchPage(ctx, "")
	if q.stale(gen) {
		return nil
	}
	if err != nil {
		q.finish(func(s *PagesState[T]) {
			s.IsFetching = false
			if len(s.Data) > 0 {
				return
			}
			s.IsError = true
			s.Err = err
		})
		return err
	}

	pages := querycache.Pages[T]{Pages: []querycache.Page[T]{page}}
	q.o.cache.Set(q.spec.Key, pages)
	q.finish(func(s *PagesState[T]) {
		setPages(s, pages)
		s.IsFetching = false
		s.IsError = false
		s.Err = nil
	})
	return nil
}

// FetchNextPage appends the page after the latest one.
func (q *InfiniteQuery[T]) FetchNextPage(ctx context.Context) error {
	q.mu.Lock()
	if q.closed || !q.state.HasNextPage || q.state.IsFetchingNextPage {
		hasNext := q.state.HasNextPage
		q.mu.Unlock()
		if !hasNext {
			return ErrNoNextPage
		}
		return nil
	}
	pages := q.state.Pages.Pages
	cursor := pages[len(pages)-1].NextCursor
	gen := q.generation
	q.mu.Unlock()

	if !q.o.IsOnline() {
		q.update(func(s *PagesState[T]) { s.IsOffline = true })
		return nil
	}
	q.update(func(s *PagesState[T]) { s.IsFetchingNextPage = true })

	page, err := q.fetchPage(ctx, cursor)
	if q.stale(gen) {
		return nil
	}
	if err != nil {
		q.update(func(s *PagesState[T]) { s.IsFetchingNextPage = false })
		return err
	}

	var next querycache.Pages[T]
	querycache.UpdateAs(q.o.cache, q.spec.Key, func(prev querycache.Pages[T], _ bool) (querycache.Pages[T], bool) {
		next = querycache.Pages[T]{Pages: append(append([]querycache.Page[T](nil), prev.Pages...), page)}
		return next, true
	})
	q.update(func(s *PagesState[T]) {
		setPages(s, next)
		s.IsFetchingNextPage = false
	})
	return nil
}

func (q *InfiniteQuery[T]) fetchPage(ctx context.Context, cursor string) (querycache.Page[T], error) {
	id := q.spec.Key.String() + "|" + q.spec.Owner + "|" + cursor
	raw, err := q.o.fetchShared(ctx, id, q.opts, func(ctx context.Context) (json.RawMessage, error) {
		return q.spec.FetchPage(ctx, cursor)
	})
	if err != nil {
		zap.L().Warn("Page fetch failed", zap.String("key", id), zap.Error(err))
		return querycache.Page[T]{}, err
	}

	items, nextCursor, hasMore := q.spec.Decode(raw)
	if items == nil {
		items = []T{}
	}
	if q.spec.Reconcile != nil && len(items) > 0 {
		q.spec.Reconcile(ctx, items)
	}
	return querycache.Page[T]{Items: items, NextCursor: nextCursor, HasMoreNext: hasMore}, nil
}

func (q *InfiniteQuery[T]) onCacheChange(data any) {
	pages, ok := data.(querycache.Pages[T])
	if !ok {
		return
	}
	q.update(func(s *PagesState[T]) { setPages(s, pages) })
}

func setPages[T any](s *PagesState[T], pages querycache.Pages[T]) {
	s.Pages = pages
	s.Data = pages.Flatten()
	s.HasNextPage = pages.HasNextPage()
}

func (q *InfiniteQuery[T]) stale(gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed || gen != q.generation
}

func (q *InfiniteQuery[T]) State() PagesState[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *InfiniteQuery[T]) Settled() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.settled
}

func (q *InfiniteQuery[T]) Close() {
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

func (q *InfiniteQuery[T]) update(fn func(*PagesState[T])) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn(&q.state)
	if q.state.Data == nil {
		q.state.Data = []T{}
	}
}

func (q *InfiniteQuery[T]) finish(fn func(*PagesState[T])) {
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
