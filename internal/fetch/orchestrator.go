// Package fetch implements local-first queries: the local store answers
// immediately and a debounced remote fetch refreshes it in the background.
package fetch

import (
	"context"
	"encoding/json"
	"time"

	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/network"
	"wallet-sync-go/internal/querycache"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Orchestrator holds what every query shares: the query cache, the network
// monitor and the in-flight request group.
type Orchestrator struct {
	cache    *querycache.Cache
	network  network.Monitor
	inflight singleflight.Group
	defaults Options
}

func NewOrchestrator(cache *querycache.Cache, monitor network.Monitor, cfg models.SyncConfig) *Orchestrator {
	return &Orchestrator{
		cache:   cache,
		network: monitor,
		defaults: Options{
			Debounce:       cfg.FetchDebounce,
			MaxRetries:     cfg.MaxRetries,
			RetryBaseDelay: cfg.RetryBaseDelay,
		},
	}
}

func (o *Orchestrator) Cache() *querycache.Cache { return o.cache }

func (o *Orchestrator) IsOnline() bool {
	return o.network == nil || o.network.IsOnline()
}

type Options struct {
	// Disabled queries never read the store nor call the remote.
	Disabled       bool
	Debounce       time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

func (o *Orchestrator) resolve(opts Options) Options {
	if opts.Debounce == 0 {
		opts.Debounce = o.defaults.Debounce
	}
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = o.defaults.MaxRetries
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = o.defaults.RetryBaseDelay
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	return opts
}

// fetchShared runs fn with retries. Identical concurrent requests for the same
// key share one call.
func (o *Orchestrator) fetchShared(ctx context.Context, id string, opts Options, fn func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	v, err, shared := o.inflight.Do(id, func() (any, error) {
		return o.fetchWithRetry(ctx, id, opts, fn)
	})
	if shared {
		zap.L().Debug("Joined in-flight fetch", zap.String("key", id))
	}
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, id string, opts Options, fn func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	for failures := 0; ; {
		raw, err := fn(ctx)
		if err == nil {
			return raw, nil
		}
		failures++
		if !ShouldRetry(failures, opts.MaxRetries, err, !o.IsOnline()) {
			return nil, err
		}

		delay := RetryDelay(failures-1, opts.RetryBaseDelay)
		zap.L().Debug("Retrying remote fetch",
			zap.String("key", id),
			zap.Int("attempt", failures+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// mergeById returns fresh followed by the rows of existing whose ids fresh
// does not carry.
func mergeById[T models.Record](fresh, existing []T) []T {
	seen := make(map[string]struct{}, len(fresh))
	out := make([]T, 0, len(fresh)+len(existing))
	for _, row := range fresh {
		seen[row.RecordId()] = struct{}{}
		out = append(out, row)
	}
	for _, row := range existing {
		if _, ok := seen[row.RecordId()]; !ok {
			out = append(out, row)
		}
	}
	return out
}
