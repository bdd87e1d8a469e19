package mutation

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/network"
	"wallet-sync-go/internal/querycache"
	"wallet-sync-go/internal/reconcile"
	"wallet-sync-go/internal/remote"
	"wallet-sync-go/internal/store"

	"go.uber.org/zap"
)

// Mutation kinds, also stored on outbox ops.
const (
	KindSendMoney        = "send_money"
	KindSetPrimaryWallet = "set_primary_wallet"
)

const (
	DefaultDedupWindow   = 30 * time.Second
	DefaultFlushInterval = 10 * time.Second
	DefaultRetryLimit    = 5
	flushBatchSize       = 10
)

// Remote is the write surface of the remote client.
type Remote interface {
	Post(ctx context.Context, path string, body any) (json.RawMessage, error)
	Patch(ctx context.Context, path string, body any) (json.RawMessage, error)
	Do(ctx context.Context, method, path string, body json.RawMessage) (json.RawMessage, error)
}

// Paths are the remote endpoints the coordinator writes to. SetPrimaryWallet
// may contain a {wallet_id} placeholder.
type Paths struct {
	SendMoney        string
	SetPrimaryWallet string
}

// CoordinatorConfig contains configuration for Coordinator
type CoordinatorConfig struct {
	Store         store.LocalStore
	Engine        *reconcile.Engine
	Remote        Remote
	Cache         *querycache.Cache
	Network       network.Monitor
	Bus           *events.Bus
	Paths         Paths
	DedupWindow   time.Duration
	FlushInterval time.Duration
	RetryLimit    int
	Now           func() time.Time
}

type Coordinator struct {
	store   store.LocalStore
	engine  *reconcile.Engine
	remote  Remote
	cache   *querycache.Cache
	network network.Monitor
	bus     *events.Bus
	paths   Paths
	dedup   *dedupWindow
	now     func() time.Time

	flushInterval time.Duration
	retryLimit    int

	mutex    sync.Mutex
	flushing bool
	// queued maps outbox op ids to the mutations waiting on them.
	queued map[string]*Mutation

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = DefaultRetryLimit
	}
	if cfg.Paths.SendMoney == "" {
		cfg.Paths.SendMoney = "/transactions"
	}
	if cfg.Paths.SetPrimaryWallet == "" {
		cfg.Paths.SetPrimaryWallet = "/wallets/{wallet_id}/primary"
	}
	return &Coordinator{
		store:         cfg.Store,
		engine:        cfg.Engine,
		remote:        cfg.Remote,
		cache:         cfg.Cache,
		network:       cfg.Network,
		bus:           cfg.Bus,
		paths:         cfg.Paths,
		dedup:         newDedupWindow(cfg.DedupWindow, cfg.Now),
		now:           cfg.Now,
		flushInterval: cfg.FlushInterval,
		retryLimit:    cfg.RetryLimit,
		queued:        make(map[string]*Mutation),
	}
}

func (c *Coordinator) online() bool {
	return c.network == nil || c.network.IsOnline()
}

// isConnectivityFailure reports errors that mean the request never reached a
// server able to answer it.
func (c *Coordinator) isConnectivityFailure(err error) bool {
	if !c.online() {
		return true
	}
	return remote.StatusCode(err) == 0 && !remote.IsCanceled(err)
}

func (c *Coordinator) enqueue(ctx context.Context, m *Mutation, op models.OutboxOp) error {
	op.Id = m.Id
	op.Kind = m.Kind
	op.MaxRetries = c.retryLimit
	op.CreatedAt = c.now()
	if err := c.store.Outbox().Enqueue(ctx, op); err != nil {
		return err
	}
	if err := m.Queue(); err != nil {
		return err
	}

	c.mutex.Lock()
	c.queued[op.Id] = m
	c.mutex.Unlock()

	zap.L().Info("Mutation queued for later delivery",
		zap.String("kind", m.Kind),
		zap.String("op_id", op.Id),
		zap.String("path", op.Path))
	return nil
}

func (c *Coordinator) takeQueued(opId string) *Mutation {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	m := c.queued[opId]
	delete(c.queued, opId)
	return m
}

func (c *Coordinator) publish(event events.Event) {
	if c.bus != nil {
		c.bus.Publish(event)
	}
}

func (c *Coordinator) invalidateBalances(entityIds ...string) {
	if c.cache == nil {
		return
	}
	c.cache.Invalidate(querycache.MatchBalancesFor(entityIds...))
}

func expandPath(template string, params map[string]string) string {
	for k, v := range params {
		template = strings.ReplaceAll(template, "{"+k+"}", v)
	}
	return template
}

// Start flushes the outbox on a ticker and whenever connectivity returns.
func (c *Coordinator) Start(ctx context.Context) {
	c.mutex.Lock()
	if c.stopChan != nil {
		c.mutex.Unlock()
		return
	}
	c.stopChan = make(chan struct{})
	c.doneChan = make(chan struct{})
	stopChan, doneChan := c.stopChan, c.doneChan
	c.mutex.Unlock()

	var unsubscribe func()
	if c.network != nil {
		unsubscribe = c.network.Subscribe(func(online bool) {
			if online {
				go c.flushLogged(ctx)
			}
		})
	}

	go func() {
		defer close(doneChan)
		if unsubscribe != nil {
			defer unsubscribe()
		}

		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		c.flushLogged(ctx)
		for {
			select {
			case <-ticker.C:
				c.flushLogged(ctx)
			case <-stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	zap.L().Info("Outbox flusher started", zap.Duration("flush_interval", c.flushInterval))
}

func (c *Coordinator) Stop() {
	c.mutex.Lock()
	stopChan, doneChan := c.stopChan, c.doneChan
	c.stopChan, c.doneChan = nil, nil
	c.mutex.Unlock()
	if stopChan == nil {
		return
	}

	close(stopChan)
	<-doneChan
	zap.L().Info("Outbox flusher stopped")
}

func (c *Coordinator) flushLogged(ctx context.Context) {
	result := c.FlushQueue(ctx)
	if result.Sent+result.Failed+result.Retried > 0 {
		zap.L().Info("Flushed outbox",
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Int("retried", result.Retried))
	}
}
