/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package livecache applies pushed and locally raised events directly to the
// query cache so open screens update without a refetch.
package livecache

import (
	"context"
	"sync"
	"time"

	"wallet-sync-go/internal/events"
	"wallet-sync-go/internal/models"
	"wallet-sync-go/internal/querycache"

	"go.uber.org/zap"
)

const (
	DefaultSeenCapacity    = 1000
	DefaultCleanupInterval = 5 * time.Minute
)

// Persister stores push-delivered records. The reconcile engine implements it.
type Persister interface {
	PersistMessage(ctx context.Context, message models.Message, owner string)
	PersistTransaction(ctx context.Context, transaction models.Transaction, owner string)
	PersistInteraction(ctx context.Context, interaction models.Interaction, owner string)
	PersistDeletedMessage(ctx context.Context, messageId, owner string)
}

// PushChannel is the realtime feed. Every On* call returns its unsubscribe.
type PushChannel interface {
	OnMessage(fn func(models.Message)) func()
	OnTransactionUpdate(fn func(models.Transaction)) func()
	OnMessageDeleted(fn func(messageId, interactionId string)) func()
	OnInteractionUpdated(fn func(models.Interaction)) func()
	OnReconnect(fn func()) func()
}

// Notification is what interaction subscribers receive.
type Notification struct {
	Event events.Kind
	Data  any
}

// DispatcherConfig contains configuration for Dispatcher
type DispatcherConfig struct {
	Bus             *events.Bus
	Push            PushChannel
	Persister       Persister
	SeenCapacity    int
	CleanupInterval time.Duration
}

type subscriber struct {
	interactionId string
	fn            func(Notification)
}

// Dispatcher patches cached timelines, interaction lists and transaction
// lists from realtime events.
type Dispatcher struct {
	bus       *events.Bus
	push      PushChannel
	persister Persister

	mutex       sync.Mutex
	cache       *querycache.Cache
	identity    models.Identity
	initialized bool
	detach      []func()

	// Recently handled event keys, oldest first.
	seen            map[string]time.Time
	seenOrder       []string
	seenCapacity    int
	cleanupInterval time.Duration

	nextSubId   uint64
	subscribers map[uint64]subscriber

	persistCtx    context.Context
	persistCancel context.CancelFunc
	persistWg     sync.WaitGroup

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.SeenCapacity <= 0 {
		cfg.SeenCapacity = DefaultSeenCapacity
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	return &Dispatcher{
		bus:             cfg.Bus,
		push:            cfg.Push,
		persister:       cfg.Persister,
		seen:            make(map[string]time.Time),
		seenCapacity:    cfg.SeenCapacity,
		cleanupInterval: cfg.CleanupInterval,
		subscribers:     make(map[uint64]subscriber),
	}
}

// Initialize attaches the dispatcher to the bus and the push channel. Later
// calls only switch the identity whose caches are patched, dropping the
// cached entries of the previous identity.
func (d *Dispatcher) Initialize(cache *querycache.Cache, identity models.Identity) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.initialized {
		if d.identity != identity {
			removed := d.cache.Remove(querycache.MatchNotOwnedBy(identity))
			d.seen = make(map[string]time.Time)
			d.seenOrder = nil
			zap.L().Info("Live cache identity switched",
				zap.String("profile_id", identity.ProfileId),
				zap.Int("removed", removed))
		}
		d.identity = identity
		return
	}
	d.identity = identity
	d.initialized = true
	d.cache = cache
	d.persistCtx, d.persistCancel = context.WithCancel(context.Background())

	if d.bus != nil {
		d.detach = append(d.detach,
			d.bus.Subscribe(events.KindMessageNew, d.onBusEvent),
			d.bus.Subscribe(events.KindTransactionUpdate, d.onBusEvent),
			d.bus.Subscribe(events.KindMessageDeleted, d.onBusEvent),
			d.bus.Subscribe(events.KindInteractionUpdated, d.onBusEvent),
			d.bus.Subscribe(events.KindDataUpdated, d.onBusEvent),
		)
	}
	if d.push != nil {
		d.detach = append(d.detach,
			d.push.OnMessage(func(m models.Message) { d.handleMessage(m, true) }),
			d.push.OnTransactionUpdate(func(tx models.Transaction) { d.handleTransaction(tx, true) }),
			d.push.OnMessageDeleted(func(id, interactionId string) { d.handleMessageDeleted(id, interactionId, true) }),
			d.push.OnInteractionUpdated(func(i models.Interaction) { d.handleInteraction(i, true) }),
			d.push.OnReconnect(d.HandleReconnect),
		)
	}

	d.stopChan = make(chan struct{})
	d.doneChan = make(chan struct{})
	go d.cleanupLoop(d.stopChan, d.doneChan)

	zap.L().Info("Live cache dispatcher initialized",
		zap.String("profile_id", identity.ProfileId),
		zap.Int("seen_capacity", d.seenCapacity),
		zap.Duration("cleanup_interval", d.cleanupInterval))
}

// Cleanup detaches every listener, waits for pending persistence and resets
// state so a later Initialize starts fresh.
func (d *Dispatcher) Cleanup() {
	d.mutex.Lock()
	if !d.initialized {
		d.mutex.Unlock()
		return
	}
	d.initialized = false
	detach := d.detach
	d.detach = nil
	stopChan, doneChan := d.stopChan, d.doneChan
	d.seen = make(map[string]time.Time)
	d.seenOrder = nil
	d.subscribers = make(map[uint64]subscriber)
	d.mutex.Unlock()

	for _, fn := range detach {
		fn()
	}
	close(stopChan)
	<-doneChan

	d.persistWg.Wait()
	d.persistCancel()

	d.mutex.Lock()
	d.cache = nil
	d.identity = models.Identity{}
	d.mutex.Unlock()

	zap.L().Info("Live cache dispatcher stopped")
}

// Wait blocks until queued persistence has finished.
func (d *Dispatcher) Wait() {
	d.persistWg.Wait()
}

func (d *Dispatcher) onBusEvent(event events.Event) {
	if !d.inScope(ownerOf(event)) {
		return
	}
	switch e := event.(type) {
	case events.MessageNew:
		d.handleMessage(e.Message, false)
	case events.TransactionUpdate:
		d.handleTransaction(e.Transaction, false)
	case events.MessageDeleted:
		d.handleMessageDeleted(e.MessageId, e.InteractionId, false)
	case events.InteractionUpdated:
		d.handleInteraction(e.Interaction, false)
	case events.DataUpdated:
		d.handleDataUpdated(e)
	}
}

func ownerOf(event events.Event) string {
	switch e := event.(type) {
	case events.MessageNew:
		return e.Owner
	case events.TransactionUpdate:
		return e.Owner
	case events.MessageDeleted:
		return e.Owner
	case events.InteractionUpdated:
		return e.Owner
	case events.DataUpdated:
		return e.Owner
	}
	return ""
}

// inScope accepts events without an owner and events for the current profile.
func (d *Dispatcher) inScope(owner string) bool {
	if owner == "" {
		return true
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return owner == d.identity.ProfileId
}

// state returns the cache and identity, or nil when not initialized.
func (d *Dispatcher) state() (*querycache.Cache, models.Identity) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if !d.initialized {
		return nil, models.Identity{}
	}
	return d.cache, d.identity
}

// Subscribe registers fn for events of one interaction, or for every event
// when interactionId is empty.
func (d *Dispatcher) Subscribe(interactionId string, fn func(Notification)) func() {
	d.mutex.Lock()
	d.nextSubId++
	id := d.nextSubId
	d.subscribers[id] = subscriber{interactionId: interactionId, fn: fn}
	d.mutex.Unlock()

	return func() {
		d.mutex.Lock()
		delete(d.subscribers, id)
		d.mutex.Unlock()
	}
}

func (d *Dispatcher) notify(interactionId string, kind events.Kind, data any) {
	d.mutex.Lock()
	var fns []func(Notification)
	for _, sub := range d.subscribers {
		if sub.interactionId == "" || sub.interactionId == interactionId {
			fns = append(fns, sub.fn)
		}
	}
	d.mutex.Unlock()

	n := Notification{Event: kind, Data: data}
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("Live cache subscriber panicked", zap.Any("panic", r))
				}
			}()
			fn(n)
		}()
	}
}

// ForceRefresh invalidates every cached timeline of one interaction.
func (d *Dispatcher) ForceRefresh(interactionId string) int {
	cache, identity := d.state()
	if cache == nil || interactionId == "" {
		return 0
	}
	n := cache.Invalidate(querycache.MatchTimelines(identity.ProfileId, interactionId))
	zap.L().Debug("Forced timeline refresh",
		zap.String("interaction_id", interactionId),
		zap.Int("refetches", n))
	return n
}

// HandleReconnect refetches everything a missed transaction could have
// changed.
func (d *Dispatcher) HandleReconnect() {
	cache, _ := d.state()
	if cache == nil {
		return
	}
	n := cache.Invalidate(querycache.MatchTransactionRelated())
	zap.L().Info("Push channel reconnected, invalidated transaction data", zap.Int("refetches", n))
}

func (d *Dispatcher) persist(fn func(ctx context.Context, p Persister, owner string)) {
	if d.persister == nil {
		return
	}
	d.mutex.Lock()
	ctx, owner := d.persistCtx, d.identity.ProfileId
	d.mutex.Unlock()
	if owner == "" {
		return
	}

	d.persistWg.Add(1)
	go func() {
		defer d.persistWg.Done()
		fn(ctx, d.persister, owner)
	}()
}
