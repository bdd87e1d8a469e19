// Package network tracks whether the device can reach the remote API.
package network

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrOffline is returned instead of attempting a remote call while offline.
var ErrOffline = errors.New("device is offline")

type Monitor interface {
	IsOnline() bool
	// Subscribe calls fn on every change; the returned func unsubscribes.
	Subscribe(fn func(online bool)) func()
}

// Status is a Monitor driven by the host platform's connectivity callbacks.
type Status struct {
	mu     sync.RWMutex
	online bool
	nextId uint64
	subs   map[uint64]func(bool)
}

var _ Monitor = (*Status)(nil)

func NewStatus(online bool) *Status {
	return &Status{online: online, subs: make(map[uint64]func(bool))}
}

func (s *Status) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

func (s *Status) SetOnline(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	zap.L().Info("Network status changed", zap.Bool("online", online))
	for _, fn := range subs {
		fn(online)
	}
}

func (s *Status) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	s.nextId++
	id := s.nextId
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
