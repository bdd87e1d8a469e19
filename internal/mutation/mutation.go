// Package mutation applies writes optimistically: the local store and cache
// change first, the remote confirms or the change is rolled back, and writes
// made offline wait in a durable outbox.
package mutation

import (
	"errors"
	"fmt"
	"sync"
)

type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseConfirmed  Phase = "confirmed"
	PhaseRolledBack Phase = "rolled_back"
	PhaseQueued     Phase = "queued"
)

var (
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrInvalidTransition   = errors.New("invalid mutation transition")
)

// Error is returned when the remote rejected a mutation and the optimistic
// change was rolled back.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Mutation tracks one optimistic write. Queued mutations move on to
// Confirmed or RolledBack when the outbox is flushed.
type Mutation struct {
	Id   string
	Kind string

	mu    sync.Mutex
	phase Phase
	err   error
}

func newMutation(id, kind string) *Mutation {
	return &Mutation{Id: id, Kind: kind, phase: PhasePending}
}

func (m *Mutation) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Err is the rejection that caused a rollback.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Mutation) Confirm() error {
	return m.transition(PhaseConfirmed, nil, PhasePending, PhaseQueued)
}

func (m *Mutation) RollBack(cause error) error {
	return m.transition(PhaseRolledBack, cause, PhasePending, PhaseQueued)
}

func (m *Mutation) Queue() error {
	return m.transition(PhaseQueued, nil, PhasePending)
}

func (m *Mutation) transition(to Phase, cause error, from ...Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range from {
		if m.phase == allowed {
			m.phase = to
			m.err = cause
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, m.phase, to)
}
