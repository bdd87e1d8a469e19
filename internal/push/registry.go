package push

import "sync"

type registry[F any] struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]F
}

func (r *registry[F]) add(fn F) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fns == nil {
		r.fns = make(map[uint64]F)
	}
	r.next++
	id := r.next
	r.fns[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.fns, id)
	}
}

func (r *registry[F]) snapshot() []F {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]F, 0, len(r.fns))
	for _, fn := range r.fns {
		out = append(out, fn)
	}
	return out
}
