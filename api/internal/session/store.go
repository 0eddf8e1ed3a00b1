package session

import (
	"context"
	"sync"
	"time"
)

// Store keeps one State per user key.
type Store interface {
	Get(user string) (State, bool)
	Put(user string, st State)
	Delete(user string)
}

// MemoryStore is a Store whose entries expire after ttl without access.
type MemoryStore struct {
	states sync.Map // user -> State
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Get(user string) (State, bool) {
	v, ok := s.states.Load(user)
	if !ok {
		return State{}, false
	}
	st := v.(State)
	if s.expired(st) {
		s.states.CompareAndDelete(user, v)
		return State{}, false
	}
	return st, true
}

func (s *MemoryStore) Put(user string, st State) {
	if st.empty() {
		s.states.Delete(user)
		return
	}
	st.touchedAt = s.now()
	s.states.Store(user, st)
}

func (s *MemoryStore) Delete(user string) { s.states.Delete(user) }

func (s *MemoryStore) expired(st State) bool {
	return s.ttl > 0 && s.now().Sub(st.touchedAt) > s.ttl
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	n := 0
	s.states.Range(func(k, v any) bool {
		if s.expired(v.(State)) && s.states.CompareAndDelete(k, v) {
			n++
		}
		return true
	})
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
