package memory

import (
	"context"
	"sync"
	"time"
)

type StateRepo struct {
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

func NewStateRepo() *StateRepo {
	return &StateRepo{states: make(map[string]time.Time), now: time.Now}
}

func (s *StateRepo) Save(_ context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// заодно выкидываем протухшие значения
	for k, exp := range s.states {
		if !now.Before(exp) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(ttl)
	return nil
}

func (s *StateRepo) Consume(_ context.Context, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.states[state]
	if !ok {
		return false, nil
	}
	delete(s.states, state)
	return s.now().Before(exp), nil
}
