package memstore

import (
	"fmt"
	"sync"

	"github.com/jrsteele09/go-meetings-client/credentials"
)

var _ credentials.Store = (*MemoryStore)(nil)

// MemoryStore keeps the credential pair in process memory.
type MemoryStore struct {
	values map[string]string
	clears int
	lock   sync.RWMutex
}

func New() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// NewWithPair returns a store pre-populated with pair.
func NewWithPair(pair credentials.Pair) *MemoryStore {
	s := New()
	s.values[credentials.AccessTokenKey] = pair.Access
	s.values[credentials.RefreshTokenKey] = pair.Refresh
	return s
}

func (s *MemoryStore) Load() (credentials.Pair, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return credentials.Pair{
		Access:  s.values[credentials.AccessTokenKey],
		Refresh: s.values[credentials.RefreshTokenKey],
	}, nil
}

func (s *MemoryStore) Save(pair credentials.Pair) error {
	if !pair.Complete() {
		return fmt.Errorf("refusing to store an incomplete credential pair")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[credentials.AccessTokenKey] = pair.Access
	s.values[credentials.RefreshTokenKey] = pair.Refresh
	return nil
}

func (s *MemoryStore) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.values, credentials.AccessTokenKey)
	delete(s.values, credentials.RefreshTokenKey)
	s.clears++
	return nil
}

// Clears returns how many times Clear has been called.
func (s *MemoryStore) Clears() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.clears
}
