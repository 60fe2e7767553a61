package billing

import (
	"sync"

	"github.com/google/uuid"
)

// keyLocks hands out one mutex per API key so sweeps for the same key run
// one at a time while different keys settle in parallel. Entries are never
// evicted; the map is bounded by the number of live API keys.
type keyLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// acquire locks the mutex for id and returns its unlock func.
func (k *keyLocks) acquire(id uuid.UUID) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
