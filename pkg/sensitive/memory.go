package sensitive

import (
	"context"
	"sync"
)

// MemoryVault keeps tokens in process memory. It backs tests and local runs
// without a configured vault.
type MemoryVault struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{values: make(map[string]string)}
}

func (m *MemoryVault) PutIfAbsent(_ context.Context, token, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[token]; !ok {
		m.values[token] = value
	}
	return nil
}

func (m *MemoryVault) Get(_ context.Context, token string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[token]
	if !ok {
		return "", ErrTokenNotFound
	}
	return value, nil
}

// Len returns the number of stored tokens.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
