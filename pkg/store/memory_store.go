package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// MemoryStore is an in-process Store. Listeners are invoked synchronously
// on the goroutine calling Set.
type MemoryStore struct {
	values cmap.ConcurrentMap[string, []byte]

	mu        sync.Mutex
	listeners map[string]map[*memorySubscription]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:    cmap.New[[]byte](),
		listeners: make(map[string]map[*memorySubscription]struct{}),
	}
}

type memorySubscription struct {
	store    *MemoryStore
	key      string
	onChange func(Snapshot)
}

// Close detaches the listener.
func (s *memorySubscription) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	delete(s.store.listeners[s.key], s)
	return nil
}

// Set stores value and notifies listeners of key.
func (m *MemoryStore) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}
	m.values.Set(key, payload)

	snap := Snapshot{Key: key, Value: payload, Exists: true}
	for _, l := range m.listenersFor(key) {
		l.onChange(snap)
	}
	return nil
}

// Get returns the raw value stored under key.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	return m.values.Get(key)
}

// Subscribe delivers the current value immediately, then every change.
func (m *MemoryStore) Subscribe(key string, onChange func(Snapshot), _ func(error)) (Subscription, error) {
	sub := &memorySubscription{store: m, key: key, onChange: onChange}

	m.mu.Lock()
	if m.listeners[key] == nil {
		m.listeners[key] = make(map[*memorySubscription]struct{})
	}
	m.listeners[key][sub] = struct{}{}
	m.mu.Unlock()

	value, ok := m.values.Get(key)
	onChange(Snapshot{Key: key, Value: value, Exists: ok})
	return sub, nil
}

func (m *MemoryStore) listenersFor(key string) []*memorySubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := make([]*memorySubscription, 0, len(m.listeners[key]))
	for s := range m.listeners[key] {
		subs = append(subs, s)
	}
	return subs
}
