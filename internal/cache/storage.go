package cache

import (
	"context"
	"errors"
	"sync"
)

var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Storage is a string key/value store scoped to one deployment.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Watcher is implemented by storages that can report changed keys,
// including changes made by other processes sharing the storage.
type Watcher interface {
	Watch(ctx context.Context) (<-chan string, error)
}

type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
	subs map[chan string]struct{}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string]string),
		subs: make(map[chan string]struct{}),
	}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	m.publish(key)
	return nil
}

func (m *MemoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	m.publish(key)
	return nil
}

func (m *MemoryStorage) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

func (m *MemoryStorage) publish(key string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subs {
		select {
		case ch <- key:
		default:
		}
	}
}
