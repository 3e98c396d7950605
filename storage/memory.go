package storage

import (
	"context"
	"sort"
	"sync"
)

var (
	_ Store   = (*Memory)(nil)
	_ Backend = (*MemoryBackend)(nil)
)

// Memory is a tab-scoped store kept in process memory.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemory returns an empty tab-scoped store.
func NewMemory() *Memory {
	return &Memory{items: map[string]string{}}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.items), nil
}

// MemoryBackend is the default Backend for Shared.
type MemoryBackend struct {
	mem *Memory
}

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{mem: NewMemory()}
}

func (b *MemoryBackend) Load(ctx context.Context, key string) (string, bool, error) {
	return b.mem.Get(ctx, key)
}

func (b *MemoryBackend) Save(ctx context.Context, key, value, _ string) error {
	return b.mem.Set(ctx, key, value)
}

func (b *MemoryBackend) Delete(ctx context.Context, key, _ string) error {
	return b.mem.Remove(ctx, key)
}

func (b *MemoryBackend) List(ctx context.Context) ([]string, error) {
	return b.mem.Keys(ctx)
}

func sortedKeys(items map[string]string) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
