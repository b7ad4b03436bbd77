package store

import "sync"

// Item is a stored record.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Store holds items.
type Store interface {
	All() []Item
	Add(item Item)
}

// Memory is an in-memory Store.
type Memory struct {
	mu    sync.Mutex
	items []Item
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) All() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Item(nil), m.items...)
}

func (m *Memory) Add(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
}
