package adapter

import (
	"context"
	"sync"

	"github.com/fulldump/todostore/record"
)

type Memory struct {
	Namespace string

	mutex   sync.RWMutex
	records map[string]record.Record
	order   []string
	closed  bool
}

func NewMemory(namespace string) *Memory {
	return &Memory{
		Namespace: namespace,
		records:   map[string]record.Record{},
	}
}

func (m *Memory) Create(ctx context.Context, r record.Record) (string, error) {
	r, id := prepare(r)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return "", wrap("create", m.Namespace, id, ErrClosed)
	}
	if _, exists := m.records[id]; !exists {
		m.order = append(m.order, id)
	}
	m.records[id] = r

	return id, nil
}

func (m *Memory) Update(ctx context.Context, r record.Record) error {
	id := r.ID()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return wrap("update", m.Namespace, id, ErrClosed)
	}
	if _, exists := m.records[id]; !exists {
		return wrap("update", m.Namespace, id, ErrNotFound)
	}
	m.records[id] = r.Clone()

	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return wrap("delete", m.Namespace, id, ErrClosed)
	}
	if _, exists := m.records[id]; !exists {
		return wrap("delete", m.Namespace, id, ErrNotFound)
	}
	delete(m.records, id)
	for i, item := range m.order {
		if item == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}

	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (record.Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.closed {
		return nil, wrap("get", m.Namespace, id, ErrClosed)
	}
	r, exists := m.records[id]
	if !exists {
		return nil, wrap("get", m.Namespace, id, ErrNotFound)
	}
	return r.Clone(), nil
}

func (m *Memory) ReadAll(ctx context.Context) ([]record.Record, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.closed {
		return nil, wrap("read", m.Namespace, "", ErrClosed)
	}
	result := make([]record.Record, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.records[id].Clone())
	}
	return result, nil
}

func (m *Memory) Close() error {
	m.mutex.Lock()
	m.closed = true
	m.mutex.Unlock()
	return nil
}
