package kv

import (
	"context"
	"sync"
	"time"

	"github.com/fpbe/auth-engine/internal/model"
)

// Memory is an in-process Store for single-node deployments and tests.
// Expiry is check-on-read.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	values   map[string]memoryValue
	counters map[string]*memoryCounter
}

type memoryValue struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

type memoryCounter struct {
	count     int64
	windowEnd time.Time
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:      now,
		values:   make(map[string]memoryValue),
		counters: make(map[string]*memoryCounter),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, ok := m.values[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	if !val.expiresAt.IsZero() && m.now().After(val.expiresAt) {
		delete(m.values, key)
		return nil, model.ErrNotFound
	}
	out := make([]byte, len(val.data))
	copy(out, val.data)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	val := memoryValue{data: stored}
	if ttl > 0 {
		val.expiresAt = m.now().Add(ttl)
	}
	m.values[key] = val
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	delete(m.counters, key)
	return nil
}

func (m *Memory) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	counter, ok := m.counters[key]
	if !ok || now.After(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		m.counters[key] = counter
	}
	counter.count++
	remaining := counter.windowEnd.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return counter.count, remaining, nil
}
