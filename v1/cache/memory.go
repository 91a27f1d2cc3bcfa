package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polystore/polystore/v1/adapter"
)

// Memory is the in-process cache. Entries live in a map guarded by one
// RWMutex; a janitor goroutine sweeps expired entries so abandoned keys do
// not accumulate between reads.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	tags    map[string]map[string]struct{}
	closed  bool

	defaultTTL time.Duration
	stop       chan struct{}
	stopOnce   sync.Once

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type memoryEntry struct {
	rows      []adapter.Row
	tags      []string
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

var _ Client = (*Memory)(nil)

// NewMemory builds the in-process cache and starts its janitor.
func NewMemory(cfg Config) *Memory {
	cfg = cfg.withDefaults()
	m := &Memory{
		entries:    make(map[string]*memoryEntry),
		tags:       make(map[string]map[string]struct{}),
		defaultTTL: cfg.DefaultTTL,
		stop:       make(chan struct{}),
	}
	go m.janitor(cfg.CleanupInterval)
	return m
}

func (m *Memory) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

func (m *Memory) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.entries {
		if entry.expired(now) {
			m.dropLocked(key, entry)
			m.evictions.Add(1)
		}
	}
}

// dropLocked removes an entry and its tag index references. Caller holds mu.
func (m *Memory) dropLocked(key string, entry *memoryEntry) {
	delete(m.entries, key)
	for _, tag := range entry.tags {
		if keys := m.tags[tag]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.tags, tag)
			}
		}
	}
}

// Get returns the payload under key. Expired entries count as misses and
// are dropped eagerly.
func (m *Memory) Get(ctx context.Context, key string) ([]adapter.Row, bool, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, false, fmt.Errorf("cache: client is closed")
	}
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		m.misses.Add(1)
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		m.mu.Lock()
		// Re-check under the write lock; a Set may have replaced it.
		if current, still := m.entries[key]; still && current == entry {
			m.dropLocked(key, entry)
			m.evictions.Add(1)
		}
		m.mu.Unlock()
		m.misses.Add(1)
		return nil, false, nil
	}

	m.hits.Add(1)
	return entry.rows, true, nil
}

// Set stores rows under key, replacing any previous entry.
func (m *Memory) Set(ctx context.Context, key string, rows []adapter.Row, tags []string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	entry := &memoryEntry{
		rows:      rows,
		tags:      append([]string(nil), tags...),
		expiresAt: time.Now().Add(ttl),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("cache: client is closed")
	}
	if previous, ok := m.entries[key]; ok {
		m.dropLocked(key, previous)
	}
	m.entries[key] = entry
	for _, tag := range tags {
		keys := m.tags[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			m.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

// DeleteByTags drops every entry carrying at least one of the tags.
func (m *Memory) DeleteByTags(ctx context.Context, tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("cache: client is closed")
	}
	for _, tag := range tags {
		for key := range m.tags[tag] {
			if entry, ok := m.entries[key]; ok {
				m.dropLocked(key, entry)
				m.evictions.Add(1)
			}
		}
		delete(m.tags, tag)
	}
	return nil
}

// Flush drops everything, keeping counters.
func (m *Memory) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("cache: client is closed")
	}
	m.entries = make(map[string]*memoryEntry)
	m.tags = make(map[string]map[string]struct{})
	return nil
}

// Status snapshots the counters.
func (m *Memory) Status() Status {
	m.mu.RLock()
	entries := len(m.entries)
	m.mu.RUnlock()
	return Status{
		Entries:   entries,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
	}
}

// Close stops the janitor and rejects further operations.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	m.mu.Lock()
	m.closed = true
	m.entries = nil
	m.tags = nil
	m.mu.Unlock()
	return nil
}
