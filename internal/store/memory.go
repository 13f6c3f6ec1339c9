package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Sternrassler/userlink-enricher/pkg/user"
)

// Memory is an in-memory store.
type Memory struct {
	mu      sync.RWMutex
	records map[int64]user.Record
	config  Config
}

// NewMemory creates an in-memory store seeded with records.
func NewMemory(cfg Config, records ...user.Record) *Memory {
	m := &Memory{
		records: make(map[int64]user.Record, len(records)),
		config:  cfg,
	}
	for _, rec := range records {
		m.records[rec.ID] = rec
	}
	return m
}

// Ping reports whether the store can serve requests.
func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// LoadBatch returns up to BatchLimit records ordered by ID.
func (m *Memory) LoadBatch(ctx context.Context) ([]user.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]user.Record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	if m.config.BatchLimit > 0 && len(records) > m.config.BatchLimit {
		records = records[:m.config.BatchLimit]
	}
	return records, nil
}

// FindByID returns the record with the given ID or ErrNotFound.
func (m *Memory) FindByID(ctx context.Context, id int64) (user.Record, error) {
	if err := ctx.Err(); err != nil {
		return user.Record{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return user.Record{}, ErrNotFound
	}
	return rec, nil
}

// SaveUpdated writes the links of records and returns the IDs it changed,
// in ascending order. Unknown IDs are ignored.
func (m *Memory) SaveUpdated(ctx context.Context, records []user.Record) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var applied []int64
	for _, rec := range records {
		current, ok := m.records[rec.ID]
		if !ok {
			continue
		}
		if current.HasLink() && !m.config.Overwrite {
			continue
		}
		m.records[rec.ID] = current.WithLink(rec.ExternalLink)
		applied = append(applied, rec.ID)
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i] < applied[j] })
	return applied, nil
}

// Insert adds records, ignoring IDs that already exist.
func (m *Memory) Insert(ctx context.Context, records ...user.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		if _, exists := m.records[rec.ID]; !exists {
			m.records[rec.ID] = rec
		}
	}
	return nil
}
