package store

import (
	"context"
	"sync"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

// Memory is an in-process store. Records do not survive a restart, so it is
// only fit for tests and a single local instance.
type Memory struct {
	mu      sync.Mutex
	records map[string]entity.Record
	opts    Options
}

// NewMemory builds an empty in-process store.
func NewMemory(opts Options) *Memory {
	return &Memory{records: map[string]entity.Record{}, opts: opts.withDefaults()}
}

func (m *Memory) Put(ctx context.Context, rec entity.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictLocked()
	m.records[rec.Identity] = rec
	return nil
}

func (m *Memory) Get(ctx context.Context, identity string) (*entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[identity]
	if !ok || m.purgeable(rec) {
		delete(m.records, identity)
		return nil, goerror.ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) Invalidate(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.records, identity)
	m.mu.Unlock()
	return nil
}

func (m *Memory) InvalidateIf(ctx context.Context, snapshot entity.Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.records[snapshot.Identity]
	if !ok || !cur.SameIssue(snapshot) {
		return false, nil
	}
	delete(m.records, snapshot.Identity)
	return true, nil
}

func (m *Memory) Consume(ctx context.Context, snapshot entity.Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.records[snapshot.Identity]
	if !ok || cur.Consumed || !cur.SameIssue(snapshot) {
		return false, nil
	}
	delete(m.records, snapshot.Identity)
	return true, nil
}

// Close drops every record.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.records = map[string]entity.Record{}
	m.mu.Unlock()
	return nil
}

// Len reports how many records are held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *Memory) purgeable(rec entity.Record) bool {
	return !m.opts.Clock.Now().Before(rec.ExpiresAt.Add(m.opts.Retention))
}

func (m *Memory) evictLocked() {
	for id, rec := range m.records {
		if m.purgeable(rec) {
			delete(m.records, id)
		}
	}
}
