package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
	"github.com/dharsanguruparan/ReceiptDrop/internal/ports"
)

// MemoryStore is an in-process ExtractionStore with the same transition
// rules as the Postgres repository. Records are copied in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.Extraction
	now     func() time.Time
}

var _ ports.ExtractionStore = (*MemoryStore)(nil)

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.Extraction),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Create(_ context.Context, e *model.Extraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e.Status = model.StatusSubmitting
	e.CreatedAt = now
	e.UpdatedAt = now
	m.records[e.ID] = e.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id, userID string) (*model.Extraction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok || rec.UserID != userID {
		return nil, apperr.NotFound("extraction not found")
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) List(_ context.Context, userID string) ([]*model.Extraction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Extraction, 0)
	for _, rec := range m.records {
		if rec.UserID == userID {
			out = append(out, rec.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) MarkExtracting(_ context.Context, id string) (*model.Extraction, error) {
	return m.transition(id, model.StatusExtracting, nil, "")
}

func (m *MemoryStore) MarkExtracted(_ context.Context, id string, data model.ReceiptData) (*model.Extraction, error) {
	return m.transition(id, model.StatusExtracted, &data, "")
}

func (m *MemoryStore) MarkInvalid(_ context.Context, id, reason string) (*model.Extraction, error) {
	return m.transition(id, model.StatusInvalid, nil, reason)
}

func (m *MemoryStore) MarkFailed(_ context.Context, id, reason string) (*model.Extraction, error) {
	return m.transition(id, model.StatusFailed, nil, reason)
}

func (m *MemoryStore) Delete(_ context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.UserID != userID {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *MemoryStore) transition(id string, to model.Status, data *model.ReceiptData, reason string) (*model.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, apperr.NotFound("extraction not found")
	}
	if !model.CanTransition(rec.Status, to) {
		return nil, transitionError(rec.Status, to)
	}
	rec.Apply(to, data, reason)
	rec.UpdatedAt = m.now()
	return rec.Clone(), nil
}
