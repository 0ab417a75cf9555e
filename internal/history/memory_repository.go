package history

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Records are lost on restart; use PostgresRepository to keep them.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*PlanRecord
	maxSize int
}

// NewInMemoryRepository creates a new in-memory repository holding at most
// maxSize records (0 means unbounded). The oldest records are dropped first.
func NewInMemoryRepository(maxSize int) *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*PlanRecord),
		maxSize: maxSize,
	}
}

// Create stores a new record.
func (r *InMemoryRepository) Create(_ context.Context, record *PlanRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *record
	r.records[record.ID] = &cpy

	if r.maxSize > 0 && len(r.records) > r.maxSize {
		r.evictOldestLocked()
	}
	return nil
}

// Get retrieves a record by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*PlanRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cpy := *rec
	return &cpy, nil
}

// List returns records newest first.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*PlanRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*PlanRecord, 0, len(r.records))
	for _, rec := range r.records {
		cpy := *rec
		records = append(records, &cpy)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records, nil
}

// Len returns the number of stored records.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *InMemoryRepository) evictOldestLocked() {
	var oldest *PlanRecord
	for _, rec := range r.records {
		if oldest == nil || rec.CreatedAt.Before(oldest.CreatedAt) {
			oldest = rec
		}
	}
	if oldest != nil {
		delete(r.records, oldest.ID)
	}
}
