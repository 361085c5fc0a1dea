package media

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps media records in process. It backs dev mode when
// no database is configured.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[int64]*Media
	nextID int64
	now    func() time.Time
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: map[int64]*Media{}, now: time.Now}
}

// Create implements Store.
func (r *MemoryRepository) Create(_ context.Context, m *Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	m.ID = r.nextID
	m.CreatedAt = r.now().UTC()
	stored := *m
	r.items[m.ID] = &stored
	return nil
}

// FindByIDs implements Store.
func (r *MemoryRepository) FindByIDs(_ context.Context, ids []int64) ([]*Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Media
	for _, id := range ids {
		if m, ok := r.items[id]; ok {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// List implements Store.
func (r *MemoryRepository) List(_ context.Context, offset, limit int) ([]*Media, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Media, 0, len(r.items))
	for _, m := range r.items {
		cp := *m
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := len(all)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}
