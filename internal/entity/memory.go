package entity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GyroZepelix/cornerstone/internal/schema"
)

// MemoryStore is an in-process Store. It backs dev mode without a database
// and serves as the fake in controller and handler tests.
type MemoryStore struct {
	mu      sync.RWMutex
	schemas map[string]schema.ContentType
	records map[int64]*record
	nextID  int64
	media   MediaLookup
	now     func() time.Time
}

// NewMemoryStore creates an empty store for the given schemas. media may be
// nil, in which case populated media fields resolve to nothing.
func NewMemoryStore(schemas []schema.ContentType, media MediaLookup) *MemoryStore {
	return &MemoryStore{
		schemas: schema.Index(schemas),
		records: map[int64]*record{},
		media:   media,
		now:     time.Now,
	}
}

// FindMany returns the filtered, sorted and paginated entries.
func (s *MemoryStore) FindMany(ctx context.Context, contentType string, q Query) (Page, error) {
	ct, err := schemaFor(s.schemas, contentType)
	if err != nil {
		return Page{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.matcher()
	var matched []*record
	for _, rec := range s.records {
		if rec.ContentType != contentType {
			continue
		}
		if !visible(ct, rec, q.PublicationState) {
			continue
		}
		ok, err := m.match(ct, rec, q.Filters)
		if err != nil {
			return Page{}, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}

	if err := sortRecords(ct, matched, q.Sort); err != nil {
		return Page{}, err
	}

	total := len(matched)
	offset, limit := q.Pagination.bounds()
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	window := matched[offset:end]

	entries, err := s.render(ctx, ct, window, q)
	if err != nil {
		return Page{}, err
	}
	return Page{Results: entries, Pagination: newPageInfo(q.Pagination, total)}, nil
}

// FindOne returns a single entry by id.
func (s *MemoryStore) FindOne(ctx context.Context, contentType string, id int64, q Query) (Entry, error) {
	ct, err := schemaFor(s.schemas, contentType)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || rec.ContentType != contentType || !visible(ct, rec, q.PublicationState) {
		return nil, ErrNotFound
	}
	entries, err := s.render(ctx, ct, []*record{rec}, q)
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// Create stores a new entry. Entries of draft-and-publish types are
// published on creation unless publishedAt is explicitly null.
func (s *MemoryStore) Create(ctx context.Context, contentType string, data map[string]any) (Entry, error) {
	ct, err := schemaFor(s.schemas, contentType)
	if err != nil {
		return nil, err
	}
	w, err := splitWrite(ct, data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRelations(ct, w.relations); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	s.nextID++
	rec := &record{
		ID:          s.nextID,
		ContentType: contentType,
		Attrs:       w.attrs,
		Relations:   w.relations,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if w.publish == nil || *w.publish {
		rec.PublishedAt = publishTime(w, now)
	}
	s.records[rec.ID] = rec

	return rec.entry(ct, nil), nil
}

// Update merges data into an existing entry. Relations present in data
// replace the stored ones.
func (s *MemoryStore) Update(ctx context.Context, contentType string, id int64, data map[string]any) (Entry, error) {
	ct, err := schemaFor(s.schemas, contentType)
	if err != nil {
		return nil, err
	}
	w, err := splitWrite(ct, data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.ContentType != contentType {
		return nil, ErrNotFound
	}
	if err := s.checkRelations(ct, w.relations); err != nil {
		return nil, err
	}

	for k, v := range w.attrs {
		rec.Attrs[k] = v
	}
	for k, ids := range w.relations {
		rec.Relations[k] = ids
	}
	now := s.now().UTC()
	if w.publish != nil {
		if *w.publish {
			rec.PublishedAt = publishTime(w, now)
		} else {
			rec.PublishedAt = nil
		}
	}
	rec.UpdatedAt = now

	return rec.entry(ct, nil), nil
}

// checkRelations rejects references to missing entries of the target type.
func (s *MemoryStore) checkRelations(ct schema.ContentType, relations map[string][]int64) error {
	for name, ids := range relations {
		f, _ := ct.Field(name)
		for _, id := range ids {
			t, ok := s.records[id]
			if !ok || t.ContentType != f.RelatesTo {
				return invalidQuery("%s.%s references missing %s %d", ct.Name, name, f.RelatesTo, id)
			}
		}
	}
	return nil
}

func (s *MemoryStore) matcher() *matcher {
	return &matcher{
		schemas: s.schemas,
		lookup:  func(id int64) *record { return s.records[id] },
	}
}

func (s *MemoryStore) render(ctx context.Context, ct schema.ContentType, recs []*record, q Query) ([]Entry, error) {
	entries := make([]Entry, len(recs))
	for i, rec := range recs {
		entries[i] = rec.entry(ct, q.Fields)
	}
	p := &populator{
		schemas: s.schemas,
		media:   s.media,
		relations: func(_ context.Context, sourceIDs []int64, field string) (map[int64][]*record, error) {
			out := make(map[int64][]*record, len(sourceIDs))
			for _, id := range sourceIDs {
				for _, target := range s.records[id].Relations[field] {
					if t, ok := s.records[target]; ok {
						out[id] = append(out[id], t)
					}
				}
			}
			return out, nil
		},
	}
	if err := p.apply(ctx, ct, recs, entries, q.Populate); err != nil {
		return nil, err
	}
	return entries, nil
}

func visible(ct schema.ContentType, rec *record, state PublicationState) bool {
	if !ct.DraftAndPublish || state != PublicationLive {
		return true
	}
	return rec.PublishedAt != nil
}

func publishTime(w write, now time.Time) *time.Time {
	if w.publishedAt != nil {
		t := w.publishedAt.UTC()
		return &t
	}
	return &now
}

// sortRecords orders records by the sort fields, then by id. Missing values
// sort last.
func sortRecords(ct schema.ContentType, recs []*record, fields []SortField) error {
	refs := make([]fieldRef, len(fields))
	for i, sf := range fields {
		ref, err := resolveField(ct, sf.Field)
		if err != nil {
			return err
		}
		if ref.relation != nil {
			return invalidQuery("%s: cannot sort by relation %q", ct.Name, sf.Field)
		}
		refs[i] = ref
	}

	sort.SliceStable(recs, func(i, j int) bool {
		for k, sf := range fields {
			a := recordValue(recs[i], refs[k])
			b := recordValue(recs[j], refs[k])
			switch {
			case a == nil && b == nil:
				continue
			case a == nil:
				return false
			case b == nil:
				return true
			}
			c, ok := order(refs[k].fieldType(), a, b)
			if !ok || c == 0 {
				continue
			}
			if sf.Desc {
				return c > 0
			}
			return c < 0
		}
		return recs[i].ID < recs[j].ID
	})
	return nil
}
