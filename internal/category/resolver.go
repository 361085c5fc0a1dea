// Package category resolves human supplied category and status references
// (ids, slugs, names, or objects carrying one of those) to category ids.
package category

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-slug"
	"github.com/rs/zerolog"

	"github.com/GyroZepelix/cornerstone/internal/audit"
	"github.com/GyroZepelix/cornerstone/internal/entity"
	"github.com/GyroZepelix/cornerstone/internal/query"
)

// ContentType is the shared taxonomy collection.
const ContentType = "category"

// Kind discriminates true categories from status-like tags.
type Kind string

const (
	KindCategory Kind = "category"
	KindStatus   Kind = "status"
)

// Resolver looks up category ids by slug or name. It is safe for
// concurrent use; find-or-create is not atomic, so two concurrent writes of
// the same new name may create two rows.
type Resolver struct {
	store entity.Store
	audit audit.Logger
	log   zerolog.Logger
}

// NewResolver creates a Resolver over the entity store.
func NewResolver(store entity.Store, auditLog audit.Logger, log zerolog.Logger) *Resolver {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &Resolver{store: store, audit: auditLog, log: log}
}

// reference is one decoded candidate.
type reference struct {
	id    int64
	hasID bool
	text  string
}

// Candidates splits a reference into independent candidates. Strings are
// split on commas; lists are flattened; objects and numbers are kept whole.
func Candidates(ref any) []any {
	switch v := ref.(type) {
	case nil:
		return nil
	case string:
		parts := query.Split(v)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	case []string:
		var out []any
		for _, s := range v {
			out = append(out, Candidates(s)...)
		}
		return out
	case []any:
		var out []any
		for _, item := range v {
			out = append(out, Candidates(item)...)
		}
		return out
	}
	return []any{ref}
}

// decode reads one candidate. Objects use id, then slug, then name.
func decode(v any) (reference, bool) {
	switch t := v.(type) {
	case map[string]any:
		if id, ok := t["id"]; ok && id != nil {
			return decode(id)
		}
		for _, key := range []string{"slug", "name"} {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				return reference{text: strings.TrimSpace(s)}, true
			}
		}
		return reference{}, false
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return reference{}, false
		}
		if isDigits(s) {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return reference{}, false
			}
			return reference{id: id, hasID: true}, true
		}
		return reference{text: s}, true
	case int:
		return reference{id: int64(t), hasID: true}, true
	case int64:
		return reference{id: t, hasID: true}, true
	case float64:
		if t != float64(int64(t)) {
			return reference{}, false
		}
		return reference{id: int64(t), hasID: true}, true
	}
	return reference{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Lookup resolves a single reference without writing. The bool is false
// when nothing matches.
func (r *Resolver) Lookup(ctx context.Context, kind Kind, ref any) (int64, bool, error) {
	c, ok := decode(ref)
	if !ok {
		return 0, false, nil
	}
	if c.hasID {
		return c.id, true, nil
	}
	return r.lookupText(ctx, kind, c.text)
}

func (r *Resolver) lookupText(ctx context.Context, kind Kind, text string) (int64, bool, error) {
	for _, field := range []string{"slug", "name"} {
		id, ok, err := r.findBy(ctx, kind, field, text)
		if err != nil || ok {
			return id, ok, err
		}
	}
	return 0, false, nil
}

func (r *Resolver) findBy(ctx context.Context, kind Kind, field, value string) (int64, bool, error) {
	page, err := r.store.FindMany(ctx, ContentType, entity.Query{
		Filters: entity.AndOf(
			entity.Eq("type", string(kind)),
			entity.Cond{Field: field, Op: entity.OpEqi, Value: value},
		),
		Sort:             []entity.SortField{{Field: "id"}},
		Pagination:       entity.Pagination{Page: 1, PageSize: 1},
		Fields:           []string{"id"},
		PublicationState: entity.PublicationPreview,
	})
	if err != nil {
		return 0, false, fmt.Errorf("looking up %s by %s: %w", kind, field, err)
	}
	if len(page.Results) == 0 {
		return 0, false, nil
	}
	id, ok := page.Results[0]["id"].(int64)
	return id, ok, nil
}

// LookupAll resolves every candidate of ref independently and drops the
// unresolvable ones.
func (r *Resolver) LookupAll(ctx context.Context, kind Kind, ref any) ([]int64, error) {
	var ids []int64
	for _, c := range Candidates(ref) {
		id, ok, err := r.Lookup(ctx, kind, c)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = appendUnique(ids, id)
		}
	}
	return ids, nil
}

// Filter builds field $in [ids] for ref. When no candidate resolves the
// result is entity.None(), so the listing is empty rather than unfiltered.
func (r *Resolver) Filter(ctx context.Context, kind Kind, field string, ref any) (entity.Filter, error) {
	ids, err := r.LookupAll(ctx, kind, ref)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return entity.None(), nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return entity.In(field, values...), nil
}

// FindOrCreate resolves ref and creates the category when a name or slug
// has no match. It is for write paths only.
func (r *Resolver) FindOrCreate(ctx context.Context, kind Kind, ref any) (int64, bool, error) {
	c, ok := decode(ref)
	if !ok {
		return 0, false, nil
	}
	if c.hasID {
		return c.id, true, nil
	}
	id, found, err := r.lookupText(ctx, kind, c.text)
	if err != nil || found {
		return id, found, err
	}
	return r.create(ctx, kind, c.text)
}

// FindOrCreateAll applies FindOrCreate to every candidate of ref.
func (r *Resolver) FindOrCreateAll(ctx context.Context, kind Kind, ref any) ([]int64, error) {
	var ids []int64
	for _, c := range Candidates(ref) {
		id, ok, err := r.FindOrCreate(ctx, kind, c)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = appendUnique(ids, id)
		}
	}
	return ids, nil
}

func (r *Resolver) create(ctx context.Context, kind Kind, name string) (int64, bool, error) {
	s, err := slug.Normalize(name)
	if err != nil || s == "" {
		r.log.Debug().Str("name", name).Msg("category name has no usable slug, skipping")
		return 0, false, nil
	}
	created, err := r.store.Create(ctx, ContentType, map[string]any{
		"name": name,
		"slug": s,
		"type": string(kind),
	})
	if err != nil {
		return 0, false, fmt.Errorf("creating %s %q: %w", kind, name, err)
	}
	id, _ := created["id"].(int64)

	r.log.Info().Int64("id", id).Str("name", name).Str("slug", s).Str("type", string(kind)).Msg("category created")
	r.audit.Log(ctx, audit.Event{
		Action:      "category.create",
		ContentType: ContentType,
		EntryID:     id,
		Payload:     map[string]any{"name": name, "slug": s, "type": string(kind)},
	})
	return id, true, nil
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
