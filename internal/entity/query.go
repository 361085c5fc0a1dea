// Package entity is the persistence boundary for content entries. It defines
// the structured query (filters, sort, pagination, populate, fields) and the
// Store contract, with a PostgreSQL and an in-memory implementation.
package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Entry is a flat content entry: id, schema attributes, populated relations
// and media, and the createdAt/updatedAt/publishedAt timestamps.
type Entry = map[string]any

var (
	// ErrNotFound is returned when no entry exists with the requested id.
	ErrNotFound = errors.New("entry not found")

	// ErrUnknownContentType is returned for a content type with no schema.
	ErrUnknownContentType = errors.New("unknown content type")

	// ErrInvalidQuery is returned when a filter, sort or populate refers to
	// a field the content type does not have, or uses an unusable value.
	ErrInvalidQuery = errors.New("invalid query")
)

func invalidQuery(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// Op is a filter operator.
type Op string

// Supported filter operators.
const (
	OpEq        Op = "$eq"
	OpEqi       Op = "$eqi"
	OpNe        Op = "$ne"
	OpIn        Op = "$in"
	OpContainsi Op = "$containsi"
	OpGt        Op = "$gt"
	OpGte       Op = "$gte"
	OpLt        Op = "$lt"
	OpLte       Op = "$lte"
)

// Filter is a node of the filter tree: Cond, And or Or.
type Filter interface {
	isFilter()
}

// Cond tests a single field. Field is an attribute name, a system attribute
// (id, createdAt, updatedAt, publishedAt) or a relation path such as
// categories.id.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// And matches when every child matches. An empty And matches everything.
type And []Filter

// Or matches when any child matches. An empty Or matches nothing.
type Or []Filter

func (Cond) isFilter() {}
func (And) isFilter()  {}
func (Or) isFilter()   {}

// Eq builds a field $eq value condition.
func Eq(field string, value any) Cond { return Cond{Field: field, Op: OpEq, Value: value} }

// In builds a field $in values condition.
func In(field string, values ...any) Cond {
	if values == nil {
		values = []any{}
	}
	return Cond{Field: field, Op: OpIn, Value: values}
}

// None is the impossible condition id $in [] used to fail closed.
func None() Filter { return In("id") }

// AndOf combines filters, dropping nils. A single remaining filter is
// returned as is.
func AndOf(filters ...Filter) Filter {
	var out And
	for _, f := range filters {
		if f == nil {
			continue
		}
		if nested, ok := f.(And); ok {
			out = append(out, nested...)
			continue
		}
		out = append(out, f)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

func (s SortField) String() string {
	if s.Desc {
		return s.Field + ":desc"
	}
	return s.Field + ":asc"
}

// ParseSort parses "field:asc,other:desc". The direction defaults to asc.
func ParseSort(raw string) ([]SortField, error) {
	var out []SortField
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, _ := strings.Cut(part, ":")
		sf := SortField{Field: strings.TrimSpace(field)}
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "", "asc":
		case "desc":
			sf.Desc = true
		default:
			return nil, invalidQuery("sort direction %q", dir)
		}
		if sf.Field == "" {
			return nil, invalidQuery("empty sort field")
		}
		out = append(out, sf)
	}
	return out, nil
}

// Pagination selects a window of results, either page based or, when
// Offset is set, start/limit based.
type Pagination struct {
	Page     int
	PageSize int

	Offset bool
	Start  int
	Limit  int
}

// Defaults for page based pagination.
const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// bounds returns the SQL style offset and limit.
func (p Pagination) bounds() (offset, limit int) {
	if p.Offset {
		limit = p.Limit
		if limit <= 0 {
			limit = DefaultPageSize
		}
		if limit > MaxPageSize {
			limit = MaxPageSize
		}
		start := p.Start
		if start < 0 {
			start = 0
		}
		return start, limit
	}
	page, size := p.Page, p.PageSize
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return (page - 1) * size, size
}

// PublicationState selects published entries (live) or all (preview).
type PublicationState string

// Publication states.
const (
	PublicationLive    PublicationState = "live"
	PublicationPreview PublicationState = "preview"
)

// Query is the structured query passed to a Store.
type Query struct {
	Filters          Filter
	Sort             []SortField
	Pagination       Pagination
	Populate         []string
	Fields           []string
	PublicationState PublicationState
}

// PopulateAll reports whether populate contains "*".
func (q Query) PopulateAll() bool {
	for _, p := range q.Populate {
		if p == "*" {
			return true
		}
	}
	return false
}

// PageInfo describes the window returned by FindMany.
type PageInfo struct {
	Page      int
	PageSize  int
	PageCount int
	Total     int

	Offset bool
	Start  int
	Limit  int
}

func newPageInfo(p Pagination, total int) PageInfo {
	offset, limit := p.bounds()
	info := PageInfo{Total: total, Offset: p.Offset}
	if p.Offset {
		info.Start = offset
		info.Limit = limit
		return info
	}
	info.PageSize = limit
	info.Page = offset/limit + 1
	info.PageCount = (total + limit - 1) / limit
	return info
}

// Page is the result of FindMany.
type Page struct {
	Results    []Entry
	Pagination PageInfo
}
