// Package query turns raw HTTP query parameters into an entity.Query.
//
// Supported parameters:
//
//	page, pageSize, limit                 page pagination (limit aliases pageSize)
//	pagination[page], pagination[pageSize]
//	pagination[start], pagination[limit]  offset pagination
//	sort=field:asc,other:desc             also sort[0]=...
//	populate=*, populate=a,b              also populate[0]=a, populate[a]=...
//	fields=a,b                            also fields[0]=a
//	filters[field][$op]=value             relation paths: filters[categories][slug][$eq]
//	publicationState=live|preview
package query

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/GyroZepelix/cornerstone/internal/entity"
)

// ErrInvalidParam marks a malformed query parameter. It maps to HTTP 400 and
// is returned before any data access.
var ErrInvalidParam = errors.New("invalid query parameter")

func invalid(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParam, name, fmt.Sprintf(format, args...))
}

// ParseParams parses the generic parameters. Unknown parameters are ignored
// so that per-type normalizers can read them from the same values.
func ParseParams(values url.Values) (entity.Query, error) {
	q := entity.Query{PublicationState: entity.PublicationLive}

	if err := parsePagination(values, &q.Pagination); err != nil {
		return entity.Query{}, err
	}

	sortRaw := strings.Join(Multi(values, "sort"), ",")
	if sortRaw != "" {
		fields, err := entity.ParseSort(sortRaw)
		if err != nil {
			return entity.Query{}, invalid("sort", "%v", err)
		}
		q.Sort = fields
	}

	q.Populate = parsePopulate(values)
	q.Fields = Multi(values, "fields")

	switch state := values.Get("publicationState"); state {
	case "", string(entity.PublicationLive):
	case string(entity.PublicationPreview):
		q.PublicationState = entity.PublicationPreview
	default:
		return entity.Query{}, invalid("publicationState", "unknown state %q", state)
	}

	filters, err := parseFilters(values)
	if err != nil {
		return entity.Query{}, err
	}
	q.Filters = filters

	return q, nil
}

func parsePagination(values url.Values, p *entity.Pagination) error {
	p.Page = 1
	p.PageSize = entity.DefaultPageSize

	for _, name := range []string{"page", "pagination[page]"} {
		if raw, ok := lookup(values, name); ok {
			n, err := PositiveInt(name, raw)
			if err != nil {
				return err
			}
			p.Page = n
		}
	}
	for _, name := range []string{"pageSize", "limit", "pagination[pageSize]"} {
		if raw, ok := lookup(values, name); ok {
			n, err := PositiveInt(name, raw)
			if err != nil {
				return err
			}
			p.PageSize = min(n, entity.MaxPageSize)
		}
	}

	start, hasStart := lookup(values, "pagination[start]")
	limit, hasLimit := lookup(values, "pagination[limit]")
	if hasStart || hasLimit {
		p.Offset = true
		p.Limit = entity.DefaultPageSize
		if hasStart {
			n, err := NonNegativeInt("pagination[start]", start)
			if err != nil {
				return err
			}
			p.Start = n
		}
		if hasLimit {
			n, err := PositiveInt("pagination[limit]", limit)
			if err != nil {
				return err
			}
			p.Limit = min(n, entity.MaxPageSize)
		}
	}
	return nil
}

// PositiveInt parses a strictly positive integer parameter.
func PositiveInt(name, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalid(name, "%q is not a number", raw)
	}
	if n <= 0 {
		return 0, invalid(name, "must be greater than 0, got %d", n)
	}
	return n, nil
}

// NonNegativeInt parses an integer parameter that may be zero.
func NonNegativeInt(name, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, invalid(name, "%q is not a number", raw)
	}
	if n < 0 {
		return 0, invalid(name, "must not be negative, got %d", n)
	}
	return n, nil
}

func parsePopulate(values url.Values) []string {
	out := Multi(values, "populate")
	for key := range values {
		// populate[image]=true, populate[heroBanners][populate]=bannerImage
		if !strings.HasPrefix(key, "populate[") {
			continue
		}
		segs, ok := brackets(key)
		if !ok || len(segs) < 2 || isIndex(segs[1]) {
			continue
		}
		out = append(out, segs[1])
	}
	return dedupe(out)
}

// parseFilters reads filters[path...][$op]=value parameters. $in takes
// indexed or repeated values.
func parseFilters(values url.Values) (entity.Filter, error) {
	keys := make([]string, 0)
	for key := range values {
		if strings.HasPrefix(key, "filters[") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var conds []entity.Filter
	inValues := map[string][]any{}
	var inOrder []string

	for _, key := range keys {
		segs, ok := brackets(key)
		if !ok || len(segs) < 3 {
			return nil, invalid(key, "expected filters[field][$op]")
		}
		segs = segs[1:]
		if n := len(segs); n >= 2 && segs[n-2] == string(entity.OpIn) && isIndex(segs[n-1]) {
			segs = segs[:n-1]
		}
		op := entity.Op(segs[len(segs)-1])
		path := segs[:len(segs)-1]
		if !knownOp(op) {
			return nil, invalid(key, "unsupported operator %q", op)
		}
		for _, p := range path {
			if p == "" || strings.HasPrefix(p, "$") {
				return nil, invalid(key, "unsupported filter path")
			}
		}
		field := strings.Join(path, ".")

		if op == entity.OpIn {
			if _, seen := inValues[field]; !seen {
				inOrder = append(inOrder, field)
			}
			for _, v := range values[key] {
				for _, part := range Split(v) {
					inValues[field] = append(inValues[field], part)
				}
			}
			continue
		}
		conds = append(conds, entity.Cond{Field: field, Op: op, Value: values.Get(key)})
	}
	for _, field := range inOrder {
		conds = append(conds, entity.In(field, inValues[field]...))
	}
	return entity.AndOf(conds...), nil
}

func knownOp(op entity.Op) bool {
	switch op {
	case entity.OpEq, entity.OpEqi, entity.OpNe, entity.OpIn, entity.OpContainsi,
		entity.OpGt, entity.OpGte, entity.OpLt, entity.OpLte:
		return true
	}
	return false
}

// brackets splits "a[b][c]" into [a b c].
func brackets(key string) ([]string, bool) {
	head, rest, ok := strings.Cut(key, "[")
	if !ok {
		return []string{key}, true
	}
	segs := []string{head}
	rest = "[" + rest
	for rest != "" {
		if rest[0] != '[' {
			return nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, false
		}
		segs = append(segs, rest[1:end])
		rest = rest[end+1:]
	}
	return segs, true
}

func isIndex(s string) bool {
	if s == "" {
		return true
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// lookup returns the first value of name. A blank value counts as absent,
// so ?limit= falls back to the default.
func lookup(values url.Values, name string) (string, bool) {
	vs := values[name]
	if len(vs) == 0 || strings.TrimSpace(vs[0]) == "" {
		return "", false
	}
	return vs[0], true
}

// Multi collects the values of name, name[] and name[n], splitting each on
// commas and dropping empty parts.
func Multi(values url.Values, name string) []string {
	type indexed struct {
		idx int
		val string
	}
	var ordered []indexed
	var out []string

	for _, v := range values[name] {
		out = append(out, Split(v)...)
	}
	for _, v := range values[name+"[]"] {
		out = append(out, Split(v)...)
	}
	for key, vs := range values {
		if !strings.HasPrefix(key, name+"[") || key == name+"[]" {
			continue
		}
		segs, ok := brackets(key)
		if !ok || len(segs) != 2 {
			continue
		}
		idx, err := strconv.Atoi(segs[1])
		if err != nil {
			continue
		}
		for _, v := range vs {
			ordered = append(ordered, indexed{idx: idx, val: v})
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].idx < ordered[j].idx })
	for _, o := range ordered {
		out = append(out, Split(o.val)...)
	}
	return out
}

// Split splits a comma separated value, trimming and dropping empty parts.
func Split(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// First returns the name and value of the first present, non-empty
// parameter in names.
func First(values url.Values, names ...string) (string, string, bool) {
	for _, name := range names {
		if vs := Multi(values, name); len(vs) > 0 {
			return name, strings.Join(vs, ","), true
		}
	}
	return "", "", false
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
