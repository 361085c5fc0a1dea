package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/GyroZepelix/cornerstone/internal/schema"
)

// Store is the entity service consumed by controllers.
type Store interface {
	FindMany(ctx context.Context, contentType string, q Query) (Page, error)
	FindOne(ctx context.Context, contentType string, id int64, q Query) (Entry, error)
	Create(ctx context.Context, contentType string, data map[string]any) (Entry, error)
	Update(ctx context.Context, contentType string, id int64, data map[string]any) (Entry, error)
}

// MediaLookup resolves media ids to asset records ({id, name, url, mime,
// size, width, height, formats}). Missing ids are absent from the result.
type MediaLookup interface {
	LookupMedia(ctx context.Context, ids []int64) (map[int64]map[string]any, error)
}

// record is the stored form of an entry shared by both stores.
type record struct {
	ID          int64
	ContentType string
	Attrs       map[string]any
	Relations   map[string][]int64
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// entry renders the record as a flat Entry. Media, relation and component
// fields are left out; populate adds them back on request. A non-empty
// fields list restricts the scalar attributes.
func (r *record) entry(ct schema.ContentType, fields []string) Entry {
	e := Entry{"id": r.ID}

	keep := func(string) bool { return true }
	if len(fields) > 0 {
		set := make(map[string]bool, len(fields))
		for _, f := range fields {
			set[f] = true
		}
		keep = func(name string) bool { return set[name] }
	}

	for _, f := range ct.Fields {
		switch f.Type {
		case schema.FieldTypeMedia, schema.FieldTypeRelation, schema.FieldTypeComponent:
			continue
		}
		if !keep(f.Name) {
			continue
		}
		if v, ok := r.Attrs[f.Name]; ok {
			e[f.Name] = v
		} else {
			e[f.Name] = nil
		}
	}

	if keep("createdAt") {
		e["createdAt"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if keep("updatedAt") {
		e["updatedAt"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if ct.DraftAndPublish && keep("publishedAt") {
		if r.PublishedAt != nil {
			e["publishedAt"] = r.PublishedAt.UTC().Format(time.RFC3339Nano)
		} else {
			e["publishedAt"] = nil
		}
	}
	return e
}

// fieldRef is a resolved filter or sort path.
type fieldRef struct {
	// system is the system attribute name, or empty for schema fields.
	system string
	field  schema.Field

	// relation is set for relation paths; rest is the path on the target.
	relation *schema.Field
	rest     string
}

// fieldType returns the scalar type used to compare values of the ref.
func (f fieldRef) fieldType() schema.FieldType {
	switch f.system {
	case "":
		return f.field.Type
	case "id":
		return schema.FieldTypeInt
	default:
		return schema.FieldTypeDateTime
	}
}

func resolveField(ct schema.ContentType, path string) (fieldRef, error) {
	head, rest, nested := strings.Cut(path, ".")
	if schema.SystemAttributes[head] {
		if nested {
			return fieldRef{}, invalidQuery("%s: %q has no nested fields", ct.Name, head)
		}
		return fieldRef{system: head}, nil
	}
	f, ok := ct.Field(head)
	if !ok {
		return fieldRef{}, invalidQuery("%s has no field %q", ct.Name, head)
	}
	if f.Type == schema.FieldTypeRelation {
		if !nested {
			rest = "id"
		}
		return fieldRef{field: f, relation: &f, rest: rest}, nil
	}
	if nested {
		return fieldRef{}, invalidQuery("%s: field %q is not a relation", ct.Name, head)
	}
	switch f.Type {
	case schema.FieldTypeMedia, schema.FieldTypeComponent, schema.FieldTypeJSON:
		return fieldRef{}, invalidQuery("%s: field %q cannot be filtered or sorted", ct.Name, head)
	}
	return fieldRef{field: f}, nil
}

// toInt64 converts numeric ids from JSON, query strings or Go values.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// toFloat converts numeric values, including numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// toBool accepts booleans and their "true"/"false" text forms.
func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// toText renders a value in the canonical text form for its field type.
// Dates render as YYYY-MM-DD and datetimes as RFC 3339, so lexical
// comparison matches chronological order.
func toText(ft schema.FieldType, v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if ft == schema.FieldTypeDate {
			return t.UTC().Format(time.DateOnly)
		}
		return t.UTC().Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// toSlice flattens any slice value into []any.
func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// refID extracts an id from a number, numeric string or {id: ...} object.
func refID(v any) (int64, bool) {
	if m, ok := v.(map[string]any); ok {
		return toInt64(m["id"])
	}
	return toInt64(v)
}

// refIDs extracts ids from a single reference or a list of references.
// Unusable references are reported as an error.
func refIDs(v any) ([]int64, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := toSlice(v)
	if !ok {
		items = []any{v}
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, ok := refID(item)
		if !ok {
			return nil, invalidQuery("invalid reference %v", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// write is a payload split into stored attributes and relation ids.
type write struct {
	attrs       map[string]any
	relations   map[string][]int64
	publish     *bool
	publishedAt *time.Time
}

// splitWrite normalizes a create or update payload. Media references are
// stored as ids, relation references go to the relation table, and unknown
// keys are rejected.
func splitWrite(ct schema.ContentType, data map[string]any) (write, error) {
	w := write{attrs: map[string]any{}, relations: map[string][]int64{}}

	for key, value := range data {
		switch key {
		case "id", "createdAt", "updatedAt":
			continue
		case "publishedAt":
			publish := value != nil
			w.publish = &publish
			if s, ok := value.(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					w.publishedAt = &t
				}
			}
			continue
		}

		f, ok := ct.Field(key)
		if !ok {
			return write{}, invalidQuery("%s has no field %q", ct.Name, key)
		}

		switch f.Type {
		case schema.FieldTypeRelation:
			ids, err := refIDs(value)
			if err != nil {
				return write{}, fmt.Errorf("%s.%s: %w", ct.Name, key, err)
			}
			if !f.IsMany() && len(ids) > 1 {
				return write{}, invalidQuery("%s.%s takes a single reference", ct.Name, key)
			}
			w.relations[key] = ids
		case schema.FieldTypeMedia:
			m, err := mediaValue(f, value)
			if err != nil {
				return write{}, fmt.Errorf("%s.%s: %w", ct.Name, key, err)
			}
			w.attrs[key] = m
		case schema.FieldTypeComponent:
			c, err := componentValue(f, value)
			if err != nil {
				return write{}, fmt.Errorf("%s.%s: %w", ct.Name, key, err)
			}
			w.attrs[key] = c
		default:
			w.attrs[key] = value
		}
	}
	return w, nil
}

func mediaValue(f schema.Field, value any) (any, error) {
	ids, err := refIDs(value)
	if err != nil {
		return nil, err
	}
	if f.IsMany() {
		return ids, nil
	}
	switch len(ids) {
	case 0:
		return nil, nil
	case 1:
		return ids[0], nil
	}
	return nil, invalidQuery("%s takes a single media reference", f.Name)
}

func componentValue(f schema.Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	one := func(v any) (map[string]any, error) {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, invalidQuery("%s expects an object", f.Name)
		}
		out := make(map[string]any, len(m))
		for key, sub := range m {
			if key == "id" {
				continue
			}
			sf, ok := f.SubField(key)
			if !ok {
				return nil, invalidQuery("%s has no field %q", f.Name, key)
			}
			if sf.Type == schema.FieldTypeMedia {
				mv, err := mediaValue(sf, sub)
				if err != nil {
					return nil, err
				}
				out[key] = mv
				continue
			}
			out[key] = sub
		}
		return out, nil
	}

	if !f.Repeatable {
		return one(value)
	}
	items, ok := toSlice(value)
	if !ok {
		return nil, invalidQuery("%s expects a list", f.Name)
	}
	list := make([]any, 0, len(items))
	for _, item := range items {
		c, err := one(item)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, nil
}

// schemaFor looks up a content type or returns ErrUnknownContentType.
func schemaFor(schemas map[string]schema.ContentType, name string) (schema.ContentType, error) {
	ct, ok := schemas[name]
	if !ok {
		return schema.ContentType{}, fmt.Errorf("%w: %q", ErrUnknownContentType, name)
	}
	return ct, nil
}
