package entity

import (
	"strings"

	"github.com/GyroZepelix/cornerstone/internal/schema"
)

// matcher evaluates filter trees against stored records for MemoryStore.
type matcher struct {
	schemas map[string]schema.ContentType
	lookup  func(id int64) *record
}

func (m *matcher) match(ct schema.ContentType, rec *record, f Filter) (bool, error) {
	switch node := f.(type) {
	case nil:
		return true, nil
	case And:
		for _, child := range node {
			ok, err := m.match(ct, rec, child)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, child := range node {
			ok, err := m.match(ct, rec, child)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Cond:
		return m.cond(ct, rec, node)
	}
	return false, invalidQuery("unsupported filter %T", f)
}

func (m *matcher) cond(ct schema.ContentType, rec *record, c Cond) (bool, error) {
	ref, err := resolveField(ct, c.Field)
	if err != nil {
		return false, err
	}

	if ref.relation != nil {
		target, err := schemaFor(m.schemas, ref.relation.RelatesTo)
		if err != nil {
			return false, err
		}
		inner := Cond{Field: ref.rest, Op: c.Op, Value: c.Value}
		if c.Op == OpNe {
			// No related entry may equal the value.
			inner.Op = OpEq
			for _, id := range rec.Relations[ref.relation.Name] {
				t := m.lookup(id)
				if t == nil {
					continue
				}
				ok, err := m.cond(target, t, inner)
				if err != nil {
					return false, err
				}
				if ok {
					return false, nil
				}
			}
			return true, nil
		}
		for _, id := range rec.Relations[ref.relation.Name] {
			t := m.lookup(id)
			if t == nil {
				continue
			}
			ok, err := m.cond(target, t, inner)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	return compare(ref.fieldType(), recordValue(rec, ref), c.Op, c.Value)
}

func recordValue(rec *record, ref fieldRef) any {
	switch ref.system {
	case "":
		return rec.Attrs[ref.field.Name]
	case "id":
		return rec.ID
	case "createdAt":
		return rec.CreatedAt
	case "updatedAt":
		return rec.UpdatedAt
	case "publishedAt":
		if rec.PublishedAt == nil {
			return nil
		}
		return *rec.PublishedAt
	}
	return nil
}

// compare applies op to a stored value and a filter value.
func compare(ft schema.FieldType, stored any, op Op, want any) (bool, error) {
	switch op {
	case OpEq:
		return equal(ft, stored, want), nil
	case OpNe:
		return !equal(ft, stored, want), nil
	case OpEqi:
		if stored == nil {
			return false, nil
		}
		return strings.EqualFold(toText(ft, stored), toText(ft, want)), nil
	case OpContainsi:
		if stored == nil {
			return false, nil
		}
		return strings.Contains(strings.ToLower(toText(ft, stored)), strings.ToLower(toText(ft, want))), nil
	case OpIn:
		values, ok := toSlice(want)
		if !ok {
			return false, invalidQuery("$in expects a list")
		}
		for _, v := range values {
			if equal(ft, stored, v) {
				return true, nil
			}
		}
		return false, nil
	case OpGt, OpGte, OpLt, OpLte:
		if stored == nil {
			return false, nil
		}
		c, ok := order(ft, stored, want)
		if !ok {
			return false, invalidQuery("cannot compare %v with %v", stored, want)
		}
		switch op {
		case OpGt:
			return c > 0, nil
		case OpGte:
			return c >= 0, nil
		case OpLt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	}
	return false, invalidQuery("unsupported operator %q", op)
}

func equal(ft schema.FieldType, stored, want any) bool {
	if stored == nil || want == nil {
		return stored == nil && want == nil
	}
	switch ft {
	case schema.FieldTypeInt, schema.FieldTypeFloat:
		a, ok1 := toFloat(stored)
		b, ok2 := toFloat(want)
		return ok1 && ok2 && a == b
	case schema.FieldTypeBoolean:
		a, ok1 := toBool(stored)
		b, ok2 := toBool(want)
		return ok1 && ok2 && a == b
	}
	return toText(ft, stored) == toText(ft, want)
}

// order returns -1, 0 or 1. Numbers compare numerically, everything else by
// canonical text.
func order(ft schema.FieldType, a, b any) (int, bool) {
	switch ft {
	case schema.FieldTypeInt, schema.FieldTypeFloat:
		x, ok1 := toFloat(a)
		y, ok2 := toFloat(b)
		if !ok1 || !ok2 {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case schema.FieldTypeBoolean:
		x, ok1 := toBool(a)
		y, ok2 := toBool(b)
		if !ok1 || !ok2 {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return strings.Compare(toText(ft, a), toText(ft, b)), true
}
