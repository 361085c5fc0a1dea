package entity

import (
	"fmt"
	"strings"

	"github.com/GyroZepelix/cornerstone/internal/schema"
)

// sqlBuilder compiles filter trees and sort lists into PostgreSQL over the
// entries table. Attribute names come from validated schemas and are quoted
// as literals; all values are bound parameters.
type sqlBuilder struct {
	schemas map[string]schema.ContentType
	args    []any
	aliases int
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *sqlBuilder) alias() string {
	b.aliases++
	return fmt.Sprintf("t%d", b.aliases)
}

// where compiles the content type restriction, publication state and filter
// tree for the entries table aliased as alias.
func (b *sqlBuilder) where(alias string, ct schema.ContentType, q Query) (string, error) {
	parts := []string{fmt.Sprintf("%s.content_type = %s", alias, b.arg(ct.Name))}
	if ct.DraftAndPublish && q.PublicationState == PublicationLive {
		parts = append(parts, alias+".published_at IS NOT NULL")
	}
	if q.Filters != nil {
		clause, err := b.filter(alias, ct, q.Filters)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	return strings.Join(parts, " AND "), nil
}

func (b *sqlBuilder) filter(alias string, ct schema.ContentType, f Filter) (string, error) {
	switch node := f.(type) {
	case And:
		return b.group(alias, ct, []Filter(node), " AND ", "TRUE")
	case Or:
		return b.group(alias, ct, []Filter(node), " OR ", "FALSE")
	case Cond:
		return b.cond(alias, ct, node)
	}
	return "", invalidQuery("unsupported filter %T", f)
}

func (b *sqlBuilder) group(alias string, ct schema.ContentType, children []Filter, sep, empty string) (string, error) {
	if len(children) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		clause, err := b.filter(alias, ct, child)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (b *sqlBuilder) cond(alias string, ct schema.ContentType, c Cond) (string, error) {
	ref, err := resolveField(ct, c.Field)
	if err != nil {
		return "", err
	}

	if ref.relation != nil {
		target, err := schemaFor(b.schemas, ref.relation.RelatesTo)
		if err != nil {
			return "", err
		}
		inner := Cond{Field: ref.rest, Op: c.Op, Value: c.Value}
		negate := c.Op == OpNe
		if negate {
			inner.Op = OpEq
		}
		rel := b.alias()
		t := b.alias()
		field := b.arg(ref.relation.Name)
		clause, err := b.cond(t, target, inner)
		if err != nil {
			return "", err
		}
		exists := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM entry_relations %[1]s JOIN entries %[2]s ON %[2]s.id = %[1]s.target_id WHERE %[1]s.entry_id = %[3]s.id AND %[1]s.field = %[4]s AND %[5]s)",
			rel, t, alias, field, clause,
		)
		if negate {
			return "NOT " + exists, nil
		}
		return exists, nil
	}

	ft := ref.fieldType()
	expr := columnExpr(alias, ref)
	cast := castFor(ft)

	switch c.Op {
	case OpEq:
		if c.Value == nil {
			return expr + " IS NULL", nil
		}
		v, err := sqlValue(ft, c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s%s", expr, b.arg(v), cast), nil
	case OpNe:
		if c.Value == nil {
			return expr + " IS NOT NULL", nil
		}
		v, err := sqlValue(ft, c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s IS DISTINCT FROM %s%s", expr, b.arg(v), cast), nil
	case OpEqi:
		return fmt.Sprintf("lower(%s::text) = lower(%s)", expr, b.arg(toText(ft, c.Value))), nil
	case OpContainsi:
		pattern := "%" + escapeLike(toText(ft, c.Value)) + "%"
		return fmt.Sprintf("%s::text ILIKE %s", expr, b.arg(pattern)), nil
	case OpIn:
		items, ok := toSlice(c.Value)
		if !ok {
			return "", invalidQuery("$in expects a list")
		}
		if len(items) == 0 {
			return "FALSE", nil
		}
		list, err := sqlList(ft, items)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = ANY(%s%s[])", expr, b.arg(list), cast), nil
	case OpGt, OpGte, OpLt, OpLte:
		v, err := sqlValue(ft, c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s%s", expr, comparison[c.Op], b.arg(v), cast), nil
	}
	return "", invalidQuery("unsupported operator %q", c.Op)
}

var comparison = map[Op]string{
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// orderBy compiles the sort list, always ending with the id tiebreaker.
func (b *sqlBuilder) orderBy(alias string, ct schema.ContentType, fields []SortField) (string, error) {
	parts := make([]string, 0, len(fields)+1)
	for _, sf := range fields {
		ref, err := resolveField(ct, sf.Field)
		if err != nil {
			return "", err
		}
		if ref.relation != nil {
			return "", invalidQuery("%s: cannot sort by relation %q", ct.Name, sf.Field)
		}
		dir := "ASC"
		if sf.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s NULLS LAST", columnExpr(alias, ref), dir))
	}
	parts = append(parts, alias+".id ASC")
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// columnExpr returns the typed SQL expression for a field.
func columnExpr(alias string, ref fieldRef) string {
	switch ref.system {
	case "id":
		return alias + ".id"
	case "createdAt":
		return alias + ".created_at"
	case "updatedAt":
		return alias + ".updated_at"
	case "publishedAt":
		return alias + ".published_at"
	}
	raw := fmt.Sprintf("(%s.attributes->>%s)", alias, quoteLiteral(ref.field.Name))
	if cast := castFor(ref.field.Type); cast != "" {
		return raw + cast
	}
	return raw
}

func castFor(ft schema.FieldType) string {
	switch ft {
	case schema.FieldTypeInt, schema.FieldTypeFloat:
		return "::numeric"
	case schema.FieldTypeBoolean:
		return "::boolean"
	case schema.FieldTypeDate:
		return "::date"
	case schema.FieldTypeDateTime:
		return "::timestamptz"
	}
	return ""
}

// sqlValue converts a filter value to the Go type bound for the field type.
func sqlValue(ft schema.FieldType, v any) (any, error) {
	switch ft {
	case schema.FieldTypeInt, schema.FieldTypeFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, invalidQuery("expected a number, got %v", v)
		}
		return f, nil
	case schema.FieldTypeBoolean:
		b, ok := toBool(v)
		if !ok {
			return nil, invalidQuery("expected a boolean, got %v", v)
		}
		return b, nil
	}
	return toText(ft, v), nil
}

func sqlList(ft schema.FieldType, items []any) (any, error) {
	switch ft {
	case schema.FieldTypeInt, schema.FieldTypeFloat:
		out := make([]float64, len(items))
		for i, item := range items {
			f, ok := toFloat(item)
			if !ok {
				return nil, invalidQuery("expected a number, got %v", item)
			}
			out[i] = f
		}
		return out, nil
	case schema.FieldTypeBoolean:
		out := make([]bool, len(items))
		for i, item := range items {
			v, err := sqlValue(ft, item)
			if err != nil {
				return nil, err
			}
			out[i] = v.(bool)
		}
		return out, nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = toText(ft, item)
	}
	return out, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
