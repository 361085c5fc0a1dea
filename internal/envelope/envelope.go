// Package envelope adapts the payload shapes produced by the entity layer
// so a single per-item transformation applies to lists, single items and
// paginated results wrappers alike.
package envelope

// Shape is the detected form of a response payload.
type Shape int

// Payload shapes.
const (
	ShapeEmpty Shape = iota
	ShapeList
	ShapeItem
	ShapeResults
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeItem:
		return "item"
	case ShapeResults:
		return "results"
	}
	return "empty"
}

// ItemFunc transforms one item. It must return a new map rather than
// modify its argument.
type ItemFunc func(item map[string]any) map[string]any

// Detect reports the shape of data. A map carrying a list under "results"
// is a results wrapper; any other map is a single item.
func Detect(data any) Shape {
	switch v := data.(type) {
	case []any, []map[string]any:
		return ShapeList
	case map[string]any:
		if v == nil {
			return ShapeEmpty
		}
		if _, ok := v["results"]; ok && isList(v["results"]) {
			return ShapeResults
		}
		return ShapeItem
	}
	return ShapeEmpty
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []map[string]any:
		return true
	}
	return false
}

// MapItems applies fn to every item of data and returns a value of the
// same shape. Sibling keys of a results wrapper (pagination and the like)
// are carried over untouched, an empty list stays an empty list, and
// values of unknown shape are returned as is.
func MapItems(data any, fn ItemFunc) any {
	switch Detect(data) {
	case ShapeList:
		return mapList(data, fn)
	case ShapeItem:
		return fn(data.(map[string]any))
	case ShapeResults:
		wrapper := data.(map[string]any)
		out := make(map[string]any, len(wrapper))
		for k, v := range wrapper {
			out[k] = v
		}
		out["results"] = mapList(wrapper["results"], fn)
		return out
	}
	return data
}

func mapList(list any, fn ItemFunc) any {
	switch items := list.(type) {
	case []map[string]any:
		out := make([]map[string]any, len(items))
		for i, item := range items {
			out[i] = fn(item)
		}
		return out
	case []any:
		out := make([]any, len(items))
		for i, item := range items {
			if m, ok := item.(map[string]any); ok {
				out[i] = fn(m)
				continue
			}
			out[i] = item
		}
		return out
	}
	return list
}

// Flatten converts an item in {id, attributes: {...}} form into a flat
// map. Related values wrapped as {data: ...} inside the attributes are
// unwrapped and flattened too. Flat items are returned unchanged.
func Flatten(item map[string]any) map[string]any {
	attrs, ok := item["attributes"].(map[string]any)
	if !ok {
		return item
	}
	out := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		out[k] = unwrap(v)
	}
	if id, ok := item["id"]; ok {
		out["id"] = id
	}
	return out
}

// unwrap resolves a {data: ...} relation wrapper.
func unwrap(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	data, ok := m["data"]
	if !ok {
		return v
	}
	switch d := data.(type) {
	case nil:
		return nil
	case map[string]any:
		return Flatten(d)
	case []any, []map[string]any:
		return mapList(d, Flatten)
	}
	return v
}
