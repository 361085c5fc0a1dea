package envelope

import (
	"reflect"
	"testing"
)

func mark(item map[string]any) map[string]any {
	out := make(map[string]any, len(item)+1)
	for k, v := range item {
		out[k] = v
	}
	out["seen"] = true
	return out
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data any
		want Shape
	}{
		{"nil", nil, ShapeEmpty},
		{"nil map", map[string]any(nil), ShapeEmpty},
		{"list", []any{map[string]any{"id": 1}}, ShapeList},
		{"typed list", []map[string]any{}, ShapeList},
		{"empty list", []any{}, ShapeList},
		{"item", map[string]any{"id": 1}, ShapeItem},
		{"results", map[string]any{"results": []any{}, "pagination": map[string]any{}}, ShapeResults},
		{"results not a list", map[string]any{"results": "x"}, ShapeItem},
		{"scalar", "x", ShapeEmpty},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Detect(tc.data); got != tc.want {
				t.Errorf("Detect() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMapItems_PreservesShape(t *testing.T) {
	item := func(id int) map[string]any { return map[string]any{"id": id} }
	mapped := func(id int) map[string]any { return map[string]any{"id": id, "seen": true} }

	t.Run("list", func(t *testing.T) {
		got := MapItems([]any{item(1), item(2)}, mark)
		want := []any{mapped(1), mapped(2)}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("typed list", func(t *testing.T) {
		got := MapItems([]map[string]any{item(1)}, mark)
		want := []map[string]any{mapped(1)}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("item", func(t *testing.T) {
		got := MapItems(item(3), mark)
		if !reflect.DeepEqual(got, mapped(3)) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("results wrapper", func(t *testing.T) {
		pagination := map[string]any{"page": 1, "pageSize": 25, "total": 2}
		in := map[string]any{"results": []any{item(1), item(2)}, "pagination": pagination}

		got := MapItems(in, mark).(map[string]any)
		if !reflect.DeepEqual(got["results"], []any{mapped(1), mapped(2)}) {
			t.Errorf("results = %v", got["results"])
		}
		if !reflect.DeepEqual(got["pagination"], map[string]any{"page": 1, "pageSize": 25, "total": 2}) {
			t.Errorf("pagination changed: %v", got["pagination"])
		}
		if !reflect.DeepEqual(in["results"], []any{item(1), item(2)}) {
			t.Errorf("input modified: %v", in["results"])
		}
	})

	t.Run("empty list stays a list", func(t *testing.T) {
		got := MapItems([]any{}, mark)
		list, ok := got.([]any)
		if !ok || list == nil || len(list) != 0 {
			t.Errorf("got %#v, want empty non-nil list", got)
		}
	})

	t.Run("empty results wrapper", func(t *testing.T) {
		got := MapItems(map[string]any{"results": []any{}, "pagination": map[string]any{"total": 0}}, mark).(map[string]any)
		if list, ok := got["results"].([]any); !ok || len(list) != 0 {
			t.Errorf("results = %#v", got["results"])
		}
	})

	t.Run("nil", func(t *testing.T) {
		if got := MapItems(nil, mark); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})

	t.Run("non-map list entries kept", func(t *testing.T) {
		got := MapItems([]any{item(1), "x", nil}, mark)
		want := []any{mapped(1), "x", nil}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestFlatten(t *testing.T) {
	in := map[string]any{
		"id": 4,
		"attributes": map[string]any{
			"title": "Tower",
			"image": map[string]any{"data": map[string]any{
				"id":         9,
				"attributes": map[string]any{"url": "/uploads/a.jpg"},
			}},
			"categories": map[string]any{"data": []any{
				map[string]any{"id": 7, "attributes": map[string]any{"slug": "commercial"}},
			}},
			"cover": map[string]any{"data": nil},
			"meta":  map[string]any{"data": "raw", "other": 1},
		},
	}

	want := map[string]any{
		"id":         4,
		"title":      "Tower",
		"image":      map[string]any{"id": 9, "url": "/uploads/a.jpg"},
		"categories": []any{map[string]any{"id": 7, "slug": "commercial"}},
		"cover":      nil,
		"meta":       map[string]any{"data": "raw", "other": 1},
	}
	if got := Flatten(in); !reflect.DeepEqual(got, want) {
		t.Errorf("Flatten() = %v\nwant %v", got, want)
	}

	flat := map[string]any{"id": 1, "title": "x"}
	if got := Flatten(flat); !reflect.DeepEqual(got, flat) {
		t.Errorf("flat item changed: %v", got)
	}
}

func TestMapItemsWithFlatten(t *testing.T) {
	in := []any{map[string]any{"id": 1, "attributes": map[string]any{"name": "a"}}}
	got := MapItems(in, Flatten)
	want := []any{map[string]any{"id": 1, "name": "a"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
