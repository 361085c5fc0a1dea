package controller

import (
	"errors"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/GyroZepelix/cornerstone/internal/schema"
)

func schemaNamed(t *testing.T, name string) schema.ContentType {
	t.Helper()
	for _, ct := range loadTestSchemas(t) {
		if ct.Name == name {
			return ct
		}
	}
	t.Fatalf("no schema %q", name)
	return schema.ContentType{}
}

func TestValidatePayload(t *testing.T) {
	category := schemaNamed(t, "category")
	project := schemaNamed(t, "project")
	jobs := schemaNamed(t, "job_opening")
	portfolio := schemaNamed(t, "portfolio_hero")

	tests := []struct {
		name      string
		ct        schema.ContentType
		data      map[string]any
		isUpdate  bool
		badFields []string
	}{
		{"valid category", category, map[string]any{"name": "Retail", "slug": "retail", "type": "category"}, false, nil},
		{"required on create", category, map[string]any{"slug": "retail"}, false, []string{"name"}},
		{"null required", category, map[string]any{"name": nil}, false, []string{"name"}},
		{"required skipped on update", category, map[string]any{"slug": "retail"}, true, nil},
		{"slug pattern", category, map[string]any{"name": "Retail", "slug": "Not A Slug"}, false, []string{"slug"}},
		{"enum", category, map[string]any{"name": "Retail", "type": "tag"}, false, []string{"type"}},
		{"system fields", category, map[string]any{"id": 4, "name": "Retail", "publishedAt": nil}, false, nil},
		{"unknown field", category, map[string]any{"name": "Retail", "colour": "red"}, false, []string{"colour"}},
		{"boolean", project, map[string]any{"title": "T", "isFeatured": "yes"}, false, []string{"isFeatured"}},
		{"date", jobs, map[string]any{"position": "P", "date_posted": "15/06/2026"}, false, []string{"date_posted"}},
		{"valid date", jobs, map[string]any{"position": "P", "valid_through": "2026-12-31"}, false, nil},
		{"negative salary", jobs, map[string]any{"position": "P", "base_salary": -10.5}, false, []string{"base_salary"}},
		{"single media takes one ref", project, map[string]any{"title": "T", "image": []any{int64(1), int64(2)}}, false, []string{"image"}},
		{"media object ref", project, map[string]any{"title": "T", "image": map[string]any{"id": int64(3)}}, false, nil},
		{"relation ids", project, map[string]any{"title": "T", "categories": []any{int64(1), "x"}}, false, []string{"categories"}},
		{"title too long", project, map[string]any{"title": strings.Repeat("x", 256)}, false, []string{"title"}},
		{"component item", portfolio, map[string]any{"heroBanners": []any{map[string]any{"title": "A", "bannerImage": int64(1)}}}, false, nil},
		{"component unknown sub field", portfolio, map[string]any{"heroBanners": []any{map[string]any{"colour": "red"}}}, false, []string{"heroBanners"}},
		{"component not a list", portfolio, map[string]any{"heroBanners": map[string]any{"title": "A"}}, false, []string{"heroBanners"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePayload(tc.ct, tc.data, tc.isUpdate)
			if len(tc.badFields) == 0 {
				if err != nil {
					t.Fatalf("validatePayload() error: %v", err)
				}
				return
			}

			var ge *goerrors.Error
			if !errors.As(err, &ge) {
				t.Fatalf("expected *goerrors.Error, got %v", err)
			}
			if ge.Category != goerrors.CategoryValidation {
				t.Errorf("category = %v, want validation", ge.Category)
			}
			got := map[string]bool{}
			for _, fe := range ge.ValidationErrors {
				got[fe.Field] = true
			}
			for _, f := range tc.badFields {
				if !got[f] {
					t.Errorf("missing error for %q in %+v", f, ge.ValidationErrors)
				}
			}
			if len(got) != len(tc.badFields) {
				t.Errorf("got errors for %v, want %v", got, tc.badFields)
			}
		})
	}
}

func TestSanitizer(t *testing.T) {
	s := newSanitizer()
	ct := schemaNamed(t, "job_opening")

	in := map[string]any{
		"position":    "<i>Lead</i>",
		"description": `<p onclick="x()">Build things</p><script>alert(1)</script>`,
		"base_salary": 10.0,
	}
	out := s.apply(ct, in)

	if out["position"] != "<i>Lead</i>" {
		t.Errorf("string field changed: %q", out["position"])
	}
	if out["description"] != "<p>Build things</p>" {
		t.Errorf("description = %q", out["description"])
	}
	if in["description"] == out["description"] {
		t.Error("input map was modified or not sanitized")
	}
	if out["base_salary"] != 10.0 {
		t.Errorf("base_salary = %v", out["base_salary"])
	}
}
