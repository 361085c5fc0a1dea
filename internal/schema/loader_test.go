package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeYAML is a test helper that writes a YAML file into the given directory.
func writeYAML(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("writing test YAML file %s: %v", filename, err)
	}
}

// ----- LoadSchemas tests -----

func TestLoadSchemas_ProjectSchemas(t *testing.T) {
	schemas, err := LoadSchemas("../../schema")
	if err != nil {
		t.Fatalf("LoadSchemas() error: %v", err)
	}

	for i := 1; i < len(schemas); i++ {
		if schemas[i].Name < schemas[i-1].Name {
			t.Errorf("schemas not sorted: %q comes after %q", schemas[i].Name, schemas[i-1].Name)
		}
	}

	idx := Index(schemas)
	for _, name := range []string{"project", "category", "job_opening", "home_hero", "portfolio_hero", "team_member", "contact_detail", "press_item", "availability"} {
		if _, ok := idx[name]; !ok {
			t.Errorf("expected schema %q to be loaded", name)
		}
	}

	project := idx["project"]
	if project.RoutePath() != "projects" {
		t.Errorf("project.RoutePath() = %q, want %q", project.RoutePath(), "projects")
	}
	if project.Kind != KindCollection {
		t.Errorf("project.Kind = %q, want default %q", project.Kind, KindCollection)
	}
	categories, ok := project.Field("categories")
	if !ok {
		t.Fatal("project should have a categories field")
	}
	if categories.RelatesTo != "category" || categories.RelationType != RelationMany {
		t.Errorf("categories = %+v, want many relation to category", categories)
	}
	gallery, _ := project.Field("gallery")
	if !gallery.IsMany() {
		t.Error("project.gallery should be a multiple media field")
	}

	hero := idx["portfolio_hero"]
	if !hero.IsSingle() {
		t.Error("portfolio_hero should be a single type")
	}
	banners, ok := hero.Field("heroBanners")
	if !ok || banners.Type != FieldTypeComponent || !banners.Repeatable {
		t.Fatalf("heroBanners = %+v, want repeatable component", banners)
	}
	if sub, ok := banners.SubField("bannerImage"); !ok || sub.Type != FieldTypeMedia {
		t.Errorf("heroBanners.bannerImage = %+v, want media", sub)
	}
}

func TestLoadSchemas_HashIsComputedAndNonEmpty(t *testing.T) {
	schemas, err := LoadSchemas("../../schema")
	if err != nil {
		t.Fatalf("LoadSchemas() error: %v", err)
	}

	for _, ct := range schemas {
		if len(ct.SchemaHash) != 64 {
			t.Errorf("content type %q SchemaHash has length %d, want 64", ct.Name, len(ct.SchemaHash))
		}
	}
}

func TestLoadSchemas_EmptyDirectory(t *testing.T) {
	schemas, err := LoadSchemas(t.TempDir())
	if err != nil {
		t.Fatalf("LoadSchemas() error: %v", err)
	}
	if len(schemas) != 0 {
		t.Errorf("expected empty slice, got %d schemas", len(schemas))
	}
}

func TestLoadSchemas_MissingDirectory(t *testing.T) {
	_, err := LoadSchemas("/nonexistent/path/that/does/not/exist")
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestLoadSchemas_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "bad.yaml", "{{{{invalid yaml content")

	_, err := LoadSchemas(dir)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing YAML") {
		t.Errorf("error should mention YAML parsing, got: %v", err)
	}
}

func TestLoadSchemas_SkipsNonYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "valid.yml", `
name: test
display_name: Test
fields:
  - name: title
    type: string
`)
	writeYAML(t, dir, "readme.txt", "not a yaml schema")

	schemas, err := LoadSchemas(dir)
	if err != nil {
		t.Fatalf("LoadSchemas() error: %v", err)
	}
	if len(schemas) != 1 {
		t.Errorf("expected 1 schema, got %d", len(schemas))
	}
}

func TestLoadSchemas_UnknownYAMLFieldRejected(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "typo.yaml", `
name: test
display_name: Test
fields:
  - name: title
    type: string
    requred: true
`)

	if _, err := LoadSchemas(dir); err == nil {
		t.Fatal("expected error for misspelled field property")
	}
}

func TestLoadSchemas_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "press.yaml", `
name: press_item
fields:
  - name: title
    type: string
`)
	writeYAML(t, dir, "hero.yaml", `
name: home_hero
display_name: Homepage Hero
route: hero
kind: single
fields:
  - name: title
    type: string
`)

	schemas, err := LoadSchemas(dir)
	if err != nil {
		t.Fatalf("LoadSchemas() error: %v", err)
	}
	idx := Index(schemas)

	press := idx["press_item"]
	if press.Kind != KindCollection || press.Route != "press-item" || press.DisplayName != "Press Item" {
		t.Errorf("press_item defaults = kind %q route %q display %q", press.Kind, press.Route, press.DisplayName)
	}
	hero := idx["home_hero"]
	if hero.Kind != KindSingle || hero.Route != "hero" || hero.DisplayName != "Homepage Hero" {
		t.Errorf("home_hero = kind %q route %q display %q", hero.Kind, hero.Route, hero.DisplayName)
	}
	if err := ValidateSchemas(schemas); err != nil {
		t.Errorf("defaulted schemas should validate: %v", err)
	}
}

func TestLoadSchemas_Conflicts(t *testing.T) {
	tests := []struct {
		name    string
		first   string
		second  string
		wantErr string
	}{
		{
			name:    "duplicate name",
			first:   "name: thing\nfields:\n  - name: x\n    type: string\n",
			second:  "name: thing\nroute: other\nfields:\n  - name: x\n    type: string\n",
			wantErr: `content type "thing" in "b.yaml" is already defined in "a.yaml"`,
		},
		{
			name:    "duplicate route",
			first:   "name: thing\nroute: things\nfields:\n  - name: x\n    type: string\n",
			second:  "name: widget\nroute: things\nfields:\n  - name: x\n    type: string\n",
			wantErr: `route "things" in "b.yaml" is already used by "a.yaml"`,
		},
		{
			name:    "explicit route equals derived route",
			first:   "name: thing\nfields:\n  - name: x\n    type: string\n",
			second:  "name: gadget\nroute: thing\nfields:\n  - name: x\n    type: string\n",
			wantErr: `route "thing" in "b.yaml" is already used by "a.yaml"`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeYAML(t, dir, "a.yaml", tc.first)
			writeYAML(t, dir, "b.yaml", tc.second)

			_, err := LoadSchemas(dir)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("LoadSchemas() error = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

// ----- ValidateSchemas tests -----

func TestValidateSchemas_ProjectSchemas(t *testing.T) {
	schemas, err := LoadSchemas("../../schema")
	if err != nil {
		t.Fatalf("LoadSchemas() error: %v", err)
	}
	if err := ValidateSchemas(schemas); err != nil {
		t.Fatalf("ValidateSchemas() error: %v", err)
	}
}

func TestValidateSchemas_Problems(t *testing.T) {
	title := Field{Name: "title", Type: FieldTypeString}
	negative := -1

	tests := []struct {
		name    string
		ct      ContentType
		wantMsg string
	}{
		{
			name:    "missing name",
			ct:      ContentType{DisplayName: "X", Fields: []Field{title}},
			wantMsg: "name is required",
		},
		{
			name:    "uppercase type name",
			ct:      ContentType{Name: "Projects", DisplayName: "X", Fields: []Field{title}},
			wantMsg: "name must match",
		},
		{
			name:    "missing display name",
			ct:      ContentType{Name: "posts", Fields: []Field{title}},
			wantMsg: "display_name is required",
		},
		{
			name:    "no fields",
			ct:      ContentType{Name: "posts", DisplayName: "X"},
			wantMsg: "at least one field is required",
		},
		{
			name:    "bad route",
			ct:      ContentType{Name: "posts", DisplayName: "X", Route: "Posts/all", Fields: []Field{title}},
			wantMsg: "route must match",
		},
		{
			name:    "reserved route",
			ct:      ContentType{Name: "posts", DisplayName: "X", Route: "upload", Fields: []Field{title}},
			wantMsg: "is reserved",
		},
		{
			name:    "unknown kind",
			ct:      ContentType{Name: "posts", DisplayName: "X", Kind: "bag", Fields: []Field{title}},
			wantMsg: "kind must be",
		},
		{
			name:    "system attribute as field",
			ct:      ContentType{Name: "posts", DisplayName: "X", Fields: []Field{{Name: "createdAt", Type: FieldTypeDate}}},
			wantMsg: "reserved attribute",
		},
		{
			name:    "field name with hyphen",
			ct:      ContentType{Name: "posts", DisplayName: "X", Fields: []Field{{Name: "sub-title", Type: FieldTypeString}}},
			wantMsg: "name must match",
		},
		{
			name:    "duplicate field",
			ct:      ContentType{Name: "posts", DisplayName: "X", Fields: []Field{title, title}},
			wantMsg: "duplicate field name",
		},
		{
			name:    "invalid type",
			ct:      ContentType{Name: "posts", DisplayName: "X", Fields: []Field{{Name: "x", Type: "blob"}}},
			wantMsg: "invalid field type",
		},
		{
			name:    "negative min_length",
			ct:      ContentType{Name: "posts", DisplayName: "X", Fields: []Field{{Name: "x", Type: FieldTypeString, MinLength: &negative}}},
			wantMsg: "min_length must be >= 0",
		},
		{
			name:    "enum without values",
			ct:      ContentType{Name: "posts", DisplayName: "X", Fields: []Field{{Name: "x", Type: FieldTypeEnum}}},
			wantMsg: "non-empty values list",
		},
		{
			name:    "relation to unknown type",
			ct:      ContentType{Name: "posts", DisplayName: "X", Fields: []Field{{Name: "x", Type: FieldTypeRelation, RelatesTo: "ghosts", RelationType: RelationOne}}},
			wantMsg: "unknown content type",
		},
		{
			name:    "multiple on non-media",
			ct:      ContentType{Name: "posts", DisplayName: "X", Fields: []Field{{Name: "x", Type: FieldTypeString, Multiple: true}}},
			wantMsg: "multiple is only valid on media",
		},
		{
			name:    "component without fields",
			ct:      ContentType{Name: "posts", DisplayName: "X", Fields: []Field{{Name: "x", Type: FieldTypeComponent}}},
			wantMsg: "must declare fields",
		},
		{
			name: "nested component",
			ct: ContentType{Name: "posts", DisplayName: "X", Fields: []Field{{
				Name: "outer", Type: FieldTypeComponent,
				Fields: []Field{{Name: "inner", Type: FieldTypeComponent, Fields: []Field{title}}},
			}}},
			wantMsg: "components cannot be nested",
		},
		{
			name: "invalid nested field type",
			ct: ContentType{Name: "posts", DisplayName: "X", Fields: []Field{{
				Name: "banner", Type: FieldTypeComponent,
				Fields: []Field{{Name: "image", Type: "picture"}},
			}}},
			wantMsg: "field[0] (banner).field[0] (image): invalid field type",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			requireValidationError(t, ValidateSchemas([]ContentType{tc.ct}), tc.wantMsg)
		})
	}
}

func TestValidateSchemas_CamelCaseFieldNamesAccepted(t *testing.T) {
	schemas := []ContentType{{
		Name:        "team_member",
		DisplayName: "Team",
		Fields: []Field{
			{Name: "sortOrder", Type: FieldTypeInt},
			{Name: "isFeatured", Type: FieldTypeBoolean},
			{Name: "job_type", Type: FieldTypeString},
		},
	}}
	if err := ValidateSchemas(schemas); err != nil {
		t.Fatalf("ValidateSchemas() error: %v", err)
	}
}

func TestValidateSchemas_DuplicateRoute(t *testing.T) {
	schemas := []ContentType{
		{Name: "a", DisplayName: "A", Route: "things", Fields: []Field{{Name: "x", Type: FieldTypeString}}},
		{Name: "b", DisplayName: "B", Route: "things", Fields: []Field{{Name: "x", Type: FieldTypeString}}},
	}
	requireValidationError(t, ValidateSchemas(schemas), `route "things" is used by 2 content types`)
}

func TestValidateSchemas_MultipleProblemsReportedTogether(t *testing.T) {
	schemas := []ContentType{{
		Name: "Bad Name",
		Fields: []Field{
			{Name: "x", Type: "blob"},
		},
	}}

	err := ValidateSchemas(schemas)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Problems) < 3 {
		t.Errorf("expected at least 3 problems, got %d: %v", len(ve.Problems), ve.Problems)
	}
}

func TestContentType_PopulatableFields(t *testing.T) {
	ct := ContentType{Fields: []Field{
		{Name: "title", Type: FieldTypeString},
		{Name: "image", Type: FieldTypeMedia},
		{Name: "categories", Type: FieldTypeRelation},
		{Name: "heroBanners", Type: FieldTypeComponent},
	}}

	got := strings.Join(ct.PopulatableFields(), ",")
	if got != "image,categories,heroBanners" {
		t.Errorf("PopulatableFields() = %q", got)
	}
	if !ct.HasField("createdAt") || !ct.HasField("title") || ct.HasField("nope") {
		t.Error("HasField() mismatch")
	}
}

// requireValidationError asserts err is a *ValidationError with a problem
// containing wantSubstring.
func requireValidationError(t *testing.T, err error, wantSubstring string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected validation error containing %q, got nil", wantSubstring)
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}

	for _, problem := range ve.Problems {
		if strings.Contains(problem, wantSubstring) {
			return
		}
	}

	t.Errorf("expected a problem containing %q, got problems:\n- %s",
		wantSubstring, strings.Join(ve.Problems, "\n- "))
}
