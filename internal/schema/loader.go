package schema

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSchemas reads every *.yaml and *.yml file in dir and returns the
// content types sorted by name.
//
// Each content type gets its defaults while loading: kind collection, a
// route derived from the name (job_opening serves /api/job-opening) and a
// display name derived from the name. Two files declaring the same name or
// the same route fail here with both file names; field level checks are
// left to ValidateSchemas.
//
// An empty directory yields no schemas. A missing directory is an error.
func LoadSchemas(dir string) ([]ContentType, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading schema directory %q: %w", dir, err)
	}

	var (
		schemas []ContentType
		names   = map[string]string{}
		routes  = map[string]string{}
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
		default:
			continue
		}

		ct, err := loadSchemaFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading schema file %q: %w", entry.Name(), err)
		}

		if prev, ok := names[ct.Name]; ok {
			return nil, fmt.Errorf("content type %q in %q is already defined in %q", ct.Name, entry.Name(), prev)
		}
		names[ct.Name] = entry.Name()
		if prev, ok := routes[ct.Route]; ok {
			return nil, fmt.Errorf("route %q in %q is already used by %q", ct.Route, entry.Name(), prev)
		}
		routes[ct.Route] = entry.Name()

		schemas = append(schemas, ct)
	}

	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].Name < schemas[j].Name
	})
	return schemas, nil
}

// loadSchemaFile parses one file. Unknown keys are rejected so that typos
// ("requred") fail loudly.
func loadSchemaFile(path string) (ContentType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ContentType{}, fmt.Errorf("reading file: %w", err)
	}

	var ct ContentType
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ct); err != nil {
		return ContentType{}, fmt.Errorf("parsing YAML: %w", err)
	}

	applyDefaults(&ct)
	ct.SchemaHash = fmt.Sprintf("%x", sha256.Sum256(data))
	return ct, nil
}

func applyDefaults(ct *ContentType) {
	if ct.Kind == "" {
		ct.Kind = KindCollection
	}
	if ct.Route == "" {
		ct.Route = defaultRoute(ct.Name)
	}
	if ct.DisplayName == "" && ct.Name != "" {
		words := strings.Split(ct.Name, "_")
		for i, w := range words {
			if w != "" {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
		ct.DisplayName = strings.Join(words, " ")
	}
}

// defaultRoute turns a snake_case type name into its path segment.
func defaultRoute(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// Index maps content type names to their definitions.
func Index(schemas []ContentType) map[string]ContentType {
	m := make(map[string]ContentType, len(schemas))
	for _, ct := range schemas {
		m[ct.Name] = ct
	}
	return m
}
