// Package schema handles loading, parsing, and validating YAML content type
// definitions for Cornerstone.
package schema

// FieldType represents the type of a content field.
type FieldType string

// Supported field types for content type schemas.
const (
	FieldTypeString    FieldType = "string"
	FieldTypeText      FieldType = "text"
	FieldTypeRichText  FieldType = "richtext"
	FieldTypeInt       FieldType = "int"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeDate      FieldType = "date"
	FieldTypeDateTime  FieldType = "datetime"
	FieldTypeEnum      FieldType = "enum"
	FieldTypeJSON      FieldType = "json"
	FieldTypeMedia     FieldType = "media"
	FieldTypeRelation  FieldType = "relation"
	FieldTypeComponent FieldType = "component"
)

// validFieldTypes is the set of all supported field types, used for validation.
var validFieldTypes = map[FieldType]bool{
	FieldTypeString:    true,
	FieldTypeText:      true,
	FieldTypeRichText:  true,
	FieldTypeInt:       true,
	FieldTypeFloat:     true,
	FieldTypeBoolean:   true,
	FieldTypeDate:      true,
	FieldTypeDateTime:  true,
	FieldTypeEnum:      true,
	FieldTypeJSON:      true,
	FieldTypeMedia:     true,
	FieldTypeRelation:  true,
	FieldTypeComponent: true,
}

// RelationType represents the cardinality of a relation field.
type RelationType string

// Supported relation types.
const (
	RelationOne  RelationType = "one"
	RelationMany RelationType = "many"
)

// Kind distinguishes collection types (many entries) from single types
// (exactly one entry, returned as an object by find).
type Kind string

// Supported content type kinds.
const (
	KindCollection Kind = "collection"
	KindSingle     Kind = "single"
)

// ContentType represents a parsed YAML content type schema definition.
type ContentType struct {
	// Name is the internal identifier (snake_case) used by the entity store.
	Name string `yaml:"name"`

	// DisplayName is the human-readable label.
	DisplayName string `yaml:"display_name"`

	// Route is the path segment under /api. Defaults to Name with
	// underscores replaced by hyphens.
	Route string `yaml:"route,omitempty"`

	// Kind is collection (default) or single.
	Kind Kind `yaml:"kind,omitempty"`

	// DraftAndPublish enables the publication state filter on reads.
	DraftAndPublish bool `yaml:"draft_and_publish"`

	// Fields defines the list of fields for this content type.
	Fields []Field `yaml:"fields"`

	// SchemaHash is the SHA256 hex digest of the raw YAML file bytes.
	// It is computed after loading and is not deserialized from YAML.
	SchemaHash string `yaml:"-"`
}

// Field represents a single field within a content type or component.
type Field struct {
	Name string    `yaml:"name"`
	Type FieldType `yaml:"type"`

	// Required indicates the field must be provided on create.
	Required bool `yaml:"required"`

	MinLength *int     `yaml:"min_length,omitempty"`
	MaxLength *int     `yaml:"max_length,omitempty"`
	Min       *float64 `yaml:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty"`
	Regex     string   `yaml:"regex,omitempty"`

	// Values is the list of allowed values for enum fields.
	Values []string `yaml:"values,omitempty"`

	// RelatesTo is the target content type name for relation fields.
	RelatesTo string `yaml:"relates_to,omitempty"`

	// RelationType is the cardinality of the relation (one or many).
	RelationType RelationType `yaml:"relation_type,omitempty"`

	// Multiple allows a media field to hold a list of assets.
	Multiple bool `yaml:"multiple,omitempty"`

	// Repeatable makes a component field hold a list of components.
	Repeatable bool `yaml:"repeatable,omitempty"`

	// Fields are the nested fields of a component.
	Fields []Field `yaml:"fields,omitempty"`
}

// RoutePath returns the /api path segment for the content type.
func (ct ContentType) RoutePath() string {
	if ct.Route != "" {
		return ct.Route
	}
	return defaultRoute(ct.Name)
}

// IsSingle reports whether the content type holds a single entry.
func (ct ContentType) IsSingle() bool {
	return ct.Kind == KindSingle
}

// Field returns the top-level field with the given name.
func (ct ContentType) Field(name string) (Field, bool) {
	for _, f := range ct.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether name is a top-level field or a system attribute.
func (ct ContentType) HasField(name string) bool {
	if SystemAttributes[name] {
		return true
	}
	_, ok := ct.Field(name)
	return ok
}

// PopulatableFields returns the names of the media, relation and component
// fields, in schema order. These are the targets of populate=*.
func (ct ContentType) PopulatableFields() []string {
	var names []string
	for _, f := range ct.Fields {
		switch f.Type {
		case FieldTypeMedia, FieldTypeRelation, FieldTypeComponent:
			names = append(names, f.Name)
		}
	}
	return names
}

// IsMany reports whether a media, relation or component field holds a list.
func (f Field) IsMany() bool {
	switch f.Type {
	case FieldTypeMedia:
		return f.Multiple
	case FieldTypeRelation:
		return f.RelationType == RelationMany
	case FieldTypeComponent:
		return f.Repeatable
	}
	return false
}

// SubField returns the nested component field with the given name.
func (f Field) SubField(name string) (Field, bool) {
	for _, sub := range f.Fields {
		if sub.Name == name {
			return sub, true
		}
	}
	return Field{}, false
}

// SystemAttributes are attributes present on every entry in addition to
// user-defined fields.
var SystemAttributes = map[string]bool{
	"id":          true,
	"createdAt":   true,
	"updatedAt":   true,
	"publishedAt": true,
}
