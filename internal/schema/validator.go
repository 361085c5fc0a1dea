package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// typeNamePattern matches valid content type names: lowercase letter
// followed by lowercase letters, digits, or underscores.
var typeNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// fieldNamePattern matches valid field names. Field names are stored as
// JSON keys, so camelCase (isFeatured, sortOrder) is allowed.
var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// routePattern matches the /api path segment of a content type.
var routePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// reservedRoutes collide with fixed endpoints of the HTTP API.
var reservedRoutes = map[string]bool{
	"upload":        true,
	"content-types": true,
}

// textFieldTypes are the field types that support min_length and max_length.
var textFieldTypes = map[FieldType]bool{
	FieldTypeString:   true,
	FieldTypeText:     true,
	FieldTypeRichText: true,
}

// numericFieldTypes are the field types that support min and max.
var numericFieldTypes = map[FieldType]bool{
	FieldTypeInt:   true,
	FieldTypeFloat: true,
}

// maxNameLength bounds type and field names.
const maxNameLength = 63

// ValidateSchemas validates all schemas together, including cross-references
// between content types (e.g., relation targets). It returns a multi-error
// listing ALL validation problems found, or nil if all schemas are valid.
func ValidateSchemas(schemas []ContentType) error {
	knownTypes := make(map[string]bool, len(schemas))
	for _, ct := range schemas {
		if ct.Name != "" {
			knownTypes[ct.Name] = true
		}
	}

	var allErrors []string

	nameCount := make(map[string]int, len(schemas))
	routeCount := make(map[string]int, len(schemas))
	for _, ct := range schemas {
		nameCount[ct.Name]++
		routeCount[ct.RoutePath()]++
	}
	for name, count := range nameCount {
		if count > 1 && name != "" {
			allErrors = append(allErrors, fmt.Sprintf("content type name %q is defined %d times", name, count))
		}
	}
	for route, count := range routeCount {
		if count > 1 && route != "" {
			allErrors = append(allErrors, fmt.Sprintf("route %q is used by %d content types", route, count))
		}
	}

	for _, ct := range schemas {
		problems := validateContentType(ct, knownTypes)
		for _, msg := range problems {
			allErrors = append(allErrors, fmt.Sprintf("content type %q: %s", ct.Name, msg))
		}
	}

	if len(allErrors) == 0 {
		return nil
	}

	return &ValidationError{Problems: allErrors}
}

// ValidationError holds a list of all validation problems found across schemas.
type ValidationError struct {
	Problems []string
}

// Error returns a human-readable summary of all validation problems.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed with %d problem(s):\n- %s",
		len(e.Problems), strings.Join(e.Problems, "\n- "))
}

// validateContentType validates a single content type and returns a list of
// validation error messages.
func validateContentType(ct ContentType, knownTypes map[string]bool) []string {
	var problems []string

	if ct.Name == "" {
		problems = append(problems, "name is required")
	} else {
		if !typeNamePattern.MatchString(ct.Name) {
			problems = append(problems, "name must match ^[a-z][a-z0-9_]*$")
		}
		if len(ct.Name) > maxNameLength {
			problems = append(problems, fmt.Sprintf("name must be at most %d characters (got %d)", maxNameLength, len(ct.Name)))
		}
	}

	if ct.DisplayName == "" {
		problems = append(problems, "display_name is required")
	}

	if ct.Route != "" && !routePattern.MatchString(ct.Route) {
		problems = append(problems, "route must match ^[a-z][a-z0-9-]*$")
	}
	if reservedRoutes[ct.RoutePath()] {
		problems = append(problems, fmt.Sprintf("route %q is reserved", ct.RoutePath()))
	}

	switch ct.Kind {
	case "", KindCollection, KindSingle:
	default:
		problems = append(problems, fmt.Sprintf("kind must be %q or %q, got %q", KindCollection, KindSingle, ct.Kind))
	}

	if len(ct.Fields) == 0 {
		problems = append(problems, "at least one field is required")
		return problems
	}

	problems = append(problems, validateFields("", ct.Fields, knownTypes, false)...)
	return problems
}

// validateFields checks a list of fields. Component fields recurse into their
// nested fields; nested components are rejected.
func validateFields(path string, fields []Field, knownTypes map[string]bool, nested bool) []string {
	var problems []string
	fieldNames := make(map[string]bool, len(fields))

	for i, f := range fields {
		prefix := fmt.Sprintf("%sfield[%d] (%s)", path, i, f.Name)

		if f.Name == "" {
			problems = append(problems, fmt.Sprintf("%sfield[%d]: name is required", path, i))
		} else {
			if !fieldNamePattern.MatchString(f.Name) {
				problems = append(problems, fmt.Sprintf("%s: name must match ^[a-zA-Z][a-zA-Z0-9_]*$", prefix))
			}
			if len(f.Name) > maxNameLength {
				problems = append(problems, fmt.Sprintf("%s: name must be at most %d characters (got %d)", prefix, maxNameLength, len(f.Name)))
			}
			if SystemAttributes[f.Name] {
				problems = append(problems, fmt.Sprintf("%s: name %q is a reserved attribute", prefix, f.Name))
			}
			if fieldNames[f.Name] {
				problems = append(problems, fmt.Sprintf("%s: duplicate field name", prefix))
			}
			fieldNames[f.Name] = true
		}

		if !validFieldTypes[f.Type] {
			problems = append(problems, fmt.Sprintf("%s: invalid field type %q", prefix, f.Type))
			continue
		}

		if f.MinLength != nil && !textFieldTypes[f.Type] {
			problems = append(problems, fmt.Sprintf("%s: min_length is only valid on string, text, richtext types", prefix))
		}
		if f.MaxLength != nil && !textFieldTypes[f.Type] {
			problems = append(problems, fmt.Sprintf("%s: max_length is only valid on string, text, richtext types", prefix))
		}
		if f.MinLength != nil && *f.MinLength < 0 {
			problems = append(problems, fmt.Sprintf("%s: min_length must be >= 0 (got %d)", prefix, *f.MinLength))
		}
		if f.MaxLength != nil && *f.MaxLength <= 0 {
			problems = append(problems, fmt.Sprintf("%s: max_length must be > 0 (got %d)", prefix, *f.MaxLength))
		}
		if f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength {
			problems = append(problems, fmt.Sprintf("%s: min_length (%d) must be <= max_length (%d)", prefix, *f.MinLength, *f.MaxLength))
		}

		if f.Min != nil && !numericFieldTypes[f.Type] {
			problems = append(problems, fmt.Sprintf("%s: min is only valid on int, float types", prefix))
		}
		if f.Max != nil && !numericFieldTypes[f.Type] {
			problems = append(problems, fmt.Sprintf("%s: max is only valid on int, float types", prefix))
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			problems = append(problems, fmt.Sprintf("%s: min (%g) must be <= max (%g)", prefix, *f.Min, *f.Max))
		}

		if f.Regex != "" {
			if f.Type != FieldTypeString {
				problems = append(problems, fmt.Sprintf("%s: regex is only valid on string type", prefix))
			} else if _, err := regexp.Compile(f.Regex); err != nil {
				problems = append(problems, fmt.Sprintf("%s: invalid regex %q: %v", prefix, f.Regex, err))
			}
		}

		if len(f.Values) > 0 && f.Type != FieldTypeEnum {
			problems = append(problems, fmt.Sprintf("%s: values is only valid on enum type", prefix))
		}
		if f.RelatesTo != "" && f.Type != FieldTypeRelation {
			problems = append(problems, fmt.Sprintf("%s: relates_to is only valid on relation type", prefix))
		}
		if f.RelationType != "" && f.Type != FieldTypeRelation {
			problems = append(problems, fmt.Sprintf("%s: relation_type is only valid on relation type", prefix))
		}
		if f.Multiple && f.Type != FieldTypeMedia {
			problems = append(problems, fmt.Sprintf("%s: multiple is only valid on media type", prefix))
		}
		if f.Repeatable && f.Type != FieldTypeComponent {
			problems = append(problems, fmt.Sprintf("%s: repeatable is only valid on component type", prefix))
		}
		if len(f.Fields) > 0 && f.Type != FieldTypeComponent {
			problems = append(problems, fmt.Sprintf("%s: fields is only valid on component type", prefix))
		}

		switch f.Type {
		case FieldTypeEnum:
			if len(f.Values) == 0 {
				problems = append(problems, fmt.Sprintf("%s: enum field must have a non-empty values list", prefix))
				break
			}
			seen := make(map[string]bool, len(f.Values))
			for j, v := range f.Values {
				if v == "" {
					problems = append(problems, fmt.Sprintf("%s: values[%d] must not be empty", prefix, j))
				} else if seen[v] {
					problems = append(problems, fmt.Sprintf("%s: duplicate enum value %q", prefix, v))
				}
				seen[v] = true
			}

		case FieldTypeRelation:
			if nested {
				problems = append(problems, fmt.Sprintf("%s: relation fields are not supported inside components", prefix))
			}
			if f.RelatesTo == "" {
				problems = append(problems, fmt.Sprintf("%s: relation field must have relates_to", prefix))
			} else if !knownTypes[f.RelatesTo] {
				problems = append(problems, fmt.Sprintf("%s: relates_to references unknown content type %q", prefix, f.RelatesTo))
			}
			if f.RelationType != RelationOne && f.RelationType != RelationMany {
				problems = append(problems, fmt.Sprintf("%s: relation field must have relation_type of \"one\" or \"many\", got %q", prefix, f.RelationType))
			}

		case FieldTypeComponent:
			if nested {
				problems = append(problems, fmt.Sprintf("%s: components cannot be nested", prefix))
				break
			}
			if len(f.Fields) == 0 {
				problems = append(problems, fmt.Sprintf("%s: component field must declare fields", prefix))
				break
			}
			problems = append(problems, validateFields(prefix+".", f.Fields, knownTypes, true)...)
		}
	}

	return problems
}
