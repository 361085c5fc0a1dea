package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/microcosm-cc/bluemonday"

	"github.com/GyroZepelix/cornerstone/internal/schema"
)

// writableSystem are system attributes accepted in payloads.
var writableSystem = map[string]bool{"publishedAt": true}

// validatePayload checks a create or update payload against the schema.
// On create, required fields must be present and non-null; on update,
// missing fields are skipped. All failures are reported together.
func validatePayload(ct schema.ContentType, data map[string]any, isUpdate bool) error {
	errs := validation.Errors{}

	for key := range data {
		if key == "id" || writableSystem[key] {
			continue
		}
		if _, ok := ct.Field(key); !ok {
			errs[key] = errors.New("unknown field")
		}
	}

	for _, f := range ct.Fields {
		val, present := data[f.Name]
		if !present || val == nil {
			if !isUpdate && f.Required {
				errs[f.Name] = errors.New("is required")
			}
			continue
		}
		if err := validateValue(f, val); err != nil {
			errs[f.Name] = err
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return goerrors.FromOzzoValidation(errs, "invalid payload")
}

// validateValue checks one non-nil value against its field definition.
func validateValue(f schema.Field, val any) error {
	switch f.Type {
	case schema.FieldTypeString, schema.FieldTypeText, schema.FieldTypeRichText:
		s, ok := val.(string)
		if !ok {
			return errors.New("must be a string")
		}
		return validation.Validate(s, stringRules(f)...)

	case schema.FieldTypeInt, schema.FieldTypeFloat:
		n, ok := toFloat64(val)
		if !ok {
			return errors.New("must be a number")
		}
		if f.Type == schema.FieldTypeInt && n != math.Trunc(n) {
			return errors.New("must be an integer")
		}
		var rules []validation.Rule
		if f.Min != nil {
			rules = append(rules, validation.Min(*f.Min).Error(fmt.Sprintf("must be at least %g", *f.Min)))
		}
		if f.Max != nil {
			rules = append(rules, validation.Max(*f.Max).Error(fmt.Sprintf("must be at most %g", *f.Max)))
		}
		return validation.Validate(n, rules...)

	case schema.FieldTypeBoolean:
		if _, ok := val.(bool); !ok {
			return errors.New("must be a boolean")
		}

	case schema.FieldTypeDate, schema.FieldTypeDateTime:
		s, ok := val.(string)
		if !ok {
			return errors.New("must be a string")
		}
		layout, msg := time.DateOnly, "must be a valid date (YYYY-MM-DD)"
		if f.Type == schema.FieldTypeDateTime {
			layout, msg = time.RFC3339, "must be a valid RFC 3339 datetime"
		}
		return validation.Validate(s, validation.Date(layout).Error(msg))

	case schema.FieldTypeEnum:
		s, ok := val.(string)
		if !ok {
			return errors.New("must be a string")
		}
		allowed := make([]any, len(f.Values))
		for i, v := range f.Values {
			allowed[i] = v
		}
		return validation.Validate(s, validation.In(allowed...).Error(fmt.Sprintf("must be one of: %v", f.Values)))

	case schema.FieldTypeMedia, schema.FieldTypeRelation:
		return validateRefs(val, f.IsMany())

	case schema.FieldTypeComponent:
		return validateComponent(f, val)
	}
	return nil
}

func stringRules(f schema.Field) []validation.Rule {
	var rules []validation.Rule
	if f.MinLength != nil || f.MaxLength != nil {
		minLen, maxLen := 0, 0
		if f.MinLength != nil {
			minLen = *f.MinLength
		}
		if f.MaxLength != nil {
			maxLen = *f.MaxLength
		}
		rules = append(rules, validation.RuneLength(minLen, maxLen))
	}
	if f.Regex != "" {
		if re, err := regexp.Compile(f.Regex); err == nil {
			rules = append(rules, validation.Match(re).Error(fmt.Sprintf("must match pattern %s", f.Regex)))
		}
	}
	return rules
}

// validateRefs accepts an id, an {id} object, or a list of those when many
// is set.
func validateRefs(val any, many bool) error {
	if list, ok := val.([]any); ok {
		if !many {
			return errors.New("takes a single reference")
		}
		for _, item := range list {
			if !isRef(item) {
				return errors.New("must be a list of ids")
			}
		}
		return nil
	}
	if !isRef(val) {
		return errors.New("must be an id or an object with an id")
	}
	return nil
}

func isRef(v any) bool {
	if m, ok := v.(map[string]any); ok {
		v = m["id"]
	}
	n, ok := toFloat64(v)
	return ok && n > 0 && n == math.Trunc(n)
}

func validateComponent(f schema.Field, val any) error {
	items := []any{val}
	if f.Repeatable {
		list, ok := val.([]any)
		if !ok {
			return errors.New("must be a list")
		}
		items = list
	}
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return errors.New("must be an object")
		}
		for key, sub := range m {
			if key == "id" || sub == nil {
				continue
			}
			sf, ok := f.SubField(key)
			if !ok {
				return fmt.Errorf("item %d: unknown field %q", i, key)
			}
			if err := validateValue(sf, sub); err != nil {
				return fmt.Errorf("item %d: %s %w", i, key, err)
			}
		}
	}
	return nil
}

// toFloat64 converts a value to float64, handling JSON number types.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// sanitizer strips unsafe markup from richtext fields.
type sanitizer struct {
	policy *bluemonday.Policy
}

func newSanitizer() sanitizer {
	return sanitizer{policy: bluemonday.UGCPolicy()}
}

// apply returns data with every richtext value sanitized. Other values are
// shared with data.
func (s sanitizer) apply(ct schema.ContentType, data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, f := range ct.Fields {
		if f.Type != schema.FieldTypeRichText {
			continue
		}
		if str, ok := out[f.Name].(string); ok {
			out[f.Name] = s.policy.Sanitize(str)
		}
	}
	return out
}
