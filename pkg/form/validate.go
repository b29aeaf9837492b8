package form

import "github.com/osvaldoandrade/modelhub/pkg/domain"

// Validate returns the display names of required fields that are unset, in
// descriptor order.
func Validate(fields []domain.FieldDescriptor, values map[string]any) []string {
	var missing []string
	for _, f := range fields {
		if !f.Required {
			continue
		}
		v, ok := values[f.Key]
		if !ok || !Filled(f, v) {
			missing = append(missing, f.Label())
		}
	}
	return missing
}

// Missing wraps Validate into an error, nil when nothing is missing.
func Missing(fields []domain.FieldDescriptor, values map[string]any) error {
	if m := Validate(fields, values); len(m) > 0 {
		return &domain.ValidationError{Missing: m}
	}
	return nil
}

// Filled reports whether v counts as a provided value for field f. Zero
// values are falsy. Unknown field types never count as filled.
func Filled(f domain.FieldDescriptor, v any) bool {
	if !f.Type.Known() {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case string:
		if t == "" {
			return false
		}
		if f.Type == domain.FieldEnumImage {
			return f.HasOption(t)
		}
		return true
	case bool:
		return t
	case float64:
		return t != 0
	case float32:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case *domain.LocalFile:
		return t != nil && t.Path != ""
	case domain.LocalFile:
		return t.Path != ""
	default:
		return true
	}
}
