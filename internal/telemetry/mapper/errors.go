package mapper

import "fmt"

// Kind classifies a MappingError.
type Kind string

const (
	MissingRequiredField Kind = "MissingRequiredField"
	TypeMismatch         Kind = "TypeMismatch"
	OutOfRange           Kind = "OutOfRange"
)

// MappingError aborts a poll cycle. Field is the dotted path of the
// offending upstream field.
type MappingError struct {
	Kind   Kind
	Field  string
	Detail string
}

func (e *MappingError) Error() string {
	switch e.Kind {
	case MissingRequiredField:
		return fmt.Sprintf("mapping: missing required field %q", e.Field)
	case TypeMismatch:
		return fmt.Sprintf("mapping: field %q has unexpected type: %s", e.Field, e.Detail)
	default:
		return fmt.Sprintf("mapping: field %q out of range: %s", e.Field, e.Detail)
	}
}

// Is matches a MappingError of the same kind, and field when the target names one.
func (e *MappingError) Is(target error) bool {
	t, ok := target.(*MappingError)
	if !ok || t.Kind != e.Kind {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

func missing(field string) error {
	return &MappingError{Kind: MissingRequiredField, Field: field}
}

func mismatch(field string, want string, got any) error {
	return &MappingError{Kind: TypeMismatch, Field: field, Detail: fmt.Sprintf("want %s, got %s", want, describe(got))}
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
