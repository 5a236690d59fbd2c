package resilience

import (
	"fmt"
	"regexp"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// Schema is a JSON-Schema subset: type, required, properties, items,
// min/max for numbers/strings/arrays, pattern, enum. A field is left
// zero-valued when not constrained.
type Schema struct {
	Type       string // "object", "array", "string", "number", "integer", "boolean"
	Required   []string
	Properties map[string]*Schema
	Items      *Schema
	Minimum    *float64
	Maximum    *float64
	MinLength  *int
	MaxLength  *int
	Pattern    string
	Enum       []interface{}
}

// Validate checks value against the schema, returning INVALID_PAYLOAD with
// path+message on the first failure encountered.
func Validate(schema *Schema, value interface{}) error {
	return validateAt(schema, value, "$")
}

func validateAt(schema *Schema, value interface{}, path string) error {
	if schema == nil {
		return nil
	}
	if len(schema.Enum) > 0 && !enumContains(schema.Enum, value) {
		return invalid(path, "value is not one of the allowed enum values")
	}
	switch schema.Type {
	case "object":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return invalid(path, "expected an object")
		}
		for _, req := range schema.Required {
			if _, ok := obj[req]; !ok {
				return invalid(path+"."+req, "missing required property")
			}
		}
		for name, propSchema := range schema.Properties {
			if v, ok := obj[name]; ok {
				if err := validateAt(propSchema, v, path+"."+name); err != nil {
					return err
				}
			}
		}
		return nil
	case "array":
		arr, ok := value.([]interface{})
		if !ok {
			return invalid(path, "expected an array")
		}
		if schema.MinLength != nil && len(arr) < *schema.MinLength {
			return invalid(path, "array shorter than minimum length")
		}
		if schema.MaxLength != nil && len(arr) > *schema.MaxLength {
			return invalid(path, "array longer than maximum length")
		}
		for i, item := range arr {
			if err := validateAt(schema.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case "string":
		s, ok := value.(string)
		if !ok {
			return invalid(path, "expected a string")
		}
		if schema.MinLength != nil && len(s) < *schema.MinLength {
			return invalid(path, "string shorter than minimum length")
		}
		if schema.MaxLength != nil && len(s) > *schema.MaxLength {
			return invalid(path, "string longer than maximum length")
		}
		if schema.Pattern != "" {
			re, err := regexp.Compile(schema.Pattern)
			if err != nil {
				return invalid(path, "invalid pattern configured on schema")
			}
			if !re.MatchString(s) {
				return invalid(path, "string does not match pattern")
			}
		}
		return nil
	case "number", "integer":
		n, ok := asFloat(value)
		if !ok {
			return invalid(path, "expected a number")
		}
		if schema.Type == "integer" && n != float64(int64(n)) {
			return invalid(path, "expected an integer")
		}
		if schema.Minimum != nil && n < *schema.Minimum {
			return invalid(path, "number below minimum")
		}
		if schema.Maximum != nil && n > *schema.Maximum {
			return invalid(path, "number above maximum")
		}
		return nil
	case "boolean":
		if _, ok := value.(bool); !ok {
			return invalid(path, "expected a boolean")
		}
		return nil
	default:
		return nil
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func enumContains(enum []interface{}, v interface{}) bool {
	for _, e := range enum {
		if e == v {
			return true
		}
	}
	return false
}

func invalid(path, message string) error {
	return xerrors.From(xerrors.CodeInvalidPayload, map[string]interface{}{"path": path, "message": message})
}
