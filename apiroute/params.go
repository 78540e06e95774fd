package apiroute

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Param type names accepted in a Schema's Types set.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeArray  = "array"
	TypeObject = "object"
)

// Param declares one parameter's constraints.
type Param struct {
	Required bool
	Types    []string // allowed type names; empty means any
	Enum     []any    // allowed values; empty means any
	Default  any      // applied when the parameter is absent
}

// Schema maps parameter names to their declarations. It is independent of
// any web framework's request object.
type Schema map[string]Param

// Violation is one structured validation failure, naming the parameter and
// the constraint it broke.
type Violation struct {
	Param      string
	Constraint string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Param, v.Constraint)
}

// Resolve validates raw input against the schema and produces a typed,
// defaulted parameter map, or the list of violations. Undeclared parameters
// pass through untouched. String inputs (query parameters) are coerced into
// declared scalar types.
func (s Schema) Resolve(raw map[string]any) (map[string]any, []Violation) {
	var violations []Violation
	resolved := make(map[string]any, len(raw)+len(s))

	for name, value := range raw {
		resolved[name] = value
	}

	for name, spec := range s {
		value, present := raw[name]
		if !present || value == nil {
			if spec.Required {
				violations = append(violations, Violation{name, "required parameter is missing"})
				continue
			}
			if spec.Default != nil {
				resolved[name] = spec.Default
			}
			continue
		}

		typed, ok := coerce(value, spec.Types)
		if !ok {
			violations = append(violations, Violation{
				name, fmt.Sprintf("value must be of type %s", strings.Join(spec.Types, " or ")),
			})
			continue
		}
		if len(spec.Enum) > 0 && !enumContains(spec.Enum, typed) {
			violations = append(violations, Violation{
				name, fmt.Sprintf("value %v is not one of the allowed values", typed),
			})
			continue
		}
		resolved[name] = typed
	}

	if len(violations) > 0 {
		return nil, violations
	}
	return resolved, nil
}

// coerce checks value against the allowed type set, converting string
// inputs and JSON numbers into the declared type where unambiguous.
func coerce(value any, types []string) (any, bool) {
	if len(types) == 0 {
		return value, true
	}
	for _, t := range types {
		if v, ok := coerceOne(value, t); ok {
			return v, true
		}
	}
	return nil, false
}

func coerceOne(value any, t string) (any, bool) {
	switch t {
	case TypeString:
		if s, ok := value.(string); ok {
			return s, true
		}
	case TypeInt:
		switch v := value.(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case float64:
			if v == float64(int(v)) {
				return int(v), true
			}
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n, true
			}
		}
	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	case TypeBool:
		switch v := value.(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b, true
			}
		}
	case TypeArray:
		if v, ok := value.([]any); ok {
			return v, true
		}
	case TypeObject:
		if v, ok := value.(map[string]any); ok {
			return v, true
		}
	}
	return nil, false
}

func enumContains(enum []any, value any) bool {
	for _, allowed := range enum {
		// Interface equality panics on matching uncomparable dynamic types
		// (slices, maps); those fall through to the representation check.
		if allowed != nil && reflect.TypeOf(allowed).Comparable() && allowed == value {
			return true
		}
		// JSON numbers and coerced ints compare by representation.
		if fmt.Sprint(allowed) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}
