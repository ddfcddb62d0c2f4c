package scripts

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// applyAttributes sets every value of next on the instance and returns the
// keys whose value differs from old. With a nil old map (first application)
// nothing counts as changed and listeners are not notified.
func (c *Component) applyAttributes(rec *Record, old, next map[string]any) map[string]any {
	keys := make([]string, 0, len(next))
	for k := range next {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var changed map[string]any
	for _, key := range keys {
		key := key
		value := next[key]
		c.invoke(rec, "setAttribute", func() error {
			return setAttribute(rec.Instance, key, value)
		})
		if old == nil {
			continue
		}
		prev, had := old[key]
		if had && reflect.DeepEqual(prev, value) {
			continue
		}
		if changed == nil {
			changed = make(map[string]any)
		}
		changed[key] = value
		if l, ok := rec.Instance.(AttributeListener); ok {
			c.invoke(rec, "onAttributeChanged", func() error {
				return l.OnAttributeChanged(key, value, prev)
			})
		}
	}
	return changed
}

// setAttribute prefers AttributeSetter and otherwise writes an exported
// struct field tagged `script:"name"` or named like the attribute. Unknown
// attributes are ignored.
func setAttribute(inst any, name string, value any) error {
	if s, ok := inst.(AttributeSetter); ok {
		return s.SetAttribute(name, value)
	}
	v := reflect.ValueOf(inst)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	field, ok := findField(v.Elem(), name)
	if !ok {
		return nil
	}
	arg, err := convertValue(value, field.Type())
	if err != nil {
		return fmt.Errorf("attribute %q: %w", name, err)
	}
	field.Set(arg)
	return nil
}

func findField(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	fallback := -1
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag, ok := f.Tag.Lookup("script"); ok {
			if tag == name {
				return v.Field(i), true
			}
			continue
		}
		if fallback < 0 && strings.EqualFold(f.Name, name) {
			fallback = i
		}
	}
	if fallback >= 0 {
		return v.Field(fallback), true
	}
	return reflect.Value{}, false
}

// convertValue adapts a dynamically typed value (as decoded from YAML, JSON
// or a script runtime) to a concrete Go type.
func convertValue(value any, to reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(to), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(to) {
		return v, nil
	}
	if isNumeric(v.Kind()) && isNumeric(to.Kind()) {
		return v.Convert(to), nil
	}
	if v.Kind() == to.Kind() && v.Type().ConvertibleTo(to) {
		return v.Convert(to), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot use %T as %s", ErrBadArguments, value, to)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
