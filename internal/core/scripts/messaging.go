package scripts

import (
	"reflect"
	"unicode"
	"unicode/utf8"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Send invokes method on the instance registered as script, inline on the
// caller's goroutine. A missing script or method is not an error: Send
// returns (nil, nil). The error is non-nil only when the method itself
// fails or the arguments do not fit its signature.
func (c *Component) Send(script, method string, args ...any) (any, error) {
	rec, ok := c.registry.Get(script)
	if !ok || rec.destroyed {
		return nil, nil
	}
	result, _, err := Dispatch(rec.Instance, method, args...)
	return result, err
}

// Dispatch calls a method on an instance by name. Instances implementing
// Caller resolve the name themselves; others are dispatched by reflection,
// trying the exact name first and then its exported form.
func Dispatch(inst any, method string, args ...any) (result any, found bool, err error) {
	if inst == nil || method == "" {
		return nil, false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	if caller, ok := inst.(Caller); ok {
		return caller.Call(method, args...)
	}

	v := reflect.ValueOf(inst)
	m := v.MethodByName(method)
	if !m.IsValid() {
		m = v.MethodByName(exported(method))
	}
	if !m.IsValid() {
		return nil, false, nil
	}
	in, err := buildArgs(m.Type(), args)
	if err != nil {
		return nil, true, err
	}
	result, err = unpackResults(m.Call(in))
	return result, true, err
}

func exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

func buildArgs(t reflect.Type, args []any) ([]reflect.Value, error) {
	n := t.NumIn()
	if t.IsVariadic() {
		if len(args) < n-1 {
			return nil, ErrBadArguments
		}
	} else if len(args) != n {
		return nil, ErrBadArguments
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var want reflect.Type
		if t.IsVariadic() && i >= n-1 {
			want = t.In(n - 1).Elem()
		} else {
			want = t.In(i)
		}
		v, err := convertValue(a, want)
		if err != nil {
			return nil, err
		}
		in[i] = v
	}
	return in, nil
}

// unpackResults maps Go return values onto (result, error): a trailing error
// return becomes the error, a single remaining value becomes the result, and
// several remaining values are returned as a slice.
func unpackResults(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}
	var err error
	last := out[len(out)-1]
	if last.Type() == errorType {
		if !last.IsNil() {
			err = last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	default:
		values := make([]any, len(out))
		for i, o := range out {
			values[i] = o.Interface()
		}
		return values, err
	}
}
