package script

import (
	"fmt"
	"time"

	"github.com/d5/tengo/v2"
)

func wantArgs(args []tengo.Object, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		return tengo.ErrWrongNumArguments
	}
	return nil
}

func argString(args []tengo.Object, i int, name string) (string, error) {
	s, ok := tengo.ToString(args[i])
	if !ok {
		return "", tengo.ErrInvalidArgumentType{Name: name, Expected: "string", Found: args[i].TypeName()}
	}
	return s, nil
}

func argInt(args []tengo.Object, i int, name string) (int, error) {
	n, ok := tengo.ToInt(args[i])
	if !ok {
		return 0, tengo.ErrInvalidArgumentType{Name: name, Expected: "int", Found: args[i].TypeName()}
	}
	return n, nil
}

func argBool(args []tengo.Object, i int, name string) (bool, error) {
	if args[i] == tengo.UndefinedValue {
		return false, nil
	}
	b, ok := args[i].(*tengo.Bool)
	if !ok {
		return false, tengo.ErrInvalidArgumentType{Name: name, Expected: "bool", Found: args[i].TypeName()}
	}
	return !b.IsFalsy(), nil
}

// argSeconds accepts int or float seconds.
func argSeconds(o tengo.Object, name string) (time.Duration, error) {
	f, ok := tengo.ToFloat64(o)
	if !ok {
		return 0, tengo.ErrInvalidArgumentType{Name: name, Expected: "int or float", Found: o.TypeName()}
	}
	return time.Duration(f * float64(time.Second)), nil
}

// mapValue returns the entries of a map or immutable map.
func mapValue(o tengo.Object) (map[string]tengo.Object, bool) {
	switch v := o.(type) {
	case *tengo.Map:
		return v.Value, true
	case *tengo.ImmutableMap:
		return v.Value, true
	}
	return nil, false
}

func argMap(args []tengo.Object, i int, name string) (map[string]tengo.Object, error) {
	m, ok := mapValue(args[i])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: name, Expected: "map", Found: args[i].TypeName()}
	}
	return m, nil
}

// stringMap converts a map of strings, rendering non-string values.
func stringMap(o tengo.Object, name string) (map[string]string, error) {
	m, ok := mapValue(o)
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: name, Expected: "map", Found: o.TypeName()}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, _ := tengo.ToString(v)
		out[k] = s
	}
	return out, nil
}

// elements returns the values of any iterable object, in iteration order.
func elements(o tengo.Object, name string) ([]tengo.Object, error) {
	switch v := o.(type) {
	case *tengo.Array:
		return v.Value, nil
	case *tengo.ImmutableArray:
		return v.Value, nil
	}
	if !o.CanIterate() {
		return nil, tengo.ErrInvalidArgumentType{Name: name, Expected: "array", Found: o.TypeName()}
	}
	var out []tengo.Object
	it := o.Iterate()
	for it.Next() {
		out = append(out, it.Value())
	}
	return out, nil
}

func stringsOf(o tengo.Object, name string) ([]string, error) {
	if s, ok := o.(*tengo.String); ok {
		return []string{s.Value}, nil
	}
	elems, err := elements(o, name)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		s, _ := tengo.ToString(e)
		out = append(out, s)
	}
	return out, nil
}

func str(s string) tengo.Object { return &tengo.String{Value: s} }

func boolean(b bool) tengo.Object {
	if b {
		return tengo.TrueValue
	}
	return tengo.FalseValue
}

func errValue(msg string) tengo.Object {
	return &tengo.Error{Value: &tengo.String{Value: msg}}
}

func stringArray(values []string) tengo.Object {
	arr := make([]tengo.Object, len(values))
	for i, v := range values {
		arr[i] = str(v)
	}
	return &tengo.Array{Value: arr}
}

func stringMapObject(m map[string]string) tengo.Object {
	out := make(map[string]tengo.Object, len(m))
	for k, v := range m {
		out[k] = str(v)
	}
	return &tengo.Map{Value: out}
}

// toObject converts a decoded JSON-like Go value. Numbers that are whole
// become ints.
func toObject(v any) (tengo.Object, error) {
	switch v := v.(type) {
	case tengo.Object:
		return v, nil
	case float64:
		if v == float64(int64(v)) {
			return &tengo.Int{Value: int64(v)}, nil
		}
		return &tengo.Float{Value: v}, nil
	case []string:
		return stringArray(v), nil
	case map[string]string:
		return stringMapObject(v), nil
	case []any:
		arr := make([]tengo.Object, len(v))
		for i, e := range v {
			o, err := toObject(e)
			if err != nil {
				return nil, err
			}
			arr[i] = o
		}
		return &tengo.Array{Value: arr}, nil
	case map[string]any:
		m := make(map[string]tengo.Object, len(v))
		for k, e := range v {
			o, err := toObject(e)
			if err != nil {
				return nil, err
			}
			m[k] = o
		}
		return &tengo.Map{Value: m}, nil
	}
	o, err := tengo.FromInterface(v)
	if err != nil {
		return nil, fmt.Errorf("convert %T: %w", v, err)
	}
	return o, nil
}
