package graph

import "fmt"

// Object is one raw record of the object graph, as decoded from the wire.
// Nested records may be either Object or map[string]any.
type Object map[string]any

// AsObject converts v to an Object if it holds a record.
func AsObject(v any) (Object, bool) {
	switch o := v.(type) {
	case Object:
		return o, o != nil
	case map[string]any:
		return Object(o), o != nil
	default:
		return nil, false
	}
}

// ID returns the record's id, or "".
func (o Object) ID() string {
	return o.String("id")
}

// ReferencedID returns the id of the record this one points to, or "".
func (o Object) ReferencedID() string {
	return o.String("referencedId")
}

// IsReference reports whether the record is a reference placeholder.
func (o Object) IsReference() bool {
	return o.ReferencedID() != ""
}

// Has reports whether key is present and non-nil.
func (o Object) Has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

// String returns the string stored at key, or "".
func (o Object) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Float returns the number stored at key.
func (o Object) Float(key string) (float64, bool) {
	return toFloat(o[key])
}

// Bool returns the boolean stored at key; anything else is false.
func (o Object) Bool(key string) bool {
	b, _ := o[key].(bool)
	return b
}

// Object returns the nested record stored at key.
func (o Object) Object(key string) (Object, bool) {
	return AsObject(o[key])
}

// Array returns the untyped array stored at key. A typed []float64 is
// boxed into a fresh []any.
func (o Object) Array(key string) ([]any, bool) {
	switch a := o[key].(type) {
	case []any:
		return a, true
	case []float64:
		out := make([]any, len(a))
		for i, f := range a {
			out[i] = f
		}
		return out, true
	case []Object:
		out := make([]any, len(a))
		for i, r := range a {
			out[i] = r
		}
		return out, true
	default:
		return nil, false
	}
}

// Floats returns the numeric array stored at key. A stored []float64 is
// returned as is and aliases the record's storage; callers must not write
// to it. An untyped array is converted into a fresh slice.
func (o Object) Floats(key string) ([]float64, bool) {
	switch a := o[key].(type) {
	case []float64:
		return a, true
	case []any:
		out, err := FloatsOf(a)
		return out, err == nil
	default:
		return nil, false
	}
}

// Clone returns a shallow copy of the record.
func (o Object) Clone() Object {
	c := make(Object, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// FloatsOf converts an untyped numeric array into a fresh []float64.
func FloatsOf(a []any) ([]float64, error) {
	out := make([]float64, len(a))
	for i, v := range a {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not a number", i, v)
		}
		out[i] = f
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
