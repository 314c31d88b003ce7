package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over attribute and payload values.
// Only None, Text, Int, Float, Bool, List, Map and Any implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// None is the absent value. Setting an attribute to None clears it.
type None struct{}

func (None) irValue() {}

// MarshalJSON implements json.Marshaler for None.
func (None) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Text is a string value.
type Text string

func (Text) irValue() {}

// Int is an integer value. Always int64.
type Int int64

func (Int) irValue() {}

// Float is a floating point value. NaN and infinities are rejected at
// serialization boundaries.
type Float float64

func (Float) irValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// List is an ordered list of values.
type List []Value

func (List) irValue() {}

// Map is a string-keyed map of values.
// Use SortedKeys() for deterministic iteration.
type Map map[string]Value

func (Map) irValue() {}

// Any carries a host-owned object such as a back-reference handle.
// It has identity, not content: canonical encodings record only its type.
type Any struct {
	V any
}

func (Any) irValue() {}

// TypeName returns the Go type name of the wrapped object, or the recorded
// name when the value was decoded from a journal.
func (a Any) TypeName() string {
	if name, ok := a.V.(AnyPlaceholder); ok {
		return string(name)
	}
	if a.V == nil {
		return "nil"
	}
	return reflect.TypeOf(a.V).String()
}

// AnyPlaceholder stands in for an Any value decoded from a serialized form.
// The original object cannot be recovered; only its type name survives.
type AnyPlaceholder string

// TypeOf returns the wire name of a value's variant.
func TypeOf(v Value) string {
	switch v.(type) {
	case None:
		return "none"
	case Text:
		return "text"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Map:
		return "map"
	case Any:
		return "any"
	default:
		return fmt.Sprintf("unknown(%T)", v)
	}
}

// Equal reports whether two values are structurally equal.
// Any values compare by identity of the wrapped object.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case None:
		_, ok := b.(None)
		return ok
	case Text:
		bv, ok := b.(Text)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	case Any:
		bv, ok := b.(Any)
		return ok && av.V == bv.V
	default:
		return false
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// MarshalJSON implements json.Marshaler for Map with sorted keys.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func (m Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalValue(m[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for List.
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalJSON records only the type name of the wrapped object.
func (a Any) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{anyKey: a.TypeName()})
}

// anyKey marks an encoded Any value in JSON objects.
const anyKey = "$any"

// MarshalValue marshals a Value to JSON bytes.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case None:
		return []byte("null"), nil
	case Text:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, fmt.Errorf("non-finite float: %v", float64(val))
		}
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case List:
		return val.MarshalJSON()
	case Map:
		return val.MarshalJSON()
	case Any:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalValue decodes JSON into a Value.
// Numbers without a fraction or exponent become Int; all others become Float.
// An object of the form {"$any": "<type>"} becomes Any{AnyPlaceholder}.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromNative(raw)
}

// FromNative converts a decoded JSON or YAML value into a Value.
// Accepts nil, bool, string, all Go integer and float kinds, json.Number,
// []any, map[string]any and map[any]any with string keys.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return None{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return Text(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid number %s: %w", s, err)
			}
			return Float(f), nil
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			converted, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = converted
		}
		return list, nil
	case map[string]any:
		if name, ok := anyPlaceholder(val); ok {
			return Any{V: name}, nil
		}
		m := make(Map, len(val))
		for k, elem := range val {
			converted, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			m[k] = converted
		}
		return m, nil
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("map key %v is %T, want string", k, k)
			}
			m[key] = elem
		}
		return FromNative(m)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func anyPlaceholder(m map[string]any) (AnyPlaceholder, bool) {
	if len(m) != 1 {
		return "", false
	}
	name, ok := m[anyKey].(string)
	return AnyPlaceholder(name), ok
}
