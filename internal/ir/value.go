package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf16"
)

// ErrFloat is the message of every float rejection. JSON decoding wraps it.
var ErrFloat = errors.New("floats are forbidden; write the value as a string or an integer")

// Value is a sealed interface over the constrained value types.
// Only Null, String, Int, Bool, List and Object implement it.
// There is no Float - floats are rejected at every decode boundary.
type Value interface {
	irValue()
}

// Null represents an explicit JSON/YAML null. It is kept so validation can
// point at the offending path; canonical marshaling rejects it.
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string value.
type String string

func (String) irValue() {}

// Int is an integer value. Always int64.
type Int int64

func (Int) irValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// List is an ordered list of values. Position is significant.
type List []Value

func (List) irValue() {}

// Object maps string keys to values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) irValue() {}

// Kind names the dynamic type of a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindNull
	KindString
	KindInt
	KindBool
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Scalar reports whether k is a string, int or bool. Null is not a scalar.
func (k Kind) Scalar() bool {
	return k == KindString || k == KindInt || k == KindBool
}

// KindOf returns the Kind of v. A nil Value is KindInvalid.
func KindOf(v Value) Kind {
	switch v.(type) {
	case Null:
		return KindNull
	case String:
		return KindString
	case Int:
		return KindInt
	case Bool:
		return KindBool
	case List:
		return KindList
	case Object:
		return KindObject
	default:
		return KindInvalid
	}
}

// Pair is a key/value pair for ergonomic Object construction.
type Pair struct {
	Key   string
	Value Value
}

// O is shorthand for Pair.
// Example: NewObject(O("name", String("cart")), O("limit", Int(5)))
func O(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// NewObject builds an Object from pairs. Later pairs win on duplicate keys.
func NewObject(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Strings builds a List of String values.
func Strings(ss ...string) List {
	l := make(List, len(ss))
	for i, s := range ss {
		l[i] = String(s)
	}
	return l
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's default string ordering is UTF-8 byte order, which differs for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Equal reports whether a and b are structurally equal.
// Object key order never matters; List order always does. Strings and keys
// compare under NFC, matching MarshalCanonical.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && (av == bv || nfc(string(av)) == nfc(string(bv)))
	case Int:
		bv, ok := b.(Int)
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
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := lookupNFC(bv, k)
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

// Clone returns a deep copy of v. Scalars are returned as is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case List:
		return CloneList(val)
	case Object:
		return CloneObject(val)
	default:
		return v
	}
}

// CloneObject returns a deep copy of obj. A nil Object clones to nil.
func CloneObject(obj Object) Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = Clone(v)
	}
	return out
}

// CloneList returns a deep copy of l.
func CloneList(l List) List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	for i, v := range l {
		out[i] = Clone(v)
	}
	return out
}

// MarshalJSON implements json.Marshaler with sorted keys.
// NOTE: this is NOT canonical marshaling (HTML escaping, no NFC). Use
// MarshalCanonical for anything that is hashed.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(obj[k])
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
		b, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalValue marshals any Value to (non-canonical) JSON.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	case List:
		return val.MarshalJSON()
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	v, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	o, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected object, got %s", KindOf(v))
	}
	*obj = o
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for List.
func (l *List) UnmarshalJSON(data []byte) error {
	v, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	list, ok := v.(List)
	if !ok {
		return fmt.Errorf("expected list, got %s", KindOf(v))
	}
	*l = list
	return nil
}

// DecodeJSON parses a single JSON document into a Value.
// Floats are rejected. null decodes to Null so callers can report where it
// appeared; trailing data after the document is an error.
func DecodeJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON document")
	}
	return FromGo(raw)
}

// FromGo converts decoded Go data (json or plain literals) into a Value.
// Strings and keys come out NFC-normalized.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return Normalize(val)
	case bool:
		return Bool(val), nil
	case string:
		return String(nfc(val)), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("%w: %s", ErrFloat, s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("%w: %v", ErrFloat, val)
	case []any:
		l := make(List, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			l[i] = conv
		}
		return l, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			nk := nfc(k)
			if _, dup := obj[nk]; dup {
				return nil, fmt.Errorf("%s: keys are equal after NFC normalization", nk)
			}
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			obj[nk] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// FindNull returns the path of the first Null inside v, in sorted key order.
func FindNull(v Value) (Path, bool) {
	return findNull(v, nil)
}

func findNull(v Value, at Path) (Path, bool) {
	switch val := v.(type) {
	case Null:
		return at, true
	case List:
		for i, elem := range val {
			if p, ok := findNull(elem, at.Index(i)); ok {
				return p, true
			}
		}
	case Object:
		for _, k := range val.SortedKeys() {
			if p, ok := findNull(val[k], at.Child(k)); ok {
				return p, true
			}
		}
	}
	return nil, false
}
