package ir

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for hashing.
// This is the ONLY serialization used for content-addressed identity.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units at every level
//  2. No HTML escaping (< > & are not escaped)
//  3. Strings and keys are NFC normalized
//  4. Floats and nulls are rejected
//
// Accepts Values and the plain Go shapes FromGo understands, so callers can
// hash ad-hoc maps without building Objects first.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil, Null:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case String:
		return writeCanonicalString(buf, string(val))
	case string:
		return writeCanonicalString(buf, val)
	case Int:
		fmt.Fprintf(buf, "%d", int64(val))
		return nil
	case int64:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case int:
		fmt.Fprintf(buf, "%d", val)
		return nil
	case Bool:
		writeBool(buf, bool(val))
		return nil
	case bool:
		writeBool(buf, val)
		return nil
	case List:
		return writeCanonicalList(buf, val)
	case Object:
		return writeCanonicalObject(buf, val)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case []any, map[string]any, []string:
		conv, err := fromGoForCanonical(val)
		if err != nil {
			return err
		}
		return writeCanonical(buf, conv)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func fromGoForCanonical(v any) (Value, error) {
	if ss, ok := v.([]string); ok {
		return Strings(ss...), nil
	}
	return FromGo(v)
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteString("true")
		return
	}
	buf.WriteString("false")
}

func writeCanonicalList(buf *bytes.Buffer, l List) error {
	buf.WriteByte('[')
	for i, elem := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, elem); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, obj Object) error {
	// Keys are normalized before sorting. NFC can merge two distinct keys
	// into one, which would make the encoding ambiguous, so that is an error.
	normalized := make(Object, len(obj))
	original := make(map[string]string, len(obj))
	for k, v := range obj {
		nk := norm.NFC.String(k)
		if prev, dup := original[nk]; dup {
			return fmt.Errorf("keys %q and %q are equal after NFC normalization", prev, k)
		}
		original[nk] = k
		normalized[nk] = v
	}

	buf.WriteByte('{')
	for i, k := range normalized.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", original[k], err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, normalized[k]); err != nil {
			return fmt.Errorf("%s: %w", original[k], err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeCanonicalString writes s NFC-normalized with RFC 8785 escaping:
// only control characters, backslash and quote are escaped.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators undoes encoding/json's \u2028 and \u2029 escapes,
// which RFC 8785 does not allow. Escape sequences are consumed pairwise so
// an escaped backslash followed by "u2028" text is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+6 <= len(data) {
			switch string(data[i+2 : i+6]) {
			case "2028":
				out = append(out, "\u2028"...)
				i += 5
				continue
			case "2029":
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}
