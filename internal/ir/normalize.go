package ir

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// nfc returns s in Unicode normalization form C.
func nfc(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// Normalize returns a copy of v with every string and object key in NFC.
// Two keys of one object that normalize to the same key are an error.
//
// The decoders (DecodeJSON, DecodeYAML, FromGo) already normalize, so a
// decoded value is stored exactly as it hashes.
func Normalize(v Value) (Value, error) {
	return normalize(v, nil)
}

func normalize(v Value, at Path) (Value, error) {
	switch val := v.(type) {
	case String:
		return String(nfc(string(val))), nil
	case List:
		if val == nil {
			return val, nil
		}
		out := make(List, len(val))
		for i, elem := range val {
			n, err := normalize(elem, at.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case Object:
		if val == nil {
			return val, nil
		}
		out := make(Object, len(val))
		for _, k := range val.SortedKeys() {
			nk := nfc(k)
			if _, dup := out[nk]; dup {
				return nil, fmt.Errorf("%s: keys are equal after NFC normalization", at.Child(nk))
			}
			n, err := normalize(val[k], at.Child(nk))
			if err != nil {
				return nil, err
			}
			out[nk] = n
		}
		return out, nil
	default:
		return v, nil
	}
}

// lookupNFC finds the value stored under a key that is NFC-equal to k.
func lookupNFC(obj Object, k string) (Value, bool) {
	if v, ok := obj[k]; ok {
		return v, true
	}
	want := nfc(k)
	for other, v := range obj {
		if nfc(other) == want {
			return v, true
		}
	}
	return nil, false
}
