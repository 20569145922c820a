package ir

import (
	"errors"
	"slices"
	"strconv"
	"strings"
)

// ErrPathKey is reported for object keys that contain path syntax.
var ErrPathKey = errors.New(`keys must not contain ".", "[" or "]"`)

// Path addresses a value inside an Object. Key segments are plain names;
// list positions are stored as "[i]" segments.
type Path []string

// ParsePath splits a dotted path ("algorithm.retry.max"). It does not parse
// list positions; schema paths never contain them.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

// Child returns a new path with key appended. The receiver is not modified.
func (p Path) Child(key string) Path {
	return append(slices.Clip(p), key)
}

// Index returns a new path addressing list position i.
func (p Path) Index(i int) Path {
	return append(slices.Clip(p), "["+strconv.Itoa(i)+"]")
}

// String renders the path as "a.b[2].c". Keys that would read as path
// syntax are quoted in brackets: a["x.y"].
func (p Path) String() string {
	var sb strings.Builder
	for i, seg := range p {
		switch {
		case isIndex(seg):
			sb.WriteString(seg)
		case needsQuote(seg):
			sb.WriteByte('[')
			sb.WriteString(strconv.Quote(seg))
			sb.WriteByte(']')
		default:
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(seg)
		}
	}
	return sb.String()
}

func isIndex(seg string) bool {
	if len(seg) < 3 || seg[0] != '[' || seg[len(seg)-1] != ']' {
		return false
	}
	_, err := strconv.Atoi(seg[1 : len(seg)-1])
	return err == nil
}

func needsQuote(key string) bool {
	return key == "" || strings.ContainsAny(key, `.[]"\`)
}

// FindPathKey returns the path of the first object key inside v that
// contains ".", "[" or "]", in sorted key order.
func FindPathKey(v Value) (Path, bool) {
	return findPathKey(v, nil)
}

func findPathKey(v Value, at Path) (Path, bool) {
	switch val := v.(type) {
	case List:
		for i, elem := range val {
			if p, ok := findPathKey(elem, at.Index(i)); ok {
				return p, true
			}
		}
	case Object:
		for _, k := range val.SortedKeys() {
			if strings.ContainsAny(k, ".[]") {
				return at.Child(k), true
			}
			if p, ok := findPathKey(val[k], at.Child(k)); ok {
				return p, true
			}
		}
	}
	return nil, false
}

// Top returns the first segment, or "" for the empty path.
func (p Path) Top() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Lookup returns the value at p inside obj.
func Lookup(obj Object, p Path) (Value, bool) {
	var cur Value = obj
	for _, seg := range p {
		switch c := cur.(type) {
		case Object:
			next, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case List:
			if !strings.HasPrefix(seg, "[") || !strings.HasSuffix(seg, "]") {
				return nil, false
			}
			i, err := strconv.Atoi(seg[1 : len(seg)-1])
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
