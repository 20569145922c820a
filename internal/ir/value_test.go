package ir

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		value Value
		kind  Kind
	}{
		{Null{}, KindNull},
		{String("s"), KindString},
		{Int(1), KindInt},
		{Bool(true), KindBool},
		{List{}, KindList},
		{Object{}, KindObject},
		{nil, KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.value))
		})
	}
}

func TestEqual(t *testing.T) {
	a := Object{"x": List{Int(1), Object{"y": String("z")}}}

	assert.True(t, Equal(a, CloneObject(a)))
	assert.False(t, Equal(a, Object{"x": List{Int(1)}}))
	assert.False(t, Equal(Int(1), String("1")), "kinds differ")
	assert.False(t, Equal(Strings("a", "b"), Strings("b", "a")), "list order matters")
	assert.True(t, Equal(Null{}, Null{}))
}

func TestEqualMatchesHash(t *testing.T) {
	composed := Object{"owner": String("caf\u00e9")}
	decomposed := Object{"owner": String("cafe\u0301")}
	decomposedKey := Object{"cafe\u0301": Int(1)}

	tests := []struct {
		name string
		a, b Value
	}{
		{"strings", composed, decomposed},
		{"keys", Object{"caf\u00e9": Int(1)}, decomposedKey},
		{"different", composed, Object{"owner": String("cafe")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ha, err := ValueHash(tt.a)
			require.NoError(t, err)
			hb, err := ValueHash(tt.b)
			require.NoError(t, err)
			assert.Equal(t, ha == hb, Equal(tt.a, tt.b))
		})
	}
}

func TestDecodeNormalizesUnicode(t *testing.T) {
	fromJSON, err := DecodeJSON([]byte(`{"cafe\u0301": "cafe\u0301"}`))
	require.NoError(t, err)
	fromYAML, err := DecodeYAML([]byte("cafe\u0301: cafe\u0301\n"))
	require.NoError(t, err)

	want := Object{"caf\u00e9": String("caf\u00e9")}
	assert.Equal(t, want, fromJSON, "stored structure is already NFC")
	assert.Equal(t, want, fromYAML)

	_, err = DecodeJSON([]byte(`{"caf\u00e9": 1, "cafe\u0301": 2}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NFC")

	_, err = DecodeYAML([]byte("caf\u00e9: 1\ncafe\u0301: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNormalize(t *testing.T) {
	v, err := Normalize(Object{"l": List{String("cafe\u0301")}})
	require.NoError(t, err)
	assert.Equal(t, Object{"l": List{String("caf\u00e9")}}, v)

	_, err = Normalize(Object{"m": Object{"caf\u00e9": Int(1), "cafe\u0301": Int(2)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NFC")
}

func TestFloatErrorSuggestsAlternatives(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"cpu": 0.5}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFloat))
	assert.Contains(t, err.Error(), "as a string or an integer")

	_, err = DecodeYAML([]byte("cpu: 0.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "as a string or an integer")
}

func TestCloneIsDeep(t *testing.T) {
	orig := Object{"inner": Object{"n": Int(1)}, "list": List{Int(1)}}
	cp := CloneObject(orig)

	cp["inner"].(Object)["n"] = Int(2)
	cp["list"].(List)[0] = Int(9)

	assert.Equal(t, Int(1), orig["inner"].(Object)["n"])
	assert.Equal(t, Int(1), orig["list"].(List)[0])
	assert.Nil(t, CloneObject(nil))
}

func TestDecodeJSON(t *testing.T) {
	v, err := DecodeJSON([]byte(`{"b":[1,true,"s"],"a":{"n":null}}`))
	require.NoError(t, err)

	expected := Object{
		"a": Object{"n": Null{}},
		"b": List{Int(1), Bool(true), String("s")},
	}
	assert.True(t, Equal(expected, v))
}

func TestDecodeJSONRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"float", `{"x":1.5}`, "float"},
		{"exponent", `{"x":1e3}`, "float"},
		{"overflow", `{"x":99999999999999999999}`, "range"},
		{"trailing data", `{} {}`, "after JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSON([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestObjectJSONRoundTrip(t *testing.T) {
	orig := Object{"z": Int(1), "a": List{String("x"), Object{"k": Bool(false)}}}

	data, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",{"k":false}],"z":1}`, string(data))

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(orig, back))
}

func TestFindNull(t *testing.T) {
	p, ok := FindNull(Object{"a": Object{"b": List{Int(1), Null{}}}})
	require.True(t, ok)
	assert.Equal(t, "a.b[1]", p.String())

	_, ok = FindNull(Object{"a": Int(1)})
	assert.False(t, ok)
}

func TestPath(t *testing.T) {
	p := ParsePath("algorithm.retry")
	child := p.Child("max")

	assert.Equal(t, "algorithm.retry", p.String(), "Child must not modify receiver")
	assert.Equal(t, "algorithm.retry.max", child.String())
	assert.Equal(t, "tags[0]", Path{"tags"}.Index(0).String())
	assert.Equal(t, "algorithm", child.Top())
	assert.Nil(t, ParsePath(""))

	obj := Object{"algorithm": Object{"retry": Object{"max": Int(3)}}, "tags": Strings("x")}
	v, ok := Lookup(obj, child)
	require.True(t, ok)
	assert.Equal(t, Int(3), v)

	v, ok = Lookup(obj, Path{"tags"}.Index(0))
	require.True(t, ok)
	assert.Equal(t, String("x"), v)

	_, ok = Lookup(obj, Path{"tags"}.Index(4))
	assert.False(t, ok)
}

func TestPathQuotesSyntaxKeys(t *testing.T) {
	tests := []struct {
		path Path
		want string
	}{
		{Path{"algorithm", "retry.max_attempts"}, `algorithm["retry.max_attempts"]`},
		{Path{"algorithm", "retry", "max_attempts"}, "algorithm.retry.max_attempts"},
		{Path{"a.b", "c"}, `["a.b"].c`},
		{Path{"tags", "[1]", "x]"}, `tags[1]["x]"]`},
		{Path{"m", ""}, `m[""]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.path.String())
	}
}

func TestFindPathKey(t *testing.T) {
	p, ok := FindPathKey(Object{"a": List{Object{"ok": Int(1), "b.c": Int(2)}}})
	require.True(t, ok)
	assert.Equal(t, `a[0]["b.c"]`, p.String())

	_, ok = FindPathKey(Object{"a": Object{"b": Strings("c.d")}})
	assert.False(t, ok, "values may contain path syntax")
}

func TestDecodeYAML(t *testing.T) {
	doc := `
name: compute_pure
limits:
  memory_mb: 512
  enabled: yes_string
flags: [true, false]
anchor: &a {k: v}
alias: *a
empty: ~
`
	v, err := DecodeYAML([]byte(doc))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, String("compute_pure"), obj["name"])
	assert.Equal(t, Int(512), obj["limits"].(Object)["memory_mb"])
	assert.Equal(t, String("yes_string"), obj["limits"].(Object)["enabled"])
	assert.True(t, Equal(List{Bool(true), Bool(false)}, obj["flags"]))
	assert.True(t, Equal(obj["anchor"], obj["alias"]))
	assert.Equal(t, Null{}, obj["empty"])
}

func TestDecodeYAMLRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
	}{
		{"float", "ratio: 0.5\n", "floats are forbidden"},
		{"duplicate key", "a: 1\na: 2\n", "duplicate"},
		{"merge key", "base: &b {x: 1}\nderived:\n  <<: *b\n", "merge keys"},
		{"syntax", "a: [1, 2\n", "parse YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeYAML([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestDecodeYAMLEmpty(t *testing.T) {
	v, err := DecodeYAML(nil)
	require.NoError(t, err)
	assert.True(t, Equal(Object{}, v))
}
