package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/overlay/internal/ir"
)

func sampleContract() Contract {
	return Contract{
		Name:     "compute_pure",
		Version:  "1.0.0",
		NodeType: NodeCompute,
		Algorithm: ir.Object{
			"retry": ir.Object{"max_attempts": ir.Int(3)},
		},
		Dependencies: ir.Strings("logger"),
	}
}

func TestContractObjectOmitsEmptyFields(t *testing.T) {
	c := sampleContract()
	obj := c.Object()

	assert.Equal(t, ir.String("compute_pure"), obj[FieldName])
	assert.Contains(t, obj, FieldAlgorithm)
	assert.NotContains(t, obj, FieldBehavior)
	assert.NotContains(t, obj, FieldDescription)

	withEmpty := c.Clone()
	withEmpty.Behavior = ir.Object{}
	withEmpty.Tags = ir.List{}

	h1, err := c.Hash()
	require.NoError(t, err)
	h2, err := withEmpty.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "empty and absent optional fields must hash the same")
}

func TestContractObjectIsACopy(t *testing.T) {
	c := sampleContract()
	obj := c.Object()
	obj[FieldAlgorithm].(ir.Object)["retry"] = ir.Int(0)

	assert.Equal(t, ir.Object{"max_attempts": ir.Int(3)}, c.Algorithm["retry"])
}

func TestFromObjectRoundTrip(t *testing.T) {
	c := sampleContract()

	back, err := FromObject(c.Object())
	require.NoError(t, err)
	assert.True(t, c.Equal(back))
}

func TestFromObjectRejects(t *testing.T) {
	base := func() ir.Object { return sampleContract().Object() }

	tests := []struct {
		name   string
		mutate func(ir.Object)
		path   string
	}{
		{"unknown field", func(o ir.Object) { o["timeout_ms"] = ir.Int(1) }, "timeout_ms"},
		{"kind mismatch", func(o ir.Object) { o[FieldTags] = ir.String("x") }, FieldTags},
		{"missing version", func(o ir.Object) { delete(o, FieldVersion) }, FieldVersion},
		{"bad version", func(o ir.Object) { o[FieldVersion] = ir.String("1.0") }, FieldVersion},
		{"v prefix", func(o ir.Object) { o[FieldVersion] = ir.String("v1.0.0") }, FieldVersion},
		{"empty name", func(o ir.Object) { o[FieldName] = ir.String("") }, FieldName},
		{"bad node type", func(o ir.Object) { o[FieldNodeType] = ir.String("lambda") }, FieldNodeType},
		{"nested null", func(o ir.Object) {
			o[FieldAlgorithm] = ir.Object{"retry": ir.Null{}}
		}, "algorithm.retry"},
		{"dotted key", func(o ir.Object) {
			o[FieldAlgorithm] = ir.Object{"retry.max_attempts": ir.Int(5)}
		}, `algorithm["retry.max_attempts"]`},
		{"bracketed key", func(o ir.Object) {
			o[FieldMetadata] = ir.Object{"owners": ir.List{ir.Object{"team[0]": ir.String("a")}}}
		}, `metadata.owners[0]["team[0]"]`},
		{"keys equal under NFC", func(o ir.Object) {
			o[FieldMetadata] = ir.Object{"caf\u00e9": ir.Int(1), "cafe\u0301": ir.Int(2)}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := base()
			tt.mutate(obj)

			_, err := FromObject(obj)
			require.Error(t, err)
			assert.True(t, IsValidation(err))

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.path, e.Path)
		})
	}
}

func TestFromObjectNormalizesUnicode(t *testing.T) {
	composed := sampleContract()
	composed.Metadata = ir.Object{"owner": ir.String("caf\u00e9")}
	decomposed := sampleContract()
	decomposed.Metadata = ir.Object{"owner": ir.String("cafe\u0301")}

	a, err := FromObject(composed.Object())
	require.NoError(t, err)
	b, err := FromObject(decomposed.Object())
	require.NoError(t, err)

	assert.Equal(t, ir.String("caf\u00e9"), b.Metadata["owner"])
	assert.True(t, a.Equal(b))

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestContractJSON(t *testing.T) {
	c := sampleContract()

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "compute_pure",
		"version": "1.0.0",
		"node_type": "compute",
		"algorithm": {"retry": {"max_attempts": 3}},
		"dependencies": ["logger"]
	}`, string(data))

	var back Contract
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, c.Equal(back))

	err = json.Unmarshal([]byte(`{"name":"x","version":"1.0.0","node_type":"compute","extra":1}`), &back)
	assert.True(t, IsValidation(err))
}

func TestContractHashIgnoresConstructionOrder(t *testing.T) {
	a := sampleContract()
	b := Contract{
		Dependencies: ir.Strings("logger"),
		Algorithm: ir.NewObject(
			ir.O("retry", ir.NewObject(ir.O("max_attempts", ir.Int(3)))),
		),
		NodeType: NodeCompute,
		Version:  "1.0.0",
		Name:     "compute_pure",
	}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestVersions(t *testing.T) {
	assert.True(t, ValidVersion("1.2.3"))
	assert.True(t, ValidVersion("1.2.3-rc.1"))
	assert.False(t, ValidVersion("1.2"))
	assert.False(t, ValidVersion("v1.2.3"))
	assert.False(t, ValidVersion(""))

	assert.Equal(t, -1, CompareVersions("1.2.3", "1.10.0"))
	assert.Equal(t, 1, CompareVersions("2.0.0", "2.0.0-rc.1"))
	assert.True(t, SameVersion("1.0.0", "1.0.0"))
	assert.False(t, SameVersion("1.0.0", "1.0.1"))
}

func TestErrorFormatting(t *testing.T) {
	err := NewMergeConflict("tighten-limits", "name", "protected field cannot change")
	assert.Equal(t, "MERGE_CONFLICT: protected field cannot change (subject=tighten-limits, path=name)", err.Error())
	assert.True(t, IsMergeConflict(err))
	assert.False(t, IsNotFound(err))

	wrapped := &Error{Code: ErrCodeNotFound, Message: "no such profile", Err: assert.AnError}
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.Equal(t, ErrorCode(""), CodeOf(assert.AnError))
}

func TestDecodeContract(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		c, err := DecodeContract([]byte("name: effect_io\nversion: 2.1.0\nnode_type: effect\ntags: [io]\n"))
		require.NoError(t, err)
		assert.Equal(t, NodeEffect, c.NodeType)
		assert.Equal(t, ir.Strings("io"), c.Tags)
	})

	t.Run("json", func(t *testing.T) {
		c, err := DecodeContract([]byte(`{"name":"effect_io","version":"2.1.0","node_type":"effect"}`))
		require.NoError(t, err)
		assert.Equal(t, "effect_io@2.1.0", c.Ref().String())
	})

	t.Run("scalar document", func(t *testing.T) {
		_, err := DecodeContract([]byte("42\n"))
		assert.True(t, IsValidation(err))
	})
}
