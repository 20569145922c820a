package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/overlay/internal/ir"
)

func TestParseProfileRef(t *testing.T) {
	tests := []struct {
		input   string
		want    ProfileRef
		wantErr bool
	}{
		{"compute_pure", ProfileRef{Profile: "compute_pure"}, false},
		{"compute_pure@1.2.0", ProfileRef{Profile: "compute_pure", Version: "1.2.0"}, false},
		{" effect_io@2.0.0 ", ProfileRef{Profile: "effect_io", Version: "2.0.0"}, false},
		{"@1.0.0", ProfileRef{}, true},
		{"compute_pure@latest", ProfileRef{}, true},
		{"", ProfileRef{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProfileRef(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) ProfileRef {
	t.Helper()
	ref, err := ParseProfileRef(s)
	require.NoError(t, err)
	return ref
}

func TestDecodePatchYAML(t *testing.T) {
	doc := `
name: tighten-limits
target_version: 1.0.0
scope: project
source: repo://svc/overlays/limits.yaml
extends:
  profile: compute_pure
  version: 1.0.0
overrides:
  resources:
    memory_mb: 256
  tags: [prod]
`
	p, err := DecodePatchYAML([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "tighten-limits", p.Name)
	assert.Equal(t, "1.0.0", p.TargetVersion)
	assert.Equal(t, ScopeProject, p.Scope)
	require.NotNil(t, p.Extends)
	assert.Equal(t, "compute_pure@1.0.0", p.Extends.String())
	assert.Equal(t, ir.Int(256), p.Overrides[FieldResources].(ir.Object)["memory_mb"])
}

func TestDecodePatchYAMLRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"unknown field", "name: x\npriority: 3\n", "unknown patch field"},
		{"bad scope", "scope: galaxy\n", "unknown scope"},
		{"overrides not a map", "overrides: [1]\n", "expected object"},
		{"extends without profile", "extends: {version: 1.0.0}\n", "extends.profile"},
		{"extends bad version", "extends: {profile: a, version: one}\n", "extends.version"},
		{"float", "overrides: {resources: {cpu: 0.5}}\n", "floats are forbidden"},
		{"not a mapping", "- a\n- b\n", "must be a mapping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePatchYAML([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestPatchHash(t *testing.T) {
	p := Patch{
		Name:      "raise-retries",
		Overrides: ir.Object{FieldAlgorithm: ir.Object{"retry": ir.Object{"max_attempts": ir.Int(5)}}},
	}

	h1, err := p.Hash()
	require.NoError(t, err)
	h2, err := p.Clone().Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	renamed := p.Clone()
	renamed.Name = "other"
	h3, err := renamed.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3, "patch identity includes its metadata")

	// A patch and a contract with the same canonical bytes still differ.
	hv, err := ir.Hash(ir.DomainContract, p.Object())
	require.NoError(t, err)
	assert.NotEqual(t, h1, hv)
}

func TestIdentityPatch(t *testing.T) {
	id := Identity()
	assert.True(t, id.IsIdentity())
	assert.True(t, Patch{}.IsIdentity())

	h1, err := id.Hash()
	require.NoError(t, err)
	h2, err := Patch{}.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	assert.False(t, Patch{TargetVersion: "1.0.0"}.IsIdentity())
}

func TestPatchJSONRoundTrip(t *testing.T) {
	p := Patch{
		Name:      "p1",
		Scope:     ScopeOrganization,
		Extends:   &ProfileRef{Profile: "effect_io", Version: "1.0.0"},
		Overrides: ir.Object{FieldTags: ir.Strings("a")},
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var back Patch
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)
}

func TestOverlayRefJSON(t *testing.T) {
	ref := OverlayRef{ID: "p1", Version: "1.0.0", Hash: "abc", Scope: ScopeGlobal, OrderIndex: 2}

	data, err := json.Marshal(ref)
	require.NoError(t, err)
	assert.JSONEq(t, `{"overlay_id":"p1","version":"1.0.0","content_hash":"abc","scope":"global","order_index":2}`, string(data))

	assert.Equal(t, ir.Int(2), ref.Object()["order_index"])
	assert.NotContains(t, ref.Object(), "source")
}
