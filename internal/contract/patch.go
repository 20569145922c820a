package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/overlay/internal/ir"
)

// ProfileRef names a base profile: "name@version". An empty Version means
// "the highest registered version" when resolved through a factory.
type ProfileRef struct {
	Profile string `json:"profile"`
	Version string `json:"version,omitempty"`
}

// ParseProfileRef parses "name" or "name@version".
func ParseProfileRef(s string) (ProfileRef, error) {
	name, version, hasAt := strings.Cut(strings.TrimSpace(s), "@")
	if name == "" {
		return ProfileRef{}, NewValidation(s, "", "profile name must be non-empty")
	}
	if hasAt && !ValidVersion(version) {
		return ProfileRef{}, NewValidation(s, "", fmt.Sprintf("invalid semantic version %q", version))
	}
	return ProfileRef{Profile: name, Version: version}, nil
}

func (r ProfileRef) String() string {
	if r.Version == "" {
		return r.Profile
	}
	return r.Profile + "@" + r.Version
}

// Object returns the canonical shape used in hashes and envelopes.
func (r ProfileRef) Object() ir.Object {
	obj := ir.Object{"profile": ir.String(r.Profile)}
	if r.Version != "" {
		obj["version"] = ir.String(r.Version)
	}
	return obj
}

// Scope is the provenance tier a patch originates from.
type Scope string

const (
	ScopeProject      Scope = "project"
	ScopeOrganization Scope = "organization"
	ScopeGlobal       Scope = "global"
)

// Valid reports whether s is a known scope. The empty scope is valid and
// means "unspecified".
func (s Scope) Valid() bool {
	switch s {
	case "", ScopeProject, ScopeOrganization, ScopeGlobal:
		return true
	}
	return false
}

// Patch field names.
const (
	PatchFieldName          = "name"
	PatchFieldTargetVersion = "target_version"
	PatchFieldExtends       = "extends"
	PatchFieldScope         = "scope"
	PatchFieldSource        = "source"
	PatchFieldOverrides     = "overrides"
)

var patchFields = map[string]ir.Kind{
	PatchFieldName:          ir.KindString,
	PatchFieldTargetVersion: ir.KindString,
	PatchFieldExtends:       ir.KindObject,
	PatchFieldScope:         ir.KindString,
	PatchFieldSource:        ir.KindString,
	PatchFieldOverrides:     ir.KindObject,
}

// Patch is a partial contract document applied on top of a base.
//
// Overrides mirrors the contract's top-level shape with only the fields
// being changed. Patches carry no delete semantics; null is rejected.
type Patch struct {
	Name          string
	TargetVersion string
	Extends       *ProfileRef
	Scope         Scope
	Source        string
	Overrides     ir.Object
}

// Identity returns the patch that changes nothing.
func Identity() Patch {
	return Patch{Overrides: ir.Object{}}
}

// IsIdentity reports whether p changes nothing regardless of base.
func (p Patch) IsIdentity() bool {
	return len(p.Overrides) == 0 && p.TargetVersion == "" && p.Extends == nil
}

// Object returns the patch as a canonical ir.Object. Overrides is always
// present so that the identity patch hashes to a stable value.
func (p Patch) Object() ir.Object {
	overrides := ir.CloneObject(p.Overrides)
	if overrides == nil {
		overrides = ir.Object{}
	}
	obj := ir.Object{PatchFieldOverrides: overrides}
	if p.Name != "" {
		obj[PatchFieldName] = ir.String(p.Name)
	}
	if p.TargetVersion != "" {
		obj[PatchFieldTargetVersion] = ir.String(p.TargetVersion)
	}
	if p.Extends != nil {
		obj[PatchFieldExtends] = p.Extends.Object()
	}
	if p.Scope != "" {
		obj[PatchFieldScope] = ir.String(p.Scope)
	}
	if p.Source != "" {
		obj[PatchFieldSource] = ir.String(p.Source)
	}
	return obj
}

// Hash returns the canonical content hash of the patch.
func (p Patch) Hash() (string, error) {
	return ir.Hash(ir.DomainPatch, p.Object())
}

// Clone returns a deep copy of p.
func (p Patch) Clone() Patch {
	out := p
	out.Overrides = ir.CloneObject(p.Overrides)
	if p.Extends != nil {
		ext := *p.Extends
		out.Extends = &ext
	}
	return out
}

// PatchFromObject builds a Patch from a decoded document.
//
// Only the shape of the patch envelope is checked here. Override contents
// are checked by compiler.ValidatePatch and by the merger. Strings and keys
// are stored NFC-normalized.
func PatchFromObject(obj ir.Object) (Patch, error) {
	subject := stringField(obj, PatchFieldName)

	normalized, err := ir.Normalize(obj)
	if err != nil {
		return Patch{}, NewValidation(subject, "", err.Error())
	}
	obj = normalized.(ir.Object)
	for _, k := range obj.SortedKeys() {
		want, ok := patchFields[k]
		if !ok {
			return Patch{}, NewValidation(subject, k, fmt.Sprintf("unknown patch field %q", k))
		}
		if got := ir.KindOf(obj[k]); got != want {
			return Patch{}, NewValidation(subject, k, fmt.Sprintf("expected %s, got %s", want, got))
		}
	}

	p := Patch{
		Name:          subject,
		TargetVersion: stringField(obj, PatchFieldTargetVersion),
		Scope:         Scope(stringField(obj, PatchFieldScope)),
		Source:        stringField(obj, PatchFieldSource),
		Overrides:     objectField(obj, PatchFieldOverrides),
	}
	if p.Overrides == nil {
		p.Overrides = ir.Object{}
	}
	if ext, ok := obj[PatchFieldExtends].(ir.Object); ok {
		ref, err := refFromObject(ext)
		if err != nil {
			return Patch{}, NewValidation(subject, PatchFieldExtends, err.Error())
		}
		p.Extends = &ref
	}
	if !p.Scope.Valid() {
		return Patch{}, NewValidation(subject, PatchFieldScope, fmt.Sprintf("unknown scope %q", p.Scope))
	}
	return p, nil
}

func refFromObject(obj ir.Object) (ProfileRef, error) {
	for k := range obj {
		if k != "profile" && k != "version" {
			return ProfileRef{}, fmt.Errorf("unknown extends field %q", k)
		}
	}
	name, ok := obj["profile"].(ir.String)
	if !ok || name == "" {
		return ProfileRef{}, fmt.Errorf("extends.profile must be a non-empty string")
	}
	ref := ProfileRef{Profile: string(name)}
	if v, present := obj["version"]; present {
		s, ok := v.(ir.String)
		if !ok || !ValidVersion(string(s)) {
			return ProfileRef{}, fmt.Errorf("extends.version must be a semantic version")
		}
		ref.Version = string(s)
	}
	return ref, nil
}

// MarshalJSON encodes the patch in its document shape.
func (p Patch) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Object())
}

// UnmarshalJSON decodes a patch document.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var obj ir.Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	parsed, err := PatchFromObject(obj)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DecodePatchYAML parses a YAML patch document.
func DecodePatchYAML(data []byte) (Patch, error) {
	v, err := ir.DecodeYAML(data)
	if err != nil {
		return Patch{}, NewValidation("", "", err.Error())
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return Patch{}, NewValidation("", "", fmt.Sprintf("patch document must be a mapping, got %s", ir.KindOf(v)))
	}
	return PatchFromObject(obj)
}
