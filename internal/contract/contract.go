package contract

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/overlay/internal/ir"
)

// Contract is the resolved, executable configuration document for a node.
//
// Identity is (Name, Version). The body fields are opaque beyond structural
// merge. A Contract never embeds patch history; that lives in the
// resolution result.
type Contract struct {
	Name         string
	Version      string
	NodeType     NodeType
	Description  string
	Algorithm    ir.Object
	Behavior     ir.Object
	Resources    ir.Object
	IO           ir.Object
	Dependencies ir.List
	Capabilities ir.List
	Tags         ir.List
	Metadata     ir.Object
}

// Ref returns the profile reference identifying this contract.
func (c Contract) Ref() ProfileRef {
	return ProfileRef{Profile: c.Name, Version: c.Version}
}

// Object returns the contract as a canonical ir.Object.
//
// Empty optional fields are omitted, so a contract built with an empty
// Algorithm and one built with a nil Algorithm have the same hash.
// The returned Object is a deep copy.
func (c Contract) Object() ir.Object {
	obj := ir.Object{
		FieldName:     ir.String(c.Name),
		FieldVersion:  ir.String(c.Version),
		FieldNodeType: ir.String(c.NodeType),
	}
	if c.Description != "" {
		obj[FieldDescription] = ir.String(c.Description)
	}
	putObject(obj, FieldAlgorithm, c.Algorithm)
	putObject(obj, FieldBehavior, c.Behavior)
	putObject(obj, FieldResources, c.Resources)
	putObject(obj, FieldIO, c.IO)
	putList(obj, FieldDependencies, c.Dependencies)
	putList(obj, FieldCapabilities, c.Capabilities)
	putList(obj, FieldTags, c.Tags)
	putObject(obj, FieldMetadata, c.Metadata)
	return obj
}

func putObject(dst ir.Object, key string, v ir.Object) {
	if len(v) > 0 {
		dst[key] = ir.CloneObject(v)
	}
}

func putList(dst ir.Object, key string, v ir.List) {
	if len(v) > 0 {
		dst[key] = ir.CloneList(v)
	}
}

// Clone returns a deep copy of c.
func (c Contract) Clone() Contract {
	out := c
	out.Algorithm = ir.CloneObject(c.Algorithm)
	out.Behavior = ir.CloneObject(c.Behavior)
	out.Resources = ir.CloneObject(c.Resources)
	out.IO = ir.CloneObject(c.IO)
	out.Dependencies = ir.CloneList(c.Dependencies)
	out.Capabilities = ir.CloneList(c.Capabilities)
	out.Tags = ir.CloneList(c.Tags)
	out.Metadata = ir.CloneObject(c.Metadata)
	return out
}

// FromObject builds a Contract from a document, enforcing the closed schema.
//
// Unknown top-level fields, kind mismatches, nulls anywhere in the body,
// keys containing path syntax, an invalid version or an unknown node type
// are VALIDATION errors. Strings and keys are stored NFC-normalized.
func FromObject(obj ir.Object) (Contract, error) {
	subject := subjectOf(obj)

	normalized, err := ir.Normalize(obj)
	if err != nil {
		return Contract{}, NewValidation(subject, "", err.Error())
	}
	obj = normalized.(ir.Object)

	for _, k := range obj.SortedKeys() {
		f, ok := LookupField(k)
		if !ok {
			return Contract{}, NewValidation(subject, k, fmt.Sprintf("unknown contract field %q", k))
		}
		if got := ir.KindOf(obj[k]); got != f.Kind {
			return Contract{}, NewValidation(subject, k, fmt.Sprintf("expected %s, got %s", f.Kind, got))
		}
	}
	if p, ok := ir.FindNull(obj); ok {
		return Contract{}, NewValidation(subject, p.String(), "null values are not allowed")
	}
	if p, ok := ir.FindPathKey(obj); ok {
		return Contract{}, NewValidation(subject, p.String(), ir.ErrPathKey.Error())
	}
	for _, f := range Fields {
		if _, ok := obj[f.Name]; f.Required && !ok {
			return Contract{}, NewValidation(subject, f.Name, "required field is missing")
		}
	}

	c := Contract{
		Name:         string(obj[FieldName].(ir.String)),
		Version:      string(obj[FieldVersion].(ir.String)),
		NodeType:     NodeType(obj[FieldNodeType].(ir.String)),
		Description:  stringField(obj, FieldDescription),
		Algorithm:    objectField(obj, FieldAlgorithm),
		Behavior:     objectField(obj, FieldBehavior),
		Resources:    objectField(obj, FieldResources),
		IO:           objectField(obj, FieldIO),
		Dependencies: listField(obj, FieldDependencies),
		Capabilities: listField(obj, FieldCapabilities),
		Tags:         listField(obj, FieldTags),
		Metadata:     objectField(obj, FieldMetadata),
	}

	if c.Name == "" {
		return Contract{}, NewValidation(subject, FieldName, "name must be non-empty")
	}
	if !ValidVersion(c.Version) {
		return Contract{}, NewValidation(subject, FieldVersion, fmt.Sprintf("invalid semantic version %q", c.Version))
	}
	if !c.NodeType.Valid() {
		return Contract{}, NewValidation(subject, FieldNodeType, fmt.Sprintf("unknown node type %q", c.NodeType))
	}
	return c, nil
}

func subjectOf(obj ir.Object) string {
	name, _ := obj[FieldName].(ir.String)
	version, _ := obj[FieldVersion].(ir.String)
	if name == "" {
		return ""
	}
	return ProfileRef{Profile: string(name), Version: string(version)}.String()
}

func stringField(obj ir.Object, key string) string {
	s, _ := obj[key].(ir.String)
	return string(s)
}

func objectField(obj ir.Object, key string) ir.Object {
	o, _ := obj[key].(ir.Object)
	return ir.CloneObject(o)
}

func listField(obj ir.Object, key string) ir.List {
	l, _ := obj[key].(ir.List)
	return ir.CloneList(l)
}

// Hash returns the canonical content hash of the contract.
func (c Contract) Hash() (string, error) {
	return ir.Hash(ir.DomainContract, c.Object())
}

// Equal reports whether two contracts are structurally identical.
func (c Contract) Equal(other Contract) bool {
	return ir.Equal(c.Object(), other.Object())
}

// MarshalJSON encodes the contract as its canonical object shape.
func (c Contract) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Object())
}

// UnmarshalJSON decodes and validates a contract document.
func (c *Contract) UnmarshalJSON(data []byte) error {
	var obj ir.Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	parsed, err := FromObject(obj)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DecodeContract parses a YAML or JSON contract document.
func DecodeContract(data []byte) (Contract, error) {
	v, err := ir.DecodeYAML(data)
	if err != nil {
		return Contract{}, NewValidation("", "", err.Error())
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return Contract{}, NewValidation("", "", fmt.Sprintf("contract document must be a mapping, got %s", ir.KindOf(v)))
	}
	return FromObject(obj)
}
