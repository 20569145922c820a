// Package merge applies patches to contracts.
//
// Merging is a pure function of (contract, patch): scalars replace, objects
// merge key by key with patch keys winning, and lists replace wholesale
// unless the schema marks the path additive. Nothing is ever mutated in
// place; every Apply returns a new contract.
package merge

import (
	"fmt"
	"slices"

	"github.com/roach88/overlay/internal/compiler"
	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/ir"
)

// Merger applies patches under a schema. A Merger is immutable after New
// and safe for concurrent use.
type Merger struct {
	schema      Schema
	strictPaths bool
}

// Option configures a Merger.
type Option func(*Merger)

// WithSchema replaces the default schema.
func WithSchema(s Schema) Option {
	return func(m *Merger) {
		m.schema = s
	}
}

// WithStrictPaths rejects unknown keys directly under "io".
func WithStrictPaths() Option {
	return func(m *Merger) {
		m.strictPaths = true
	}
}

// New creates a Merger using the default schema unless overridden.
func New(opts ...Option) *Merger {
	m := &Merger{schema: DefaultSchema()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Schema returns the merger's schema.
func (m *Merger) Schema() Schema {
	return m.schema
}

// Apply applies p to base. The patch's extends target, if any, is checked
// against base itself.
func (m *Merger) Apply(base contract.Contract, p contract.Patch) (contract.Contract, error) {
	return m.ApplyFrom(base.Ref(), base, p)
}

// ApplyFrom applies p to current, checking p's extends target against
// origin, the base profile a patch chain started from.
func (m *Merger) ApplyFrom(origin contract.ProfileRef, current contract.Contract, p contract.Patch) (contract.Contract, error) {
	subject := patchSubject(p)

	if ve := compiler.CheckExtends(p, origin); ve != nil {
		return contract.Contract{}, contract.NewValidation(subject, ve.Field, ve.Message)
	}
	if p.TargetVersion != "" {
		if !contract.ValidVersion(p.TargetVersion) {
			return contract.Contract{}, contract.NewValidation(subject, contract.PatchFieldTargetVersion,
				fmt.Sprintf("invalid semantic version %q", p.TargetVersion))
		}
		if !contract.SameVersion(p.TargetVersion, current.Version) {
			return contract.Contract{}, contract.NewValidation(subject, contract.PatchFieldTargetVersion,
				fmt.Sprintf("patch targets version %s but contract is at %s", p.TargetVersion, current.Version))
		}
	}
	if len(p.Overrides) == 0 {
		return current.Clone(), nil
	}
	if np, ok := ir.FindNull(p.Overrides); ok {
		return contract.Contract{}, contract.NewValidation(subject, np.String(),
			"null values are not allowed; patches cannot delete fields")
	}
	normalized, err := ir.Normalize(p.Overrides)
	if err != nil {
		return contract.Contract{}, contract.NewValidation(subject, contract.PatchFieldOverrides, err.Error())
	}
	overrides := normalized.(ir.Object)

	result := current.Object()
	for _, key := range overrides.SortedKeys() {
		val := overrides[key]

		f, ok := contract.LookupField(key)
		if !ok {
			return contract.Contract{}, contract.NewValidation(subject, key, fmt.Sprintf("unknown contract field %q", key))
		}
		if got := ir.KindOf(val); got != f.Kind {
			return contract.Contract{}, contract.NewValidation(subject, key, fmt.Sprintf("expected %s, got %s", f.Kind, got))
		}
		if m.schema.Protected(key) {
			if !ir.Equal(val, result[key]) {
				return contract.Contract{}, contract.NewMergeConflict(subject, key,
					fmt.Sprintf("protected field %q cannot be changed by a patch", key))
			}
			continue
		}
		if m.strictPaths && key == contract.FieldIO {
			if err := checkIOKeys(subject, val.(ir.Object)); err != nil {
				return contract.Contract{}, err
			}
		}

		merged, err := m.mergeValue(subject, ir.Path{key}, result[key], val)
		if err != nil {
			return contract.Contract{}, err
		}
		result[key] = merged
	}

	c, err := contract.FromObject(result)
	if err != nil {
		if cerr, ok := err.(*contract.Error); ok {
			cerr.Subject = subject
		}
		return contract.Contract{}, err
	}
	return c, nil
}

// mergeValue combines base (possibly nil when absent) with patch at path.
// The result never aliases either input.
func (m *Merger) mergeValue(subject string, at ir.Path, base, patch ir.Value) (ir.Value, error) {
	if base == nil {
		return ir.Clone(patch), nil
	}
	bk, pk := ir.KindOf(base), ir.KindOf(patch)
	if bk != pk && !(bk.Scalar() && pk.Scalar()) {
		return nil, contract.NewValidation(subject, at.String(),
			fmt.Sprintf("cannot change %s to %s", bk, pk))
	}

	switch pv := patch.(type) {
	case ir.Object:
		if m.schema.StrategyAt(at, pk) == contract.StrategyReplace {
			return ir.CloneObject(pv), nil
		}
		out := ir.CloneObject(base.(ir.Object))
		for _, k := range pv.SortedKeys() {
			merged, err := m.mergeValue(subject, at.Child(k), out[k], pv[k])
			if err != nil {
				return nil, err
			}
			out[k] = merged
		}
		return out, nil

	case ir.List:
		return combineLists(m.schema.StrategyAt(at, pk), base.(ir.List), pv), nil

	default:
		return patch, nil
	}
}

// combineLists merges two lists under st. Inputs are not modified.
func combineLists(st contract.MergeStrategy, base, patch ir.List) ir.List {
	switch st {
	case contract.StrategyAppend:
		out := make(ir.List, 0, len(base)+len(patch))
		out = append(out, ir.CloneList(base)...)
		return append(out, ir.CloneList(patch)...)

	case contract.StrategyUnion:
		out := ir.CloneList(base)
		if out == nil {
			out = ir.List{}
		}
		for _, elem := range patch {
			if !slices.ContainsFunc(out, func(v ir.Value) bool { return ir.Equal(v, elem) }) {
				out = append(out, ir.Clone(elem))
			}
		}
		return out

	default:
		return ir.CloneList(patch)
	}
}

func checkIOKeys(subject string, io ir.Object) error {
	for _, k := range io.SortedKeys() {
		if !slices.Contains(contract.IOKeys, k) {
			return contract.NewValidation(subject, ir.Path{contract.FieldIO, k}.String(),
				fmt.Sprintf("unknown io key %q", k))
		}
	}
	return nil
}

// patchSubject names a patch in errors.
func patchSubject(p contract.Patch) string {
	if p.Name != "" {
		return p.Name
	}
	return "<unnamed patch>"
}
