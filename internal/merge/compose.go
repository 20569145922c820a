package merge

import (
	"fmt"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/ir"
)

// Compose returns the single patch whose effect equals applying p1 then p2:
//
//	Apply(Apply(b, p1), p2) == Apply(b, Compose(p1, p2))
//
// for every base b where the left side succeeds. Provenance (name, scope,
// source) does not survive composition.
func (m *Merger) Compose(p1, p2 contract.Patch) (contract.Patch, error) {
	subject := patchSubject(p1) + "+" + patchSubject(p2)

	out := contract.Patch{}

	switch {
	case p1.Extends == nil && p2.Extends != nil:
		ext := *p2.Extends
		out.Extends = &ext
	case p1.Extends != nil:
		if p2.Extends != nil && *p1.Extends != *p2.Extends {
			return contract.Patch{}, contract.NewValidation(subject, contract.PatchFieldExtends,
				fmt.Sprintf("patches extend different profiles: %s and %s", p1.Extends, p2.Extends))
		}
		ext := *p1.Extends
		out.Extends = &ext
	}

	// p2's target must be the version p1 leaves behind.
	out.TargetVersion = p1.TargetVersion
	if p2.TargetVersion != "" {
		after := p1.TargetVersion
		if v, ok := p1.Overrides[contract.FieldVersion].(ir.String); ok {
			after = string(v)
		}
		switch {
		case after == "":
			out.TargetVersion = p2.TargetVersion
		case !contract.SameVersion(after, p2.TargetVersion):
			return contract.Patch{}, contract.NewValidation(subject, contract.PatchFieldTargetVersion,
				fmt.Sprintf("second patch targets %s but first patch leaves %s", p2.TargetVersion, after))
		}
	}

	for _, f := range contract.Fields {
		if !m.schema.Protected(f.Name) {
			continue
		}
		a, inA := p1.Overrides[f.Name]
		b, inB := p2.Overrides[f.Name]
		if inA && inB && !ir.Equal(a, b) {
			return contract.Patch{}, contract.NewMergeConflict(subject, f.Name,
				fmt.Sprintf("patches set protected field %q to different values", f.Name))
		}
	}

	overrides := ir.CloneObject(p1.Overrides)
	if overrides == nil {
		overrides = ir.Object{}
	}
	for _, key := range p2.Overrides.SortedKeys() {
		merged, err := m.mergeValue(subject, ir.Path{key}, overrides[key], p2.Overrides[key])
		if err != nil {
			return contract.Patch{}, err
		}
		overrides[key] = merged
	}
	out.Overrides = overrides
	return out, nil
}

// ComposeAll folds Compose over patches in order. No patches compose to
// the identity patch.
func (m *Merger) ComposeAll(patches ...contract.Patch) (contract.Patch, error) {
	acc := contract.Identity()
	for _, p := range patches {
		next, err := m.Compose(acc, p)
		if err != nil {
			return contract.Patch{}, err
		}
		acc = next
	}
	return acc, nil
}
