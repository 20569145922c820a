// Package diff computes structural diffs between contracts.
//
// A diff is advisory output. It never feeds back into merging.
package diff

import (
	"slices"
	"strings"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/ir"
)

// ChangeType classifies one change.
type ChangeType string

const (
	Added    ChangeType = "added"
	Removed  ChangeType = "removed"
	Modified ChangeType = "modified"
	Moved    ChangeType = "moved"
)

// Change is one field-path-level difference.
//
// Leaves are scalars, lists and empty objects; lists are compared whole.
// For Moved, From is the old path and Path the new one, and Before equals
// After.
type Change struct {
	Type   ChangeType `json:"type"`
	Path   string     `json:"path"`
	From   string     `json:"from,omitempty"`
	Before ir.Value   `json:"before,omitempty"`
	After  ir.Value   `json:"after,omitempty"`
}

// Diff is an ordered list of changes, sorted by path.
type Diff struct {
	Changes []Change `json:"changes"`
}

// Summary counts changes by type.
type Summary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
	Moved    int `json:"moved"`
}

// Total returns the number of changes.
func (s Summary) Total() int {
	return s.Added + s.Removed + s.Modified + s.Moved
}

// Summary counts d's changes by type.
func (d Diff) Summary() Summary {
	var s Summary
	for _, c := range d.Changes {
		switch c.Type {
		case Added:
			s.Added++
		case Removed:
			s.Removed++
		case Modified:
			s.Modified++
		case Moved:
			s.Moved++
		}
	}
	return s
}

// Empty reports whether d has no changes.
func (d Diff) Empty() bool {
	return len(d.Changes) == 0
}

// Compute diffs two contracts.
func Compute(before, after contract.Contract) Diff {
	return ComputeValues(before.Object(), after.Object())
}

type leaf struct {
	path  string
	value ir.Value
}

// ComputeValues diffs two documents. The result depends only on their
// content, never on construction order.
func ComputeValues(before, after ir.Object) Diff {
	bl := leaves(before)
	al := leaves(after)

	var changes []Change
	var removed, added []leaf

	for _, p := range sortedPaths(bl) {
		bv := bl[p]
		av, ok := al[p]
		switch {
		case !ok:
			removed = append(removed, leaf{p, bv})
		case !ir.Equal(bv, av):
			changes = append(changes, Change{Type: Modified, Path: p, Before: bv, After: av})
		}
	}
	for _, p := range sortedPaths(al) {
		if _, ok := bl[p]; !ok {
			added = append(added, leaf{p, al[p]})
		}
	}

	// Pair each removed leaf, in path order, with the first unclaimed added
	// leaf holding the same value.
	claimed := make([]bool, len(added))
	for _, r := range removed {
		rh, err := ir.ValueHash(r.value)
		match := -1
		if err == nil {
			for i, a := range added {
				if claimed[i] {
					continue
				}
				if ah, err := ir.ValueHash(a.value); err == nil && ah == rh {
					match = i
					break
				}
			}
		}
		if match < 0 {
			changes = append(changes, Change{Type: Removed, Path: r.path, Before: r.value})
			continue
		}
		claimed[match] = true
		changes = append(changes, Change{
			Type:   Moved,
			Path:   added[match].path,
			From:   r.path,
			Before: r.value,
			After:  added[match].value,
		})
	}
	for i, a := range added {
		if !claimed[i] {
			changes = append(changes, Change{Type: Added, Path: a.path, After: a.value})
		}
	}

	slices.SortFunc(changes, func(x, y Change) int {
		return strings.Compare(x.Path, y.Path)
	})
	if changes == nil {
		changes = []Change{}
	}
	return Diff{Changes: changes}
}

// leaves maps each leaf's rendered path to its value. Keys are compared in
// NFC and path syntax inside keys is quoted, so distinct keys never share a
// path.
func leaves(obj ir.Object) map[string]ir.Value {
	var v ir.Value = obj
	if n, err := ir.Normalize(obj); err == nil {
		v = n
	}
	out := make(map[string]ir.Value)
	collect(v, nil, out)
	return out
}

func collect(v ir.Value, at ir.Path, out map[string]ir.Value) {
	obj, ok := v.(ir.Object)
	if !ok || (len(obj) == 0 && len(at) > 0) {
		out[at.String()] = v
		return
	}
	for k, child := range obj {
		collect(child, at.Child(k), out)
	}
}

func sortedPaths(m map[string]ir.Value) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}
