package merge

import (
	"fmt"
	"maps"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/ir"
)

// Schema maps field paths to merge strategies and marks protected fields.
//
// Paths are dotted ("io.event_topics"). A path with no entry falls back to
// key-merge for objects and replace for everything else. A Schema is a
// value; With returns a modified copy.
type Schema struct {
	strategies map[string]contract.MergeStrategy
	protected  map[string]bool
}

// DefaultSchema returns the schema derived from contract.Fields.
func DefaultSchema() Schema {
	s := Schema{
		strategies: make(map[string]contract.MergeStrategy, len(contract.Fields)),
		protected:  make(map[string]bool),
	}
	for _, f := range contract.Fields {
		s.strategies[f.Name] = f.Strategy
		if f.Protected {
			s.protected[f.Name] = true
		}
	}
	return s
}

// With returns a copy of s using strategy st at path.
func (s Schema) With(path string, st contract.MergeStrategy) (Schema, error) {
	if !st.Valid() {
		return Schema{}, fmt.Errorf("unknown merge strategy %q for %s", st, path)
	}
	if path == "" {
		return Schema{}, fmt.Errorf("merge strategy path must be non-empty")
	}
	top := ir.ParsePath(path).Top()
	f, ok := contract.LookupField(top)
	if !ok {
		return Schema{}, fmt.Errorf("merge strategy path %s: unknown field %q", path, top)
	}
	if top == path && f.Kind != ir.KindList && st.Additive() {
		return Schema{}, fmt.Errorf("merge strategy %s needs a list field, %s is %s", st, path, f.Kind)
	}

	out := Schema{
		strategies: maps.Clone(s.strategies),
		protected:  maps.Clone(s.protected),
	}
	out.strategies[path] = st
	return out, nil
}

// StrategyAt returns the strategy for p given the kind of the incoming value.
func (s Schema) StrategyAt(p ir.Path, kind ir.Kind) contract.MergeStrategy {
	if st, ok := s.strategies[p.String()]; ok {
		// An additive or merge strategy only applies to its own kind.
		switch {
		case st.Additive() && kind == ir.KindList,
			st == contract.StrategyMerge && kind == ir.KindObject,
			st == contract.StrategyReplace:
			return st
		}
	}
	if kind == ir.KindObject {
		return contract.StrategyMerge
	}
	return contract.StrategyReplace
}

// Protected reports whether the top-level field cannot be changed by a patch.
func (s Schema) Protected(field string) bool {
	return s.protected[field]
}
