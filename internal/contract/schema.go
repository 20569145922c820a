package contract

import (
	"github.com/roach88/overlay/internal/ir"
)

// Top-level contract field names (snake_case on the wire).
const (
	FieldName         = "name"
	FieldVersion      = "version"
	FieldNodeType     = "node_type"
	FieldDescription  = "description"
	FieldAlgorithm    = "algorithm"
	FieldBehavior     = "behavior"
	FieldResources    = "resources"
	FieldIO           = "io"
	FieldDependencies = "dependencies"
	FieldCapabilities = "capabilities"
	FieldTags         = "tags"
	FieldMetadata     = "metadata"
)

// MergeStrategy selects how a patch value combines with the base value at
// one field path.
type MergeStrategy string

const (
	// StrategyReplace replaces the base value wholesale.
	StrategyReplace MergeStrategy = "replace"

	// StrategyMerge merges objects key by key, patch keys winning.
	StrategyMerge MergeStrategy = "merge"

	// StrategyAppend concatenates lists: base elements, then patch elements.
	StrategyAppend MergeStrategy = "append"

	// StrategyUnion appends only patch elements not already present,
	// keeping first-occurrence order.
	StrategyUnion MergeStrategy = "union"
)

// Valid reports whether s is a known strategy.
func (s MergeStrategy) Valid() bool {
	switch s {
	case StrategyReplace, StrategyMerge, StrategyAppend, StrategyUnion:
		return true
	}
	return false
}

// Additive reports whether s combines lists instead of replacing them.
func (s MergeStrategy) Additive() bool {
	return s == StrategyAppend || s == StrategyUnion
}

// Field describes one top-level contract field.
type Field struct {
	Name      string
	Kind      ir.Kind
	Strategy  MergeStrategy // default strategy for the field
	Protected bool          // a patch may not change it
	Required  bool
}

// Fields is the closed top-level schema, in canonical order.
var Fields = []Field{
	{Name: FieldName, Kind: ir.KindString, Strategy: StrategyReplace, Protected: true, Required: true},
	{Name: FieldVersion, Kind: ir.KindString, Strategy: StrategyReplace, Required: true},
	{Name: FieldNodeType, Kind: ir.KindString, Strategy: StrategyReplace, Protected: true, Required: true},
	{Name: FieldDescription, Kind: ir.KindString, Strategy: StrategyReplace},
	{Name: FieldAlgorithm, Kind: ir.KindObject, Strategy: StrategyMerge},
	{Name: FieldBehavior, Kind: ir.KindObject, Strategy: StrategyMerge},
	{Name: FieldResources, Kind: ir.KindObject, Strategy: StrategyMerge},
	{Name: FieldIO, Kind: ir.KindObject, Strategy: StrategyMerge},
	{Name: FieldDependencies, Kind: ir.KindList, Strategy: StrategyUnion},
	{Name: FieldCapabilities, Kind: ir.KindList, Strategy: StrategyAppend},
	{Name: FieldTags, Kind: ir.KindList, Strategy: StrategyReplace},
	{Name: FieldMetadata, Kind: ir.KindObject, Strategy: StrategyMerge},
}

var fieldIndex = func() map[string]Field {
	m := make(map[string]Field, len(Fields))
	for _, f := range Fields {
		m[f.Name] = f
	}
	return m
}()

// LookupField returns the schema entry for a top-level field name.
func LookupField(name string) (Field, bool) {
	f, ok := fieldIndex[name]
	return f, ok
}

// IOKeys are the recognized keys under "io". They are only enforced when a
// merger runs with strict paths.
var IOKeys = []string{"input_model", "output_model", "error_model", "event_topics"}

// NodeType is the kind of executable node a contract configures.
type NodeType string

const (
	NodeCompute      NodeType = "compute"
	NodeEffect       NodeType = "effect"
	NodeReducer      NodeType = "reducer"
	NodeOrchestrator NodeType = "orchestrator"
)

// Valid reports whether t is one of the four node kinds.
func (t NodeType) Valid() bool {
	switch t {
	case NodeCompute, NodeEffect, NodeReducer, NodeOrchestrator:
		return true
	}
	return false
}
