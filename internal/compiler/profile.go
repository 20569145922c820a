package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/ir"
)

// ProfilesField is the top-level CUE field holding profile definitions:
//
//	profiles: compute_pure: "1.0.0": {
//		node_type: "compute"
//		algorithm: retry: max_attempts: 3
//	}
const ProfilesField = "profiles"

// CompileProfiles compiles every profile version under the "profiles" field
// of v. A CUE value with no "profiles" field compiles to no contracts.
//
// Profiles are returned in CUE field order. The first error aborts.
func CompileProfiles(v cue.Value) ([]contract.Contract, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath(ProfilesField))
	if !root.Exists() {
		return nil, nil
	}

	names, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []contract.Contract
	for names.Next() {
		name := names.Selector().Unquoted()
		versions, err := names.Value().Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for versions.Next() {
			version := versions.Selector().Unquoted()
			c, err := CompileProfile(name, version, versions.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, *c)
		}
	}
	return out, nil
}

// CompileProfile compiles one profile body. The name and version come from
// the enclosing labels; if the body repeats them they must agree.
func CompileProfile(name, version string, v cue.Value) (*contract.Contract, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	val, err := toValue(v, nil)
	if err != nil {
		return nil, err
	}
	obj, ok := val.(ir.Object)
	if !ok {
		return nil, &CompileError{
			Field:   fmt.Sprintf("%s.%s", name, version),
			Message: "profile body must be a struct",
			Pos:     v.Pos(),
		}
	}

	for _, kv := range [][2]string{{contract.FieldName, name}, {contract.FieldVersion, version}} {
		field, label := kv[0], kv[1]
		if declared, ok := obj[field]; ok && !ir.Equal(declared, ir.String(label)) {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("declared %s %v does not match label %q", field, declared, label),
				Pos:     v.LookupPath(cue.MakePath(cue.Str(field))).Pos(),
			}
		}
		obj[field] = ir.String(label)
	}

	c, err := contract.FromObject(obj)
	if err != nil {
		if cerr, ok := err.(*contract.Error); ok {
			pos := v.Pos()
			if cerr.Path != "" {
				if fv := v.LookupPath(cue.ParsePath(ir.ParsePath(cerr.Path).Top())); fv.Exists() {
					pos = fv.Pos()
				}
			}
			return nil, &CompileError{Field: cerr.Path, Message: cerr.Message, Pos: pos}
		}
		return nil, err
	}
	return &c, nil
}

// toValue converts a concrete CUE value into the constrained value model.
// Floats are forbidden; so are nulls and non-concrete values.
func toValue(v cue.Value, at ir.Path) (ir.Value, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if d, ok := v.Default(); ok {
		v = d
	}

	switch v.IncompleteKind() {
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   at.String(),
			Message: ir.ErrFloat.Error(),
			Pos:     v.Pos(),
		}
	}
	if !v.IsConcrete() {
		return nil, &CompileError{
			Field:   at.String(),
			Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}

	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil

	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: at.String(), Message: "integer out of int64 range", Pos: v.Pos()}
		}
		return ir.Int(n), nil

	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil

	case cue.NullKind:
		return nil, &CompileError{Field: at.String(), Message: "null values are not allowed", Pos: v.Pos()}

	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			elem, err := toValue(iter.Value(), at.Child(key))
			if err != nil {
				return nil, err
			}
			obj[key] = elem
		}
		return obj, nil

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		l := ir.List{}
		for i := 0; iter.Next(); i++ {
			elem, err := toValue(iter.Value(), at.Index(i))
			if err != nil {
				return nil, err
			}
			l = append(l, elem)
		}
		return l, nil

	default:
		return nil, &CompileError{
			Field:   at.String(),
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	field := e.Field
	if field == "" {
		field = "profile"
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			field, e.Message)
	}
	return fmt.Sprintf("%s: %s", field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
