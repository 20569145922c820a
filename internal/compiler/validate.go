package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrUnsupportedType    = "E200" // unsupported document type for validation
	ErrEmptyName          = "E201" // name or profile reference is empty
	ErrInvalidVersion     = "E202" // not a MAJOR.MINOR.PATCH version
	ErrInvalidNodeType    = "E203" // node_type outside the four kinds
	ErrUnknownField       = "E204" // field not in the closed schema
	ErrNullValue          = "E205" // null anywhere in a body or override
	ErrInvalidScope       = "E206" // scope outside project/organization/global
	ErrProtectedOverride  = "E207" // patch changes a protected field
	ErrKindMismatch       = "E208" // value kind differs from the schema
	ErrExtendsMismatch    = "E209" // extends does not name the base profile
	ErrTargetVersionDrift = "E210" // target_version differs from the contract version
	ErrReservedKey        = "E211" // key contains path syntax
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a contract or patch.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch doc := v.(type) {
	case *contract.Contract:
		return ValidateContract(*doc)
	case contract.Contract:
		return ValidateContract(doc)
	case *contract.Patch:
		return ValidatePatch(*doc)
	case contract.Patch:
		return ValidatePatch(doc)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported document type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

// ValidateContract checks a contract built outside FromObject, such as one
// assembled in Go code.
func ValidateContract(c contract.Contract) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   contract.FieldName,
			Message: "name is required and must be non-empty",
			Code:    ErrEmptyName,
		})
	}
	if !contract.ValidVersion(c.Version) {
		errs = append(errs, ValidationError{
			Field:   contract.FieldVersion,
			Message: fmt.Sprintf("invalid semantic version %q", c.Version),
			Code:    ErrInvalidVersion,
		})
	}
	if !c.NodeType.Valid() {
		errs = append(errs, ValidationError{
			Field:   contract.FieldNodeType,
			Message: fmt.Sprintf("invalid node type %q, must be compute, effect, reducer or orchestrator", c.NodeType),
			Code:    ErrInvalidNodeType,
		})
	}

	errs = append(errs, validateNulls(c.Object(), nil)...)
	if kp, ok := ir.FindPathKey(c.Object()); ok {
		errs = append(errs, ValidationError{Field: kp.String(), Message: ir.ErrPathKey.Error(), Code: ErrReservedKey})
	}
	return errs
}

// ValidatePatch checks a patch on its own, without a base contract.
func ValidatePatch(p contract.Patch) []ValidationError {
	var errs []ValidationError

	if p.TargetVersion != "" && !contract.ValidVersion(p.TargetVersion) {
		errs = append(errs, ValidationError{
			Field:   contract.PatchFieldTargetVersion,
			Message: fmt.Sprintf("invalid semantic version %q", p.TargetVersion),
			Code:    ErrInvalidVersion,
		})
	}

	if p.Extends != nil {
		if strings.TrimSpace(p.Extends.Profile) == "" {
			errs = append(errs, ValidationError{
				Field:   "extends.profile",
				Message: "extends requires a non-empty profile name",
				Code:    ErrEmptyName,
			})
		}
		if p.Extends.Version != "" && !contract.ValidVersion(p.Extends.Version) {
			errs = append(errs, ValidationError{
				Field:   "extends.version",
				Message: fmt.Sprintf("invalid semantic version %q", p.Extends.Version),
				Code:    ErrInvalidVersion,
			})
		}
	}

	if !p.Scope.Valid() {
		errs = append(errs, ValidationError{
			Field:   contract.PatchFieldScope,
			Message: fmt.Sprintf("invalid scope %q, must be project, organization or global", p.Scope),
			Code:    ErrInvalidScope,
		})
	}

	for _, key := range p.Overrides.SortedKeys() {
		val := p.Overrides[key]
		fieldPath := "overrides." + key

		f, ok := contract.LookupField(key)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("unknown contract field %q", key),
				Code:    ErrUnknownField,
			})
			continue
		}
		if got := ir.KindOf(val); got != f.Kind && got != ir.KindNull {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("expected %s, got %s", f.Kind, got),
				Code:    ErrKindMismatch,
			})
			continue
		}

		switch key {
		case contract.FieldName:
			if s, _ := val.(ir.String); strings.TrimSpace(string(s)) == "" {
				errs = append(errs, ValidationError{Field: fieldPath, Message: "name must be non-empty", Code: ErrEmptyName})
			}
		case contract.FieldVersion:
			if s, ok := val.(ir.String); ok && !contract.ValidVersion(string(s)) {
				errs = append(errs, ValidationError{
					Field:   fieldPath,
					Message: fmt.Sprintf("invalid semantic version %q", s),
					Code:    ErrInvalidVersion,
				})
			}
		case contract.FieldNodeType:
			if s, ok := val.(ir.String); ok && !contract.NodeType(s).Valid() {
				errs = append(errs, ValidationError{
					Field:   fieldPath,
					Message: fmt.Sprintf("invalid node type %q", s),
					Code:    ErrInvalidNodeType,
				})
			}
		}
	}

	errs = append(errs, validateNulls(p.Overrides, ir.Path{contract.PatchFieldOverrides})...)
	if kp, ok := ir.FindPathKey(p.Overrides); ok {
		errs = append(errs, ValidationError{
			Field:   append(ir.Path{contract.PatchFieldOverrides}, kp...).String(),
			Message: ir.ErrPathKey.Error(),
			Code:    ErrReservedKey,
		})
	}
	return errs
}

// ValidatePatchAgainst runs ValidatePatch and additionally checks the patch
// against the contract it would be applied to: extends target, target
// version and protected fields.
func ValidatePatchAgainst(p contract.Patch, base contract.Contract) []ValidationError {
	errs := ValidatePatch(p)

	if ve := CheckExtends(p, base.Ref()); ve != nil {
		errs = append(errs, *ve)
	}

	if p.TargetVersion != "" && contract.ValidVersion(p.TargetVersion) && !contract.SameVersion(p.TargetVersion, base.Version) {
		errs = append(errs, ValidationError{
			Field:   contract.PatchFieldTargetVersion,
			Message: fmt.Sprintf("patch targets version %s but contract is at %s", p.TargetVersion, base.Version),
			Code:    ErrTargetVersionDrift,
		})
	}

	current := base.Object()
	for _, f := range contract.Fields {
		if !f.Protected {
			continue
		}
		val, ok := p.Overrides[f.Name]
		if ok && !ir.Equal(val, current[f.Name]) {
			errs = append(errs, ValidationError{
				Field:   "overrides." + f.Name,
				Message: fmt.Sprintf("protected field %q cannot be changed by a patch", f.Name),
				Code:    ErrProtectedOverride,
			})
		}
	}
	return errs
}

// CheckExtends reports whether a patch's extends target names origin. A
// patch with no extends always matches. An extends without a version
// matches any version of the named profile.
func CheckExtends(p contract.Patch, origin contract.ProfileRef) *ValidationError {
	if p.Extends == nil {
		return nil
	}
	if p.Extends.Profile != origin.Profile ||
		(p.Extends.Version != "" && !contract.SameVersion(p.Extends.Version, origin.Version)) {
		return &ValidationError{
			Field:   contract.PatchFieldExtends,
			Message: fmt.Sprintf("patch extends %s but base is %s", p.Extends, origin),
			Code:    ErrExtendsMismatch,
		}
	}
	return nil
}

func validateNulls(v ir.Value, at ir.Path) []ValidationError {
	p, ok := ir.FindNull(v)
	if !ok {
		return nil
	}
	full := append(append(ir.Path{}, at...), p...)
	return []ValidationError{{
		Field:   full.String(),
		Message: "null values are not allowed; patches cannot delete fields",
		Code:    ErrNullValue,
	}}
}
