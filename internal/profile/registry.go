package profile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/overlay/internal/compiler"
	"github.com/roach88/overlay/internal/contract"
)

// Factory resolves a profile reference to its base contract.
//
// Implementations must be safe for concurrent use and return equal
// contracts for equal references.
type Factory interface {
	Resolve(ref contract.ProfileRef) (contract.Contract, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ref contract.ProfileRef) (contract.Contract, error)

// Resolve calls f(ref).
func (f FactoryFunc) Resolve(ref contract.ProfileRef) (contract.Contract, error) {
	return f(ref)
}

// Registry is an immutable set of base profiles keyed by name and version.
type Registry struct {
	// versions per profile name, sorted ascending by semver
	byName map[string][]contract.Contract
}

// NewRegistry builds a registry from contracts. Every contract is validated;
// a duplicate name@version is a VALIDATION error.
func NewRegistry(contracts ...contract.Contract) (*Registry, error) {
	r := &Registry{byName: make(map[string][]contract.Contract)}

	for _, c := range contracts {
		if errs := compiler.ValidateContract(c); len(errs) > 0 {
			return nil, contract.NewValidation(c.Ref().String(), errs[0].Field, errs[0].Error())
		}
		for _, existing := range r.byName[c.Name] {
			if contract.SameVersion(existing.Version, c.Version) {
				return nil, contract.NewValidation(c.Ref().String(), "", "duplicate profile version")
			}
		}
		r.byName[c.Name] = append(r.byName[c.Name], c.Clone())
	}

	for name := range r.byName {
		slices.SortFunc(r.byName[name], func(a, b contract.Contract) int {
			return contract.CompareVersions(a.Version, b.Version)
		})
	}
	return r, nil
}

// Resolve returns the contract for ref. An empty version selects the
// highest registered version. The returned contract is a copy.
func (r *Registry) Resolve(ref contract.ProfileRef) (contract.Contract, error) {
	versions, ok := r.byName[ref.Profile]
	if !ok || len(versions) == 0 {
		return contract.Contract{}, contract.NewNotFound(ref.String(), fmt.Sprintf("unknown profile %q", ref.Profile))
	}

	if ref.Version == "" {
		return versions[len(versions)-1].Clone(), nil
	}
	for _, c := range versions {
		if contract.SameVersion(c.Version, ref.Version) {
			return c.Clone(), nil
		}
	}
	return contract.Contract{}, contract.NewNotFound(ref.String(),
		fmt.Sprintf("profile %q has no version %s (available: %s)", ref.Profile, ref.Version, strings.Join(r.Versions(ref.Profile), ", ")))
}

// Names returns the registered profile names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Versions returns the registered versions of name, lowest first.
func (r *Registry) Versions(name string) []string {
	versions := r.byName[name]
	out := make([]string, len(versions))
	for i, c := range versions {
		out[i] = c.Version
	}
	return out
}

// Refs returns every registered name@version, sorted by name then version.
func (r *Registry) Refs() []contract.ProfileRef {
	var refs []contract.ProfileRef
	for _, name := range r.Names() {
		for _, v := range r.Versions(name) {
			refs = append(refs, contract.ProfileRef{Profile: name, Version: v})
		}
	}
	return refs
}

// Contracts returns copies of every registered contract in Refs order.
func (r *Registry) Contracts() []contract.Contract {
	var out []contract.Contract
	for _, name := range r.Names() {
		for _, c := range r.byName[name] {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Len returns the number of registered profile versions.
func (r *Registry) Len() int {
	n := 0
	for _, versions := range r.byName {
		n += len(versions)
	}
	return n
}

// With returns a new registry holding r's contracts plus extra. r is not
// modified.
func (r *Registry) With(extra ...contract.Contract) (*Registry, error) {
	return NewRegistry(append(r.Contracts(), extra...)...)
}
