package profile

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/overlay/internal/compiler"
	"github.com/roach88/overlay/internal/contract"
)

//go:embed profiles/*.cue
var builtinFS embed.FS

var builtin = sync.OnceValues(func() (*Registry, error) {
	contracts, err := compileFS(builtinFS, "profiles")
	if err != nil {
		return nil, fmt.Errorf("built-in profiles: %w", err)
	}
	return NewRegistry(contracts...)
})

// Builtin returns the registry of embedded base profiles, one or more per
// node kind. It is compiled once per process.
func Builtin() (*Registry, error) {
	return builtin()
}

func compileFS(fsys fs.FS, dir string) ([]contract.Contract, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	var out []contract.Contract
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".cue" {
			continue
		}
		name := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		v := ctx.CompileBytes(data, cue.Filename(name))
		contracts, err := compiler.CompileProfiles(v)
		if err != nil {
			return nil, err
		}
		out = append(out, contracts...)
	}
	return out, nil
}

// LoadDir compiles the CUE package in dir and returns its profiles.
// All .cue files of the directory are unified as one instance, so profiles
// may share definitions across files.
func LoadDir(dir string) ([]contract.Contract, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("profiles directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("profiles directory: not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	return compiler.CompileProfiles(value)
}

// Open returns the built-in registry extended with the profiles in dir.
// An empty dir returns the built-in registry unchanged.
func Open(dir string) (*Registry, error) {
	reg, err := Builtin()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return reg, nil
	}
	extra, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return reg.With(extra...)
}
