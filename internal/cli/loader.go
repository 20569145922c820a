package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/overlay/internal/config"
	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/logging"
	"github.com/roach88/overlay/internal/profile"
)

// InputError reports an input that could not be read or decoded. Code is
// one of the command-level error codes.
type InputError struct {
	Code string
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// loadConfig builds the effective configuration: defaults, then the
// --config file, then the environment. Flags are applied by each command.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return config.Config{}, err
		}
	}
	return cfg.ApplyEnv(opts.getenv)
}

// newLogger creates the diagnostic logger. --verbose forces debug level.
func newLogger(opts *RootOptions, cfg config.Config, w io.Writer) (*slog.Logger, error) {
	lc := cfg.Log
	if opts.Verbose {
		lc.Level = "debug"
	}
	return logging.New(w, lc)
}

// openRegistry returns the builtin profiles plus those in dir.
func openRegistry(dir string) (*profile.Registry, error) {
	reg, err := profile.Open(dir)
	if err != nil {
		return nil, &InputError{Code: ErrCodeProfiles, Path: dir, Err: err}
	}
	return reg, nil
}

// readFile reads path, mapping a missing file to ErrCodeNotFound.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &InputError{Code: ErrCodeNotFound, Path: path, Err: errors.New("file not found")}
	}
	if err != nil {
		return nil, &InputError{Code: ErrCodeReadFailed, Path: path, Err: err}
	}
	return data, nil
}

// readPatch decodes one YAML or JSON patch document.
func readPatch(path string) (contract.Patch, error) {
	data, err := readFile(path)
	if err != nil {
		return contract.Patch{}, err
	}
	p, err := contract.DecodePatchYAML(data)
	if err != nil {
		return contract.Patch{}, &InputError{Code: ErrCodeReadFailed, Path: path, Err: err}
	}
	return p, nil
}

// readPatches decodes patch files in argument order.
func readPatches(paths []string) ([]contract.Patch, error) {
	patches := make([]contract.Patch, 0, len(paths))
	for _, path := range paths {
		p, err := readPatch(path)
		if err != nil {
			return nil, err
		}
		patches = append(patches, p)
	}
	return patches, nil
}

// readContract loads a contract from a document file or, when no such
// file exists, resolves arg as a profile reference against reg.
func readContract(reg *profile.Registry, arg string) (contract.Contract, error) {
	if _, err := os.Stat(arg); err == nil {
		data, err := readFile(arg)
		if err != nil {
			return contract.Contract{}, err
		}
		c, err := contract.DecodeContract(data)
		if err != nil {
			return contract.Contract{}, &InputError{Code: ErrCodeReadFailed, Path: arg, Err: err}
		}
		return c, nil
	}

	ref, err := contract.ParseProfileRef(arg)
	if err != nil {
		return contract.Contract{}, &InputError{Code: ErrCodeNotFound, Path: arg, Err: errors.New("neither a file nor a profile reference")}
	}
	return reg.Resolve(ref)
}

// FindScenarioFiles walks dir and returns all .yaml and .yml files,
// optionally filtered by a glob on the file name without extension.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := filepath.Base(path[:len(path)-len(ext)])
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// inputErrorCode returns the command-level code of err.
func inputErrorCode(err error) string {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return errorCode(err)
}
