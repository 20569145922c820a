package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/overlay/internal/compiler"
	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/merge"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Base        string
	ProfilesDir string
}

// FileValidation holds the validation errors of one patch file.
type FileValidation struct {
	File   string                     `json:"file"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

func (r ValidationResult) errorCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Errors)
	}
	return n
}

func (r ValidationResult) firstError() compiler.ValidationError {
	for _, f := range r.Files {
		if len(f.Errors) > 0 {
			return f.Errors[0]
		}
	}
	return compiler.ValidationError{}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <patch-file...>",
		Short: "Validate patches without resolving",
		Long: `Validate patch documents without running a resolution.

Each patch is checked on its own: known fields, value kinds, versions,
scope and nulls. With --base the patches are also checked in order against
the evolving contract (extends, target_version, protected fields) and
merged, so merge conflicts are reported too.

Exit codes:
  0 - All patches valid
  1 - One or more validation errors
  2 - Command error (unreadable files, unknown base profile)

Examples:
  overlay validate tune.yaml
  overlay validate tune.yaml harden.yaml --base effect_io@1.0.0`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Base, "base", "", "base profile to validate the patch sequence against")
	cmd.Flags().StringVar(&opts.ProfilesDir, "profiles", "", "directory of additional CUE profiles")

	return cmd
}

func runValidate(opts *ValidateOptions, files []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Files: make([]FileValidation, len(files))}
	patches := make([]contract.Patch, len(files))
	for i, file := range files {
		result.Files[i].File = file
		p, err := readPatch(file)
		var cerr *contract.Error
		switch {
		case errors.As(err, &cerr):
			// The file was read but is not a well-formed patch document.
			result.Files[i].Errors = []compiler.ValidationError{contractValidationError(cerr)}
		case err != nil:
			return commandError(formatter, inputErrorCode(err), "failed to read patch", err)
		}
		patches[i] = p
	}

	switch {
	case result.errorCount() > 0:
		// Malformed documents are reported on their own.
	case opts.Base == "":
		for i, p := range patches {
			formatter.VerboseLog("Validating patch: %s", files[i])
			result.Files[i].Errors = compiler.ValidatePatch(p)
		}
	default:
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return commandError(formatter, ErrCodeConfig, "invalid configuration", err)
		}
		if cmd.Flags().Changed("profiles") {
			cfg.ProfilesDir = opts.ProfilesDir
		}
		merger, err := cfg.Merger()
		if err != nil {
			return commandError(formatter, ErrCodeConfig, "invalid merge configuration", err)
		}
		reg, err := openRegistry(cfg.ProfilesDir)
		if err != nil {
			return commandError(formatter, inputErrorCode(err), "failed to load profiles", err)
		}
		ref, err := contract.ParseProfileRef(opts.Base)
		if err != nil {
			return commandError(formatter, errorCode(err), "invalid base profile", err)
		}
		base, err := reg.Resolve(ref)
		if err != nil {
			return commandError(formatter, errorCode(err), "unknown base profile", err)
		}
		validateSequence(merger, base, patches, result.Files, formatter)
	}

	result.Valid = result.errorCount() == 0
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// validateSequence checks each patch against the contract produced by the
// patches before it. Extends is always checked against the origin base.
// Validation stops at the first patch that fails, since later patches
// would be checked against a contract that never exists.
func validateSequence(m *merge.Merger, base contract.Contract, patches []contract.Patch, out []FileValidation, formatter *OutputFormatter) {
	origin := base.Ref()
	current := base

	for i, p := range patches {
		formatter.VerboseLog("Validating patch %s against %s", out[i].File, current.Ref())

		var errs []compiler.ValidationError
		for _, ve := range compiler.ValidatePatchAgainst(p, current) {
			if ve.Code != compiler.ErrExtendsMismatch {
				errs = append(errs, ve)
			}
		}
		if ve := compiler.CheckExtends(p, origin); ve != nil {
			errs = append(errs, *ve)
		}
		if len(errs) > 0 {
			out[i].Errors = errs
			return
		}

		next, err := m.ApplyFrom(origin, current, p)
		if err != nil {
			out[i].Errors = []compiler.ValidationError{mergeValidationError(err)}
			return
		}
		current = next
	}
}

func contractValidationError(cerr *contract.Error) compiler.ValidationError {
	return compiler.ValidationError{Field: cerr.Path, Message: cerr.Message, Code: string(cerr.Code)}
}

func mergeValidationError(err error) compiler.ValidationError {
	var cerr *contract.Error
	if errors.As(err, &cerr) {
		return contractValidationError(cerr)
	}
	return compiler.ValidationError{Field: "overrides", Message: err.Error(), Code: ErrCodeGeneric}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All patches valid (%d)\n", len(result.Files))
	return nil
}

// outputValidationErrors outputs the errors of every failing file.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	count := result.errorCount()

	if formatter.Format == "json" {
		first := result.firstError()
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    first.Code,
				Message: first.Message,
			},
		}); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, f := range result.Files {
		if len(f.Errors) == 0 {
			continue
		}
		fmt.Fprintln(formatter.Writer, f.File)
		for _, err := range f.Errors {
			if err.Field != "" {
				fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
			} else {
				fmt.Fprintf(formatter.Writer, "  %s: %s\n", err.Code, err.Message)
			}
		}
		fmt.Fprintln(formatter.Writer)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))
}
