package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/overlay/internal/diff"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	ProfilesDir string
	Render      string // text | json | markdown | html
	Output      string // file to write instead of stdout
	ExitCode    bool   // exit 1 when the contracts differ
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <before> <after>",
		Short: "Show field-level changes between two contracts",
		Long: `Compare two contracts and list added, removed, modified and moved fields.

Each argument is a contract document (YAML or JSON) or a profile reference
such as effect_io@1.0.0. The diff is advisory and never affects resolution.

Examples:
  overlay diff effect_io@1.0.0 resolved.json
  overlay diff old.yaml new.yaml --render markdown --output DIFF.md
  overlay diff compute_pure reducer_state --exit-code`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ProfilesDir, "profiles", "", "directory of additional CUE profiles")
	cmd.Flags().StringVar(&opts.Render, "render", "", "diff rendering (text|json|markdown|html), defaults to --format")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the diff to a file")
	cmd.Flags().BoolVar(&opts.ExitCode, "exit-code", false, "exit with 1 if the contracts differ")

	return cmd
}

func runDiff(opts *DiffOptions, beforeArg, afterArg string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	render := opts.Render
	if render == "" {
		render = opts.Format
	}
	format, err := diff.ParseFormat(render)
	if err != nil {
		return commandError(formatter, ErrCodeGeneric, "invalid render format", err)
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return commandError(formatter, ErrCodeConfig, "invalid configuration", err)
	}
	if cmd.Flags().Changed("profiles") {
		cfg.ProfilesDir = opts.ProfilesDir
	}
	reg, err := openRegistry(cfg.ProfilesDir)
	if err != nil {
		return commandError(formatter, inputErrorCode(err), "failed to load profiles", err)
	}

	before, err := readContract(reg, beforeArg)
	if err != nil {
		return commandError(formatter, inputErrorCode(err), "failed to load "+beforeArg, err)
	}
	after, err := readContract(reg, afterArg)
	if err != nil {
		return commandError(formatter, inputErrorCode(err), "failed to load "+afterArg, err)
	}

	d := diff.Compute(before, after)
	formatter.VerboseLog("%d change(s) between %s and %s", len(d.Changes), before.Ref(), after.Ref())

	if err := writeDiff(opts.Output, cmd.OutOrStdout(), d, format); err != nil {
		return commandError(formatter, ErrCodeWriteFailed, "failed to write diff", err)
	}

	if opts.ExitCode && !d.Empty() {
		// Like diff(1): the exit status is the only signal.
		exitErr := NewExitError(ExitFailure, fmt.Sprintf("%d change(s)", len(d.Changes)))
		exitErr.Reported = true
		return exitErr
	}
	return nil
}

func writeDiff(path string, stdout io.Writer, d diff.Diff, format diff.Format) error {
	if path == "" {
		return diff.Render(stdout, d, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := diff.Render(f, d, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
