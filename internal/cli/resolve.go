package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/overlay/internal/config"
	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/diff"
	"github.com/roach88/overlay/internal/event"
	"github.com/roach88/overlay/internal/lifecycle"
	"github.com/roach88/overlay/internal/resolver"
	"github.com/roach88/overlay/internal/store"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	ProfilesDir   string
	Diff          bool
	NoOverlayRefs bool
	Database      string
	Timeout       time.Duration
	CorrelationID string
	EventsPath    string

	// RunIDs and Now override run id generation and the wall clock (for
	// testing). Nil uses UUIDv7 ids and time.Now.
	RunIDs resolver.RunIDGenerator
	Now    func() time.Time
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return newResolveCommand(&ResolveOptions{RootOptions: rootOpts})
}

func newResolveCommand(opts *ResolveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <profile[@version]> [patch-file...]",
		Short: "Resolve a contract from a base profile and patches",
		Long: `Resolve a contract by applying patch files, in order, to a base profile.

Without a version the highest registered version of the profile is used.
Patch files are YAML or JSON documents. The resolved contract, its hash and
the run's lifecycle are printed; with --db the run is journaled, with
--events the bus events are written as JSON lines ("-" for stderr).

Exit codes:
  0 - Resolution completed
  1 - Resolution failed (unknown profile, invalid patch, merge conflict)
  2 - Command error (unreadable files, bad configuration)

Examples:
  overlay resolve effect_io@1.0.0 tune.yaml harden.yaml
  overlay resolve compute_pure --diff --format json
  overlay resolve effect_io patch.yaml --db runs.db --events -`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ProfilesDir, "profiles", "", "directory of additional CUE profiles")
	cmd.Flags().BoolVar(&opts.Diff, "diff", false, "include a diff between base and resolved contract")
	cmd.Flags().BoolVar(&opts.NoOverlayRefs, "no-overlay-refs", false, "omit overlay provenance records")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the run to this SQLite database")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", config.DefaultTimeout, "resolution timeout (0 disables)")
	cmd.Flags().StringVar(&opts.CorrelationID, "correlation-id", "", "correlation id carried by bus events")
	cmd.Flags().StringVar(&opts.EventsPath, "events", "", "write bus events as JSON lines to this file")

	return cmd
}

// applyFlags overlays explicitly set flags on cfg.
func (o *ResolveOptions) applyFlags(cmd *cobra.Command, cfg config.Config) config.Config {
	flags := cmd.Flags()
	if flags.Changed("profiles") {
		cfg.ProfilesDir = o.ProfilesDir
	}
	if flags.Changed("db") {
		cfg.DB = o.Database
	}
	if flags.Changed("timeout") {
		cfg.Timeout = config.Duration(o.Timeout)
	}
	if o.Diff {
		cfg.IncludeDiff = true
	}
	if o.NoOverlayRefs {
		cfg.IncludeOverlayRefs = false
	}
	return cfg
}

func runResolve(opts *ResolveOptions, baseArg string, patchFiles []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return commandError(formatter, ErrCodeConfig, "invalid configuration", err)
	}
	cfg = opts.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return commandError(formatter, ErrCodeConfig, "invalid configuration", err)
	}

	logger, err := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())
	if err != nil {
		return commandError(formatter, ErrCodeConfig, "invalid log configuration", err)
	}

	base, err := contract.ParseProfileRef(baseArg)
	if err != nil {
		return commandError(formatter, errorCode(err), "invalid base profile", err)
	}
	patches, err := readPatches(patchFiles)
	if err != nil {
		return commandError(formatter, inputErrorCode(err), "failed to read patch", err)
	}
	reg, err := openRegistry(cfg.ProfilesDir)
	if err != nil {
		return commandError(formatter, inputErrorCode(err), "failed to load profiles", err)
	}
	merger, err := cfg.Merger()
	if err != nil {
		return commandError(formatter, ErrCodeConfig, "invalid merge configuration", err)
	}

	ropts := []resolver.Option{
		resolver.WithMerger(merger),
		resolver.WithLogger(logger),
		resolver.WithGuard(lifecycle.NewTracker()),
	}
	if opts.RunIDs != nil {
		ropts = append(ropts, resolver.WithRunIDGenerator(opts.RunIDs))
	}
	if opts.Now != nil {
		ropts = append(ropts, resolver.WithClock(opts.Now))
	}
	r := resolver.New(reg, ropts...)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, time.Duration(cfg.Timeout))
		defer cancel()
	}

	formatter.VerboseLog("resolving %s with %d patch(es)", base, len(patches))
	res, rerr := r.Resolve(ctx, resolver.Request{
		Base:          base,
		Patches:       patches,
		Options:       cfg.Options(),
		CorrelationID: opts.CorrelationID,
	})

	var (
		run  store.Run
		envs []event.Envelope
	)
	re, failed := resolver.AsRunError(rerr)
	switch {
	case rerr == nil:
		run, envs = store.RunFromResult(res), res.Events
	case failed:
		run, envs = store.RunFromError(re), re.Events
	default:
		return commandError(formatter, errorCode(rerr), "resolution error", rerr)
	}

	if err := journal(parent, cfg.DB, run); err != nil {
		return commandError(formatter, ErrCodeJournal, "failed to journal run", err)
	}
	if err := publishEvents(parent, opts.EventsPath, cmd.ErrOrStderr(), envs); err != nil {
		return commandError(formatter, ErrCodeWriteFailed, "failed to write events", err)
	}

	if failed {
		return outputResolveFailure(formatter, re)
	}
	return outputResolveSuccess(formatter, res)
}

// journal persists run when a database is configured.
func journal(ctx context.Context, path string, run store.Run) error {
	if path == "" {
		return nil
	}
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.WriteRun(ctx, run)
}

// publishEvents writes envs as JSON lines to path, or to stderr for "-".
func publishEvents(ctx context.Context, path string, stderr io.Writer, envs []event.Envelope) error {
	if path == "" {
		return nil
	}
	if path == "-" {
		return event.PublishAll(ctx, event.NewWriterPublisher(stderr), envs)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if err := event.PublishAll(ctx, event.NewWriterPublisher(f), envs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ResolveFailure is the JSON detail of a failed run.
type ResolveFailure struct {
	RunID     string            `json:"run_id"`
	Stage     resolver.Stage    `json:"stage"`
	Subject   string            `json:"subject,omitempty"`
	Path      string            `json:"path,omitempty"`
	Lifecycle []lifecycle.Event `json:"lifecycle"`
}

func outputResolveFailure(formatter *OutputFormatter, re *resolver.RunError) error {
	code := errorCode(re.Err)
	detail := ResolveFailure{RunID: re.RunID, Stage: re.Stage, Lifecycle: re.Lifecycle}
	var cerr *contract.Error
	if errors.As(re.Err, &cerr) {
		detail.Subject = cerr.Subject
		detail.Path = cerr.Path
	}

	if formatter.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			RunID:  re.RunID,
			Error:  &CLIError{Code: code, Message: re.Err.Error(), Details: detail},
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.GetErrWriter(), "✗ run %s failed during %s: %v\n", re.RunID, re.Stage, re.Err)
	}
	exitErr := WrapExitError(ExitFailure, "resolution failed", re.Err)
	exitErr.Reported = true
	return exitErr
}

func outputResolveSuccess(formatter *OutputFormatter, res *resolver.Result) error {
	if formatter.Format == "json" {
		return formatter.encode(CLIResponse{Status: "ok", RunID: res.RunID, Data: res})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ resolved %s with %d overlay(s)\n", res.Base.Ref(), len(res.PatchHashes))
	fmt.Fprintf(w, "  run:      %s\n", res.RunID)
	fmt.Fprintf(w, "  hash:     %s\n", res.ResolvedHash)
	fmt.Fprintf(w, "  build:    %s %s\n", res.Build.EngineVersion, res.Build.BuildHash)
	fmt.Fprintf(w, "  duration: %s\n", res.Duration)
	for _, ref := range res.OverlayRefs {
		fmt.Fprintf(w, "  overlay:  #%d %s@%s %s\n", ref.OrderIndex, ref.ID, ref.Version, ref.Hash)
	}
	if res.Diff != nil {
		fmt.Fprintln(w)
		if err := diff.RenderText(w, *res.Diff); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	data, err := json.MarshalIndent(res.Contract, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// commandError reports a command-level failure (exit code 2).
func commandError(formatter *OutputFormatter, code, message string, err error) error {
	_ = formatter.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	exitErr := WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), err)
	exitErr.Reported = true
	return exitErr
}
