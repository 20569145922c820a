package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/overlay/internal/contract"
	"github.com/roach88/overlay/internal/lifecycle"
	"github.com/roach88/overlay/internal/store"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Database string
}

// RunSummary is one journaled run in audit output.
type RunSummary struct {
	ID           string       `json:"run_id"`
	Status       store.Status `json:"status"`
	Stage        string       `json:"stage"`
	Base         string       `json:"base"`
	ResolvedHash string       `json:"resolved_hash,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// AuditResult holds the audit verdict of a journal or one run.
type AuditResult struct {
	Valid      bool                  `json:"valid"`
	Runs       []RunSummary          `json:"runs"`
	Violations []lifecycle.Violation `json:"violations,omitempty"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit [run-id]",
		Short: "Audit journaled lifecycle events",
		Long: `Re-check the lifecycle invariants of journaled runs.

Without a run id every run in the journal is listed and audited.

Exit codes:
  0 - No violations
  1 - One or more lifecycle violations
  2 - Command error (no journal, unknown run)

Examples:
  overlay audit --db runs.db
  overlay audit 0190f5d4-6c1e-7a55-b1de-3f1c2a9e4b77 --db runs.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runAudit(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite journal to audit")

	return cmd
}

func runAudit(opts *AuditOptions, runID string, cmd *cobra.Command) error {
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
	if cmd.Flags().Changed("db") {
		cfg.DB = opts.Database
	}
	if cfg.DB == "" {
		return commandError(formatter, ErrCodeJournal, "no journal configured", errors.New("use --db or set db in the config file"))
	}

	st, err := store.Open(cfg.DB)
	if err != nil {
		return commandError(formatter, ErrCodeJournal, "failed to open journal", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := auditJournal(ctx, st, runID)
	if err != nil {
		code := ErrCodeJournal
		if contract.IsNotFound(err) {
			code = ErrCodeNotFound
		}
		return commandError(formatter, code, "audit failed", err)
	}
	formatter.VerboseLog("audited %d run(s)", len(result.Runs))

	return outputAudit(formatter, result)
}

func auditJournal(ctx context.Context, st *store.Store, runID string) (AuditResult, error) {
	var (
		runs       []store.Run
		ok         bool
		violations []lifecycle.Violation
		err        error
	)
	if runID == "" {
		if runs, err = st.ListRuns(ctx); err != nil {
			return AuditResult{}, err
		}
		ok, violations, err = st.Audit(ctx)
	} else {
		var run store.Run
		if run, err = st.ReadRun(ctx, runID); err != nil {
			return AuditResult{}, err
		}
		runs = []store.Run{run}
		ok, violations, err = st.AuditRun(ctx, runID)
	}
	if err != nil {
		return AuditResult{}, err
	}

	result := AuditResult{Valid: ok, Runs: make([]RunSummary, len(runs)), Violations: violations}
	for i, r := range runs {
		result.Runs[i] = RunSummary{
			ID:           r.ID,
			Status:       r.Status,
			Stage:        r.Stage,
			Base:         r.Base.String(),
			ResolvedHash: r.ResolvedHash,
			Error:        r.Error,
		}
	}
	return result, nil
}

func outputAudit(formatter *OutputFormatter, result AuditResult) error {
	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    string(contract.ErrCodeInvariantViolation),
				Message: fmt.Sprintf("%d lifecycle violation(s)", len(result.Violations)),
			}
		}
		if err := formatter.encode(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		for _, r := range result.Runs {
			fmt.Fprintf(w, "%s  %-9s %-10s %s\n", r.ID, r.Status, r.Stage, r.Base)
		}
		fmt.Fprintln(w)
		if result.Valid {
			fmt.Fprintf(w, "✓ %d run(s), no lifecycle violations\n", len(result.Runs))
		} else {
			fmt.Fprintf(w, "✗ %d lifecycle violation(s)\n", len(result.Violations))
			for _, v := range result.Violations {
				fmt.Fprintf(w, "  [%d] %s\n", v.Seq, v)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d lifecycle violation(s)", len(result.Violations)))
	}
	return nil
}
