package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/overlay/internal/contract"
)

// ProfilesOptions holds flags for the profiles command.
type ProfilesOptions struct {
	*RootOptions
	ProfilesDir string
	Show        string // profile[@version] to print in full
}

// ProfileSummary is one registered profile.
type ProfileSummary struct {
	Name     string            `json:"name"`
	NodeType contract.NodeType `json:"node_type"`
	Versions []string          `json:"versions"`
}

// NewProfilesCommand creates the profiles command.
func NewProfilesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProfilesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List registered base profiles",
		Long: `List the built-in base profiles and those loaded from --profiles.

With --show the named profile is printed as a contract document.

Examples:
  overlay profiles
  overlay profiles --profiles ./profiles --format json
  overlay profiles --show effect_io@1.0.0`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfiles(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ProfilesDir, "profiles", "", "directory of additional CUE profiles")
	cmd.Flags().StringVar(&opts.Show, "show", "", "print one profile (profile[@version])")

	return cmd
}

func runProfiles(opts *ProfilesOptions, cmd *cobra.Command) error {
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
	if cmd.Flags().Changed("profiles") {
		cfg.ProfilesDir = opts.ProfilesDir
	}
	reg, err := openRegistry(cfg.ProfilesDir)
	if err != nil {
		return commandError(formatter, inputErrorCode(err), "failed to load profiles", err)
	}

	if opts.Show != "" {
		ref, err := contract.ParseProfileRef(opts.Show)
		if err != nil {
			return commandError(formatter, errorCode(err), "invalid profile reference", err)
		}
		c, err := reg.Resolve(ref)
		if err != nil {
			return commandError(formatter, errorCode(err), "unknown profile", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(c)
		}
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(formatter.Writer, string(data))
		return nil
	}

	names := reg.Names()
	summaries := make([]ProfileSummary, 0, len(names))
	for _, name := range names {
		latest, err := reg.Resolve(contract.ProfileRef{Profile: name})
		if err != nil {
			return commandError(formatter, errorCode(err), "failed to read profile", err)
		}
		summaries = append(summaries, ProfileSummary{
			Name:     name,
			NodeType: latest.NodeType,
			Versions: reg.Versions(name),
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}
	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "%-20s %-13s %s\n", s.Name, s.NodeType, strings.Join(s.Versions, ", "))
	}
	return nil
}
