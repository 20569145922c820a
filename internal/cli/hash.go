package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// HashOptions holds flags for the hash command.
type HashOptions struct {
	*RootOptions
	ProfilesDir string
	Patch       bool
}

// HashEntry is one hashed document.
type HashEntry struct {
	Input string `json:"input"`
	Kind  string `json:"kind"` // "contract" | "patch"
	Hash  string `json:"hash"`
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hash <contract-or-profile...>",
		Short: "Print canonical SHA-256 hashes",
		Long: `Print the canonical hash of contracts or patches.

Arguments are contract documents or profile references; with --patch they
are patch documents. Equal documents hash equal regardless of key order or
file format.

Examples:
  overlay hash effect_io@1.0.0 resolved.json
  overlay hash --patch tune.yaml harden.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ProfilesDir, "profiles", "", "directory of additional CUE profiles")
	cmd.Flags().BoolVar(&opts.Patch, "patch", false, "hash patch documents")

	return cmd
}

func runHash(opts *HashOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var (
		entries []HashEntry
		err     error
	)
	if opts.Patch {
		entries, err = hashPatches(args)
	} else {
		entries, err = hashContracts(opts, args, cmd)
	}
	if err != nil {
		return commandError(formatter, inputErrorCode(err), "failed to hash", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "%s  %s\n", e.Hash, e.Input)
	}
	return nil
}

func hashPatches(paths []string) ([]HashEntry, error) {
	entries := make([]HashEntry, 0, len(paths))
	for _, path := range paths {
		p, err := readPatch(path)
		if err != nil {
			return nil, err
		}
		h, err := p.Hash()
		if err != nil {
			return nil, err
		}
		entries = append(entries, HashEntry{Input: path, Kind: "patch", Hash: h})
	}
	return entries, nil
}

func hashContracts(opts *HashOptions, args []string, cmd *cobra.Command) ([]HashEntry, error) {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return nil, &InputError{Code: ErrCodeConfig, Path: opts.Config, Err: err}
	}
	if cmd.Flags().Changed("profiles") {
		cfg.ProfilesDir = opts.ProfilesDir
	}
	reg, err := openRegistry(cfg.ProfilesDir)
	if err != nil {
		return nil, err
	}

	entries := make([]HashEntry, 0, len(args))
	for _, arg := range args {
		c, err := readContract(reg, arg)
		if err != nil {
			return nil, err
		}
		h, err := c.Hash()
		if err != nil {
			return nil, err
		}
		entries = append(entries, HashEntry{Input: arg, Kind: "contract", Hash: h})
	}
	return entries, nil
}
