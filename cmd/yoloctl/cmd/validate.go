package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/yoloctl/internal/roster"
	"github.com/dbsmedya/yoloctl/internal/verifier"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check labels and rosters for consistency",
	Long: `Validate checks the dataset for problems that break training or that a
mutation should never leave behind.

Checks performed:
  - Category ids without a roster entry
  - Malformed lines and wrong token counts
  - Coordinates outside [0, 1]
  - Label files without a paired image
  - Roster copies that disagree with the primary roster

Example:
  yoloctl validate --dataset ./my-dataset`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	ctx, cancel := s.signalContext()
	defer cancel()

	s.log.Info("Starting validation checks...")

	names, src, err := roster.Discover(s.fs, s.ds)
	if err != nil && !errors.Is(err, roster.ErrRosterMissing) {
		return fmt.Errorf("failed to read roster: %w", err)
	}

	printHeader("Validate: %s", s.ds.Root)
	printf("Layout: %s\n", s.ds.Layout)
	if src != "" {
		printf("Roster: %s (%d categories)\n\n", src, len(names))
	} else {
		printf("Roster: %s\n\n", caution("not found, id range not checked"))
	}

	rep, err := verifier.NewVerifier(s.log).Verify(ctx, s.ds, names)
	if err != nil {
		return err
	}
	printVerification(rep)

	if !rep.OK() {
		return fmt.Errorf("validation found %d problem(s)", len(rep.Problems))
	}
	return nil
}
