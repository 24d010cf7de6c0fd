package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/mutation"
	"github.com/dbsmedya/yoloctl/internal/roster"
)

var (
	reindexToFile         string
	reindexToClasses      []string
	reindexAllowDrop      bool
	reindexRequireSameSet bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Renumber categories to follow a target roster",
	Long: `Reindex rewrites category ids so they follow the order of a target roster.
Categories are matched by name. The target can be another dataset's
classes.txt or data.yaml, or an explicit list of names.

By default every current category must appear in the target. Use
--allow-drop to discard annotations of categories the target lacks.

Example:
  yoloctl reindex --dataset ./ds --to-file ../reference/data.yaml
  yoloctl reindex --dataset ./ds --to-classes car,person,bike --execute`,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().StringVar(&reindexToFile, "to-file", "",
		"Roster file (classes.txt or YAML) holding the target order")
	reindexCmd.Flags().StringSliceVar(&reindexToClasses, "to-classes", nil,
		"Target category names in order (comma separated)")
	reindexCmd.Flags().BoolVar(&reindexAllowDrop, "allow-drop", false,
		"Drop annotations of categories missing from the target")
	reindexCmd.Flags().BoolVar(&reindexRequireSameSet, "require-same-set", false,
		"Fail unless the target has exactly the current category names")
	reindexCmd.MarkFlagsMutuallyExclusive("to-file", "to-classes")
	addMutateFlags(reindexCmd)

	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	target, err := reindexTarget()
	if err != nil {
		return err
	}
	req := mutation.ReindexRequest{
		Target:         target,
		AllowDrop:      reindexAllowDrop,
		RequireSameSet: reindexRequireSameSet,
	}
	return runMutation(func(ctx context.Context, eng *mutation.Engine, ds *dataset.Dataset) (*mutation.Plan, error) {
		return eng.PlanReindex(ctx, ds, req)
	})
}

func reindexTarget() ([]string, error) {
	switch {
	case reindexToFile != "":
		names, err := roster.Read(appFs, reindexToFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read target roster: %w", err)
		}
		return names, nil
	case len(reindexToClasses) > 0:
		return reindexToClasses, nil
	default:
		return nil, errors.New("target order is required (use --to-file or --to-classes)")
	}
}
