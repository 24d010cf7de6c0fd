package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/mutation"
)

var renamePairs []string

var renameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Rename categories in every roster copy",
	Long: `Rename changes category names in all roster files. Category ids and label
files are not touched.

Example:
  yoloctl rename --dataset ./ds -r pedestrian:person -r motorbike:motorcycle`,
	RunE: runRename,
}

func init() {
	renameCmd.Flags().StringArrayVarP(&renamePairs, "rename", "r", nil,
		"Rename pair old:new (repeatable)")
	renameCmd.MarkFlagRequired("rename")
	addMutateFlags(renameCmd)

	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	renames, err := parseRenames(renamePairs)
	if err != nil {
		return err
	}
	return runMutation(func(ctx context.Context, eng *mutation.Engine, ds *dataset.Dataset) (*mutation.Plan, error) {
		return eng.PlanRename(ctx, ds, renames)
	})
}

// parseRenames turns old:new pairs into a map.
func parseRenames(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, errors.New("at least one rename pair is required")
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		from, to, ok := strings.Cut(p, ":")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid rename %q (want old:new)", p)
		}
		if _, dup := out[from]; dup {
			return nil, fmt.Errorf("category %q renamed more than once", from)
		}
		out[from] = to
	}
	return out, nil
}
