package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/mutation"
)

var (
	deleteIDs           []int
	deleteMinSamples    int
	deleteMinPercentage float64
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete categories and renumber the rest",
	Long: `Delete removes categories from every label file and from all roster copies.
Remaining categories are renumbered to a dense 0..n-1 range in their original
order. Label files left without annotations are kept as background images.

Categories can be chosen explicitly, by annotation count, or by share of all
annotations. The selections are combined.

Without --execute only a preview is shown.

Example:
  yoloctl delete --dataset ./ds --classes 3,7
  yoloctl delete --dataset ./ds --min-samples 50 --execute --yes`,
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().IntSliceVar(&deleteIDs, "classes", nil,
		"Category ids to delete (comma separated)")
	deleteCmd.Flags().IntVar(&deleteMinSamples, "min-samples", 0,
		"Also delete categories with fewer annotations than this")
	deleteCmd.Flags().Float64Var(&deleteMinPercentage, "min-percentage", 0,
		"Also delete categories below this share of all annotations (percent)")
	addMutateFlags(deleteCmd)

	rootCmd.AddCommand(deleteCmd)
}

// addMutateFlags registers --execute and --yes on a mutating command.
func addMutateFlags(c *cobra.Command) {
	c.Flags().BoolVar(&mutateExecute, "execute", false,
		"Apply the changes (default is preview only)")
	c.Flags().BoolVarP(&mutateYes, "yes", "y", false,
		"Do not ask for confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	if len(deleteIDs) == 0 && deleteMinSamples <= 0 && deleteMinPercentage <= 0 {
		return errors.New("nothing selected: use --classes, --min-samples or --min-percentage")
	}
	req := mutation.DeleteRequest{
		IDs:           deleteIDs,
		MinSamples:    deleteMinSamples,
		MinPercentage: deleteMinPercentage,
	}
	return runMutation(func(ctx context.Context, eng *mutation.Engine, ds *dataset.Dataset) (*mutation.Plan, error) {
		return eng.PlanDelete(ctx, ds, req)
	})
}
