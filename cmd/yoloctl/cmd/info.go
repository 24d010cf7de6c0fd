package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/yoloctl/internal/usage"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show dataset layout and category usage",
	Long: `Info detects the dataset layout, reads the category roster and counts the
annotations of every category across all splits.

The report lists:
  - Detected layout and roster file
  - Annotation count and share per category, most used first
  - Label files, images and annotations per split
  - Roster categories without annotations
  - Used ids that have no roster entry

Example:
  yoloctl info --dataset ./my-dataset`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	ctx, cancel := s.signalContext()
	defer cancel()

	rep, err := usage.NewAnalyzer(s.log).Report(ctx, s.ds)
	if err != nil {
		return fmt.Errorf("usage analysis failed: %w", err)
	}

	printReport(s.ds.Root, rep)
	return nil
}

func printReport(root string, rep *usage.Report) {
	snap := rep.Snapshot

	printHeader("Dataset: %s", root)
	printf("Layout:       %s\n", rep.Layout)
	if rep.RosterPath != "" {
		printf("Roster:       %s (%d categories)\n", rep.RosterPath, len(rep.Names))
	} else {
		printf("Roster:       %s\n", caution("not found, ids only"))
	}
	printf("Label files:  %d (%d empty)\n", snap.Files, snap.EmptyFiles)
	printf("Annotations:  %d\n", snap.Total)
	if snap.Malformed > 0 || snap.Unreadable > 0 {
		printf("Skipped:      %s\n", caution(fmt.Sprintf("%d malformed lines, %d unreadable files", snap.Malformed, snap.Unreadable)))
	}
	printf("\n")

	printSection("Category Distribution")
	var rows [][]string
	for el := snap.Distribution().Front(); el != nil; el = el.Next() {
		name := rep.Name(el.Key)
		if name == "" {
			name = "?"
		}
		rows = append(rows, []string{
			fmt.Sprint(el.Key),
			name,
			fmt.Sprint(el.Value),
			fmt.Sprintf("%.2f%%", percent(el.Value, snap.Total)),
		})
	}
	if len(rows) == 0 {
		printf("  No annotations found\n")
	} else {
		printTable([]string{"ID", "NAME", "COUNT", "SHARE"}, rows)
	}
	printf("\n")

	if len(rep.Splits) > 0 {
		printSection("Splits")
		rows = rows[:0]
		for _, sp := range rep.Splits {
			rows = append(rows, []string{
				sp.Split,
				fmt.Sprint(sp.Images),
				fmt.Sprint(sp.LabelFiles),
				fmt.Sprint(sp.Annotations),
			})
		}
		printTable([]string{"SPLIT", "IMAGES", "LABELS", "ANNOTATIONS"}, rows)
		printf("\n")
	}

	if rep.Names != nil {
		printSection("Roster Check")
		printf("Unused categories:  %s\n", formatIDs(rep.Unused()))
		if out := rep.OutOfRange(); len(out) > 0 {
			printf("Out-of-range ids:   %s\n", bad(formatIDs(out)))
		} else {
			printf("Out-of-range ids:   %s\n", good("none"))
		}
		printf("\n")
	}
}
