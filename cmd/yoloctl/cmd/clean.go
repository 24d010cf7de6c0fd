package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/mutation"
)

var (
	cleanMinSamples    int
	cleanMinPercentage float64
	cleanKeep          []int
	cleanRemove        []int
	cleanTopN          int
	cleanIDRange       string
	cleanOrder         []string
	cleanPruneUnused   bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove categories by strategy and drop emptied images",
	Long: `Clean removes the categories selected by one or more strategies, deletes
label files left without annotations together with their images, and
renumbers the remaining categories.

Strategies (combined when several are given):
  --min-samples N      categories with fewer than N annotations
  --min-percentage P   categories below P percent of all annotations
  --keep ids           every category except these
  --remove ids         exactly these categories
  --top-n N            every category outside the N most used
  --id-range lo-hi     categories with ids in [lo, hi]

Example:
  yoloctl clean --dataset ./ds --min-samples 10
  yoloctl clean --dataset ./ds --top-n 5 --order car,person,bike,bus,truck --execute`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().IntVar(&cleanMinSamples, "min-samples", 0,
		"Remove categories with fewer annotations than this")
	cleanCmd.Flags().Float64Var(&cleanMinPercentage, "min-percentage", 0,
		"Remove categories below this share of all annotations (percent)")
	cleanCmd.Flags().IntSliceVar(&cleanKeep, "keep", nil,
		"Keep only these category ids")
	cleanCmd.Flags().IntSliceVar(&cleanRemove, "remove", nil,
		"Remove these category ids")
	cleanCmd.Flags().IntVar(&cleanTopN, "top-n", 0,
		"Keep only the N most used categories")
	cleanCmd.Flags().StringVar(&cleanIDRange, "id-range", "",
		"Remove categories with ids in lo-hi (inclusive)")
	cleanCmd.Flags().StringSliceVar(&cleanOrder, "order", nil,
		"New order of the surviving category names (comma separated)")
	cleanCmd.Flags().BoolVar(&cleanPruneUnused, "prune-unused", false,
		"Also remove roster categories without annotations")
	addMutateFlags(cleanCmd)

	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	strategy, err := cleanStrategy()
	if err != nil {
		return err
	}
	req := mutation.CleanRequest{
		Strategy:    strategy,
		Order:       cleanOrder,
		PruneUnused: cleanPruneUnused,
	}
	return runMutation(func(ctx context.Context, eng *mutation.Engine, ds *dataset.Dataset) (*mutation.Plan, error) {
		return eng.PlanClean(ctx, ds, req)
	})
}

// cleanStrategy builds the strategy selected by the clean flags.
func cleanStrategy() (mutation.Strategy, error) {
	var list []mutation.Strategy
	if cleanMinSamples > 0 {
		list = append(list, mutation.MinSamples{N: cleanMinSamples})
	}
	if cleanMinPercentage > 0 {
		list = append(list, mutation.MinPercentage{Percent: cleanMinPercentage})
	}
	if len(cleanKeep) > 0 {
		list = append(list, mutation.Keep{IDs: cleanKeep})
	}
	if len(cleanRemove) > 0 {
		list = append(list, mutation.Remove{IDs: cleanRemove})
	}
	if cleanTopN > 0 {
		list = append(list, mutation.TopN{N: cleanTopN})
	}
	if cleanIDRange != "" {
		r, err := parseIDRange(cleanIDRange)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}

	switch len(list) {
	case 0:
		if cleanPruneUnused {
			// Remove of nothing leaves only the unused-category pruning.
			return mutation.Remove{}, nil
		}
		return nil, errors.New("no strategy given: use --min-samples, --min-percentage, --keep, --remove, --top-n or --id-range")
	case 1:
		return list[0], nil
	default:
		return mutation.Combo{Strategies: list}, nil
	}
}

// parseIDRange parses "lo-hi".
func parseIDRange(s string) (mutation.IDRange, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return mutation.IDRange{}, fmt.Errorf("invalid id range %q (want lo-hi)", s)
	}
	l, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return mutation.IDRange{}, fmt.Errorf("invalid id range %q: %w", s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return mutation.IDRange{}, fmt.Errorf("invalid id range %q: %w", s, err)
	}
	if l < 0 || l > h {
		return mutation.IDRange{}, fmt.Errorf("invalid id range %q: need 0 <= lo <= hi", s)
	}
	return mutation.IDRange{Lo: l, Hi: h}, nil
}
