package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/partition"
)

var (
	splitOut    string
	splitTrain  float64
	splitVal    float64
	splitTest   float64
	splitSeed   int64
	splitFormat string
	splitDryRun bool
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a dataset into train/val/test keeping every category represented",
	Long: `Split assigns every image of the dataset to train, val or test and copies
the images, their label files and the roster into a new dataset tree. The
source dataset is not modified.

Categories are allocated rarest first so that every category present in the
dataset appears in train. Images without annotations are split last by the
same ratios. The same seed always produces the same split.

Ratios and seed default to the partition section of the config file. With
--test 0 the dataset is split into train and val only.

Example:
  yoloctl split --dataset ./ds -o ./ds-split
  yoloctl split --dataset ./ds -o ./ds-split --train 0.7 --val 0.2 --test 0.1 --seed 7 --format format2`,
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().StringVarP(&splitOut, "out", "o", "",
		"Output directory for the split dataset (required)")
	splitCmd.MarkFlagRequired("out")

	splitCmd.Flags().Float64Var(&splitTrain, "train", 0, "Train ratio (default from config)")
	splitCmd.Flags().Float64Var(&splitVal, "val", 0, "Val ratio (default from config)")
	splitCmd.Flags().Float64Var(&splitTest, "test", 0, "Test ratio (default from config)")
	splitCmd.Flags().Int64Var(&splitSeed, "seed", 0, "Shuffle seed (default from config)")
	splitCmd.Flags().StringVar(&splitFormat, "format", "",
		"Output layout: format1 ({out}/{split}/images) or format2 ({out}/images/{split})")
	splitCmd.Flags().BoolVar(&splitDryRun, "dry-run", false,
		"Compute and show the split without copying files")

	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	ctx, cancel := s.signalContext()
	defer cancel()

	pc := s.cfg.Partition
	ratios := partition.Ratios{Train: pc.Train, Val: pc.Val, Test: pc.Test}
	flags := cmd.Flags()
	if flags.Changed("train") {
		ratios.Train = splitTrain
	}
	if flags.Changed("val") {
		ratios.Val = splitVal
	}
	if flags.Changed("test") {
		ratios.Test = splitTest
	}
	seed := pc.Seed
	if flags.Changed("seed") {
		seed = splitSeed
	}
	format := dataset.Layout(pc.OutputFormat)
	if splitFormat != "" {
		format = dataset.Layout(splitFormat)
	}

	out, err := filepath.Abs(splitOut)
	if err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}

	s.log.Infow("Starting split",
		"dataset", s.ds.Root,
		"out", out,
		"seed", seed,
		"format", format,
		"dry_run", splitDryRun,
	)

	p := partition.NewPartitioner(s.log)
	res, err := p.Split(ctx, s.ds, ratios, seed)
	if err != nil {
		return err
	}

	printSplit(s.ds.Root, res, ratios, seed)
	if splitDryRun {
		printf("Dry run: nothing was copied.\n")
		return nil
	}

	stats, err := p.Materialize(ctx, s.ds, res, out, format)
	if err != nil {
		return fmt.Errorf("failed to write split: %w", err)
	}

	printf("\n=== Split Complete ===\n")
	printf("Output:        %s (%s)\n", stats.OutDir, format)
	printf("Images copied: %d\n", stats.Images)
	printf("Labels copied: %d\n", stats.Labels)
	printf("Rosters:       %d\n", stats.Rosters)
	if stats.Renamed > 0 {
		printf("Renamed:       %s\n", caution(fmt.Sprintf("%d images with colliding names", stats.Renamed)))
	}
	printf("Duration:      %s\n", stats.Duration)
	return nil
}

// printSplit shows bucket sizes and per-category counts of a split.
func printSplit(root string, res *partition.Result, ratios partition.Ratios, seed int64) {
	printHeader("Split: %s", root)
	printf("Ratios:       train=%g val=%g test=%g\n", ratios.Train, ratios.Val, ratios.Test)
	printf("Seed:         %d\n", seed)
	printf("Images:       %d (%d backgrounds)\n", len(res.Items), res.Backgrounds())
	if len(res.Orphans) > 0 {
		printf("Skipped:      %s\n", caution(fmt.Sprintf("%d label files without an image", len(res.Orphans))))
	}
	printf("\n")

	printSection("Buckets")
	total := res.Len()
	var rows [][]string
	for el := res.Buckets().Front(); el != nil; el = el.Next() {
		rows = append(rows, []string{
			el.Key,
			fmt.Sprint(len(el.Value)),
			fmt.Sprintf("%.1f%%", percent(len(el.Value), total)),
		})
	}
	printTable([]string{"BUCKET", "IMAGES", "SHARE"}, rows)
	printf("\n")

	train := res.Counts(partition.BucketTrain)
	val := res.Counts(partition.BucketVal)
	test := res.Counts(partition.BucketTest)
	seen := map[int]bool{}
	var ids []int
	for _, it := range res.Items {
		for _, c := range it.Categories {
			if !seen[c] {
				seen[c] = true
				ids = append(ids, c)
			}
		}
	}
	if len(ids) == 0 {
		return
	}
	sort.Ints(ids)

	printSection("Images per Category")
	rows = rows[:0]
	for _, id := range ids {
		trainCell := fmt.Sprint(train[id])
		if train[id] == 0 {
			trainCell = bad(trainCell)
		}
		rows = append(rows, []string{fmt.Sprint(id), trainCell, fmt.Sprint(val[id]), fmt.Sprint(test[id])})
	}
	printTable([]string{"ID", "TRAIN", "VAL", "TEST"}, rows)
	printf("\n")
}
