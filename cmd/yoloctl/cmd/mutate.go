package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbsmedya/yoloctl/internal/backup"
	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/mutation"
	"github.com/dbsmedya/yoloctl/internal/verifier"
)

// Flags shared by every mutating command.
var (
	mutateExecute bool
	mutateYes     bool
)

// planFunc builds the plan for one mutating command.
type planFunc func(ctx context.Context, eng *mutation.Engine, ds *dataset.Dataset) (*mutation.Plan, error)

// runMutation drives a mutation end to end: plan, preview, confirm, back up,
// apply, prune old backups and verify. Without --execute it stops after the
// preview.
func runMutation(build planFunc) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	ctx, cancel := s.signalContext()
	defer cancel()

	if mutateExecute {
		release, err := s.acquireLock()
		if err != nil {
			return err
		}
		defer release()
	}

	backups := backup.NewManager(s.fs, s.log)
	eng := mutation.NewEngine(backups, s.log)

	plan, err := build(ctx, eng, s.ds)
	if err != nil {
		return err
	}

	printPlan(s.ds.Root, plan)
	if plan.IsNoop() {
		printf("%s\n", good("Nothing to change."))
		return nil
	}

	preview, err := eng.Apply(ctx, s.ds, plan, mutation.ApplyOptions{DryRun: true})
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}
	printResult(preview)

	if !mutateExecute {
		printf("Preview only. Re-run with --execute to apply.\n")
		return nil
	}
	if !mutateYes && !confirm("Apply these changes?") {
		printf("Aborted, nothing was written.\n")
		return nil
	}

	s.log.Infow("Starting mutation",
		"operation", plan.Kind,
		"dataset", s.ds.Root,
		"backup", s.cfg.Backup.Enabled,
	)
	res, err := eng.Apply(ctx, s.ds, plan, mutation.ApplyOptions{Backup: s.cfg.Backup.Enabled})
	if err != nil {
		return fmt.Errorf("%s failed: %w", plan.Kind, err)
	}
	printResult(res)

	if s.cfg.Backup.Enabled && s.cfg.Backup.AutoPrune {
		removed, err := backups.Prune(s.ds.Root, s.cfg.Backup.Keep, false)
		if err != nil {
			s.log.Warnw("Failed to prune old backups", "error", err)
		} else if len(removed) > 0 {
			printf("Pruned %d old backup(s)\n", len(removed))
		}
	}

	if s.cfg.Mutation.Verify {
		rep, err := verifier.NewVerifier(s.log).Verify(ctx, s.ds, plan.NewNames)
		if err != nil {
			return err
		}
		printVerification(rep)
		if n := len(rep.IndexProblems()); n > 0 {
			return fmt.Errorf("verification after %s found %d category id problem(s)", plan.Kind, n)
		}
		if !rep.OK() {
			s.log.Warnw("Dataset has problems unrelated to category ids",
				"operation", string(plan.Kind), "problems", len(rep.Problems))
			printf("%s %d problem(s) not caused by %s; run validate for details\n\n",
				caution("WARNING:"), len(rep.Problems), plan.Kind)
		}
	}

	if len(res.Failures) > 0 {
		return fmt.Errorf("%s completed with %d failed file(s)", plan.Kind, len(res.Failures))
	}
	return nil
}

// printPlan shows the old→new category mapping and what will be removed.
func printPlan(root string, plan *mutation.Plan) {
	printHeader("%s Preview: %s", titleCase(string(plan.Kind)), root)

	top := len(plan.OldNames)
	if n := plan.Snapshot.MaxID() + 1; n > top {
		top = n
	}

	printSection("Category Mapping")
	var rows [][]string
	for old := 0; old < top; old++ {
		count := plan.Snapshot.Count(old)
		if old >= len(plan.OldNames) && count == 0 {
			continue
		}
		target := bad("removed")
		newName := ""
		if to, ok := plan.Target(old); ok {
			target = fmt.Sprint(to)
			if to < len(plan.NewNames) {
				newName = plan.NewNames[to]
			}
			if to != old || newName != plan.Name(old) {
				target = caution(target)
			}
		}
		rows = append(rows, []string{fmt.Sprint(old), plan.Name(old), fmt.Sprint(count), target, newName})
	}
	printTable([]string{"OLD", "NAME", "COUNT", "NEW", "NEW NAME"}, rows)
	printf("\n")

	printSection("Summary")
	printf("Removed ids:          %s\n", formatIDs(plan.Removed))
	printf("  with annotations:   %s\n", formatIDs(plan.RemovedUsed))
	printf("  without:            %s\n", formatIDs(plan.RemovedUnused))
	printf("Annotations removed:  %d of %d (%.2f%%)\n",
		plan.RemovedAnnotations, plan.TotalAnnotations, percent(plan.RemovedAnnotations, plan.TotalAnnotations))
	printf("Annotations kept:     %d\n", plan.KeptAnnotations())
	if plan.DeleteEmpty {
		printf("Emptied label files:  %s\n", caution("deleted with their images"))
	}
	printf("Roster files:         %d\n", len(plan.RosterPaths))
	for _, w := range plan.Warnings {
		printf("%s %s\n", caution("WARNING:"), w)
	}
	printf("\n")
}

// printResult shows the counters of an Apply run.
func printResult(res *mutation.Result) {
	if res.DryRun {
		printSection("Dry Run")
	} else {
		printf("\n=== %s Complete ===\n", titleCase(string(res.Plan.Kind)))
	}
	if res.BackupPath != "" {
		printf("Backup:               %s\n", res.BackupPath)
	}
	printf("Label files scanned:  %d\n", res.FilesScanned)
	printf("Label files changed:  %d\n", res.FilesRewritten)
	printf("Label files deleted:  %d\n", res.LabelFilesDeleted)
	printf("Images deleted:       %d\n", res.ImagesDeleted)
	printf("Records remapped:     %d\n", res.RecordsRemapped)
	printf("Records dropped:      %d\n", res.RecordsDropped)
	if res.MalformedLines > 0 {
		printf("Malformed lines kept: %s\n", caution(fmt.Sprint(res.MalformedLines)))
	}
	if !res.DryRun {
		printf("Rosters written:      %d\n", len(res.RostersWritten))
		printf("Duration:             %s\n", res.Duration)
	}
	for _, f := range res.Failures {
		printf("%s %v\n", bad("FAILED:"), f)
	}
	printf("\n")
}

// printVerification shows a verifier report grouped by problem kind.
func printVerification(rep *verifier.Report) {
	printSection("Verification")
	printf("Label files: %d, records: %d, images: %d, backgrounds: %d\n",
		rep.LabelFiles, rep.Records, rep.Images, rep.Backgrounds)
	if rep.OK() {
		printf("%s\n\n", good("PASSED"))
		return
	}
	for _, kind := range verifier.Kinds {
		if n := rep.Count(kind); n > 0 {
			printf("  %-18s %d\n", kind, n)
		}
	}
	for _, p := range rep.Problems {
		printf("  %s %s: %s\n", bad(string(p.Kind)), p.File, p.Detail)
	}
	printf("%s\n\n", bad("FAILED"))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
