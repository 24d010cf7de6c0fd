// Package mutation plans and applies category edits (delete, reindex, clean
// and rename) while keeping label files, roster copies and images consistent.
//
// Every operation is split in two steps. A Plan* method analyzes the dataset,
// validates the request and returns a Plan without writing anything. Apply
// then backs up the labels, rewrites them through the plan's id mapping and
// finally writes the new roster to every copy.
package mutation

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dbsmedya/yoloctl/internal/backup"
	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/logger"
	"github.com/dbsmedya/yoloctl/internal/roster"
	"github.com/dbsmedya/yoloctl/internal/usage"
)

// Engine plans and applies mutations.
type Engine struct {
	analyzer *usage.Analyzer
	backups  *backup.Manager
	log      *logger.Logger
}

// NewEngine creates an Engine. backups may be nil when Apply is never asked
// to take a backup.
func NewEngine(backups *backup.Manager, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Engine{
		analyzer: usage.NewAnalyzer(log),
		backups:  backups,
		log:      log,
	}
}

// ApplyOptions controls Apply.
type ApplyOptions struct {
	DryRun bool
	Backup bool
}

// Result summarizes an Apply run.
type Result struct {
	Plan       *Plan
	DryRun     bool
	BackupPath string

	FilesScanned      int
	FilesRewritten    int
	FilesUnchanged    int
	LabelFilesDeleted int
	ImagesDeleted     int

	RecordsRemapped int
	RecordsDropped  int
	MalformedLines  int

	RostersWritten []string
	Failures       []FileError
	Duration       time.Duration
}

// Apply executes plan against ds.
//
// The context is honored until the first destructive write. Once label files
// start changing the run completes, since stopping midway would leave labels
// and roster out of step. Per-file failures are logged, collected in
// Result.Failures and skipped.
func (e *Engine) Apply(ctx context.Context, ds *dataset.Dataset, plan *Plan, opts ApplyOptions) (*Result, error) {
	start := time.Now()
	log := e.log.WithDataset(ds.Root).WithOperation(string(plan.Kind))
	res := &Result{Plan: plan, DryRun: opts.DryRun}

	if plan.IsNoop() {
		log.Info("Nothing to change")
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.Backup && !opts.DryRun {
		if e.backups == nil {
			return nil, fmt.Errorf("backup requested but no backup manager configured")
		}
		stats, err := e.backups.Snapshot(ctx, ds)
		if err != nil {
			return nil, fmt.Errorf("backup failed, dataset left untouched: %w", err)
		}
		res.BackupPath = stats.Path
	}

	if plan.RewritesLabels() {
		refs := ds.AllLabelFiles(func(dir string, err error) {
			res.Failures = append(res.Failures, FileError{Path: dir, Op: "list", Err: err})
			log.Errorw("Failed to list label directory", "dir", dir, "error", err)
		})
		for _, ref := range refs {
			e.rewrite(ds, plan, ref, opts.DryRun, res, log)
		}
	}

	if plan.NewNames != nil && !opts.DryRun {
		for _, p := range plan.RosterPaths {
			if err := roster.Write(ds.Fs(), p, plan.NewNames); err != nil {
				res.Failures = append(res.Failures, FileError{Path: p, Op: "write roster", Err: err})
				log.Errorw("Failed to write roster", "file", p, "error", err)
				continue
			}
			res.RostersWritten = append(res.RostersWritten, p)
		}
		if len(plan.RosterPaths) == 0 {
			log.Warn("Dataset has no roster file to update")
		}
	}

	res.Duration = time.Since(start)
	log.Infow("Mutation complete",
		"dry_run", opts.DryRun,
		"files_scanned", res.FilesScanned,
		"files_rewritten", res.FilesRewritten,
		"label_files_deleted", res.LabelFilesDeleted,
		"images_deleted", res.ImagesDeleted,
		"records_dropped", res.RecordsDropped,
		"failures", len(res.Failures),
		"duration", res.Duration,
	)
	return res, nil
}

// rewrite applies the plan's mapping to one label file.
func (e *Engine) rewrite(ds *dataset.Dataset, plan *Plan, ref dataset.LabelRef, dryRun bool, res *Result, log *logger.Logger) {
	f, err := dataset.ReadLabelFile(ds.Fs(), ref.Path)
	if err != nil {
		res.Failures = append(res.Failures, FileError{Path: ref.Path, Op: "read", Err: err})
		log.Errorw("Failed to read label file", "file", ds.Rel(ref.Path), "error", err)
		return
	}
	res.FilesScanned++

	lines := make([]string, 0, len(f.Lines))
	changed, valid := false, 0
	for _, line := range f.Lines {
		if line.Err != nil {
			res.MalformedLines++
			lines = append(lines, line.Raw)
			continue
		}
		to, ok := plan.Target(line.Record.ClassID)
		if !ok {
			res.RecordsDropped++
			changed = true
			continue
		}
		valid++
		if to == line.Record.ClassID {
			lines = append(lines, line.Raw)
			continue
		}
		res.RecordsRemapped++
		changed = true
		lines = append(lines, line.Record.Format(to))
	}

	if plan.DeleteEmpty && valid == 0 {
		e.deletePair(ds, ref, dryRun, res, log)
		return
	}

	if !changed {
		res.FilesUnchanged++
		return
	}

	res.FilesRewritten++
	if dryRun {
		return
	}
	if err := dataset.WriteLabelFile(ds.Fs(), ref.Path, lines); err != nil {
		res.FilesRewritten--
		res.Failures = append(res.Failures, FileError{Path: ref.Path, Op: "write", Err: err})
		log.Errorw("Failed to write label file", "file", ds.Rel(ref.Path), "error", err)
	}
}

// deletePair removes a label file with no valid records, and every image
// sharing its stem.
func (e *Engine) deletePair(ds *dataset.Dataset, ref dataset.LabelRef, dryRun bool, res *Result, log *logger.Logger) {
	images := ds.PairedImages(ref.ImagesDir, dataset.Stem(ref.Path))

	if dryRun {
		res.LabelFilesDeleted++
		res.ImagesDeleted += len(images)
		return
	}

	if err := ds.Fs().Remove(ref.Path); err != nil {
		res.Failures = append(res.Failures, FileError{Path: ref.Path, Op: "delete", Err: err})
		log.Errorw("Failed to delete label file", "file", ds.Rel(ref.Path), "error", err)
		return
	}
	res.LabelFilesDeleted++

	if len(images) == 0 {
		log.Debugw("Emptied label file has no paired image", "file", ds.Rel(ref.Path))
		return
	}
	for _, image := range images {
		if err := ds.RemoveImage(image); err != nil {
			res.Failures = append(res.Failures, FileError{Path: image, Op: "delete", Err: err})
			log.Errorw("Failed to delete image", "file", ds.Rel(image), "error", err)
			continue
		}
		res.ImagesDeleted++
		log.Debugw("Deleted emptied image/label pair", "label", ds.Rel(ref.Path), "image", filepath.Base(image))
	}
}
