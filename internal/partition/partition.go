package partition

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/fsutil"
	"github.com/dbsmedya/yoloctl/internal/logger"
	"github.com/dbsmedya/yoloctl/internal/roster"
)

// ErrOutputNotEmpty is returned when the materialization target already has content.
var ErrOutputNotEmpty = errors.New("output directory is not empty")

// Result is a computed split together with the inventory it was computed from.
type Result struct {
	*Assignment
	Items   []Item
	Orphans []string // label files without an image, relative to the root
}

// Counts returns, for one bucket, the number of images carrying each category.
func (r *Result) Counts(bucket string) map[int]int {
	byID := make(map[string]Item, len(r.Items))
	for _, it := range r.Items {
		byID[it.ID] = it
	}
	ids, _ := r.Buckets().Get(bucket)
	counts := map[int]int{}
	for _, id := range ids {
		for _, c := range byID[id].Categories {
			counts[c]++
		}
	}
	return counts
}

// Backgrounds returns the number of items without categories.
func (r *Result) Backgrounds() int {
	n := 0
	for _, it := range r.Items {
		if len(it.Categories) == 0 {
			n++
		}
	}
	return n
}

// MaterializeStats summarizes a Materialize run.
type MaterializeStats struct {
	OutDir   string
	Images   int
	Labels   int
	Rosters  int
	Renamed  int
	Duration time.Duration
}

// Partitioner collects dataset items and writes split trees.
type Partitioner struct {
	log *logger.Logger
}

// NewPartitioner creates a Partitioner.
func NewPartitioner(log *logger.Logger) *Partitioner {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Partitioner{log: log}
}

// Collect builds one item per image in every split, sorted by id. Label
// files without a paired image are reported and skipped. Unreadable label
// files leave their image as a background.
func (p *Partitioner) Collect(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	log := p.log.WithDataset(ds.Root)
	res := &Result{Assignment: &Assignment{}}

	images := ds.AllImageFiles(func(dir string, err error) {
		log.Warnw("Skipping unreadable image directory", "dir", dir, "error", err)
	})
	for _, ref := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := Item{ID: ds.Rel(ref.Path)}
		if label, ok := ds.PairedLabel(ref.LabelsDir, ref.Path); ok {
			item.Label = ds.Rel(label)
			item.Categories = p.categories(ds, label, log)
		}
		res.Items = append(res.Items, item)
	}
	sort.Slice(res.Items, func(i, j int) bool { return res.Items[i].ID < res.Items[j].ID })

	labels := ds.AllLabelFiles(nil)
	for _, ref := range labels {
		if _, ok := ds.PairedImage(ref.ImagesDir, dataset.Stem(ref.Path)); !ok {
			res.Orphans = append(res.Orphans, ds.Rel(ref.Path))
			log.Warnw("Label file has no paired image, skipped", "file", ds.Rel(ref.Path))
		}
	}

	log.Debugw("Collected partition items",
		"items", len(res.Items),
		"orphans", len(res.Orphans),
	)
	return res, nil
}

func (p *Partitioner) categories(ds *dataset.Dataset, label string, log *logger.Logger) []int {
	f, err := dataset.ReadLabelFile(ds.Fs(), label)
	if err != nil {
		log.Warnw("Skipping unreadable label file", "file", ds.Rel(label), "error", err)
		return nil
	}
	seen := map[int]bool{}
	var out []int
	for _, rec := range f.Records() {
		if !seen[rec.ClassID] {
			seen[rec.ClassID] = true
			out = append(out, rec.ClassID)
		}
	}
	sort.Ints(out)
	return out
}

// Split validates ratios, collects the items of ds and allocates them.
func (p *Partitioner) Split(ctx context.Context, ds *dataset.Dataset, ratios Ratios, seed int64) (*Result, error) {
	if err := ratios.Validate(); err != nil {
		return nil, err
	}
	res, err := p.Collect(ctx, ds)
	if err != nil {
		return nil, err
	}
	res.Assignment = Allocate(res.Items, ratios, seed)

	p.log.WithDataset(ds.Root).Infow("Computed split",
		"seed", seed,
		"train", len(res.Train),
		"val", len(res.Val),
		"test", len(res.Test),
		"backgrounds", res.Backgrounds(),
	)
	return res, nil
}

// Materialize copies every assigned image, its label file when present, and
// the root roster files into a new tree at outDir laid out as format1
// ({out}/{split}/images|labels) or format2 ({out}/images|labels/{split}).
// The source dataset is never modified.
func (p *Partitioner) Materialize(ctx context.Context, ds *dataset.Dataset, res *Result, outDir string, format dataset.Layout) (*MaterializeStats, error) {
	start := time.Now()
	outDir = filepath.Clean(outDir)
	fs := ds.Fs()
	log := p.log.WithDataset(ds.Root).WithOperation("split")

	if format != dataset.LayoutFormat1 && format != dataset.LayoutFormat2 {
		return nil, fmt.Errorf("unsupported output format %q (want format1 or format2)", format)
	}
	if outDir == ds.Root {
		return nil, fmt.Errorf("output directory must differ from the dataset root %s", ds.Root)
	}
	if entries, err := afero.ReadDir(fs, outDir); err == nil && len(entries) > 0 {
		return nil, fmt.Errorf("%s: %w", outDir, ErrOutputNotEmpty)
	}

	labels := make(map[string]string, len(res.Items))
	for _, it := range res.Items {
		labels[it.ID] = it.Label
	}

	stats := &MaterializeStats{OutDir: outDir}
	for el := res.Buckets().Front(); el != nil; el = el.Next() {
		bucket, ids := el.Key, el.Value
		if len(ids) == 0 && bucket == BucketTest {
			continue
		}
		imagesDir, labelsDir := bucketDirs(outDir, bucket, format)
		for _, dir := range []string{imagesDir, labelsDir} {
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				return stats, fmt.Errorf("create %s: %w", dir, err)
			}
		}

		taken := map[string]bool{}
		blog := log.WithSplit(bucket)
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			name := uniqueStem(id, taken)
			if name != dataset.Stem(id) {
				stats.Renamed++
				blog.Warnw("Image name already used in bucket, renamed", "image", id, "stem", name)
			}

			src := filepath.Join(ds.Root, filepath.FromSlash(id))
			dst := filepath.Join(imagesDir, name+path.Ext(id))
			if err := fsutil.CopyFile(fs, src, dst); err != nil {
				return stats, fmt.Errorf("copy image %s: %w", id, err)
			}
			stats.Images++

			if label := labels[id]; label != "" {
				src := filepath.Join(ds.Root, filepath.FromSlash(label))
				if err := fsutil.CopyFile(fs, src, filepath.Join(labelsDir, name+".txt")); err != nil {
					return stats, fmt.Errorf("copy label %s: %w", label, err)
				}
				stats.Labels++
			}
		}
	}

	rosters := roster.RootFiles(fs, ds.Root)
	if len(rosters) == 0 {
		if _, src, err := roster.Discover(fs, ds); err == nil {
			rosters = []string{src}
		}
	}
	for _, src := range rosters {
		if err := fsutil.CopyFile(fs, src, filepath.Join(outDir, filepath.Base(src))); err != nil {
			return stats, fmt.Errorf("copy roster %s: %w", filepath.Base(src), err)
		}
		stats.Rosters++
	}

	stats.Duration = time.Since(start)
	log.Infow("Materialized split",
		"out", outDir,
		"format", format,
		"images", stats.Images,
		"labels", stats.Labels,
		"rosters", stats.Rosters,
		"duration", stats.Duration,
	)
	return stats, nil
}

func bucketDirs(outDir, bucket string, format dataset.Layout) (string, string) {
	if format == dataset.LayoutFormat2 {
		return filepath.Join(outDir, "images", bucket), filepath.Join(outDir, "labels", bucket)
	}
	return filepath.Join(outDir, bucket, "images"), filepath.Join(outDir, bucket, "labels")
}

// uniqueStem returns the output stem for id. Images from different source
// splits may share a stem; later ones get their source directory prefixed.
func uniqueStem(id string, taken map[string]bool) string {
	stem := dataset.Stem(id)
	if !taken[stem] {
		taken[stem] = true
		return stem
	}
	prefix := strings.ReplaceAll(path.Dir(id), "/", "_")
	candidate := prefix + "_" + stem
	for i := 2; taken[candidate]; i++ {
		candidate = fmt.Sprintf("%s_%s_%d", prefix, stem, i)
	}
	taken[candidate] = true
	return candidate
}
