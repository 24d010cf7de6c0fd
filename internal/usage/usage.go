// Package usage counts category annotations across a dataset.
package usage

import (
	"context"
	"errors"
	"sort"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/logger"
	"github.com/dbsmedya/yoloctl/internal/roster"
)

// Snapshot is an immutable category_id → count view taken at one moment.
// It is computed fresh before every mutation decision.
type Snapshot struct {
	Counts     map[int]int
	Total      int
	PerSplit   map[string]map[int]int
	Files      int // label files read
	EmptyFiles int // label files with no valid records
	Malformed  int // skipped lines
	Unreadable int // skipped files
}

// Count returns the annotation count for id.
func (s *Snapshot) Count(id int) int {
	return s.Counts[id]
}

// UsedIDs returns ids with at least one annotation, ascending.
func (s *Snapshot) UsedIDs() []int {
	ids := make([]int, 0, len(s.Counts))
	for id, n := range s.Counts {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// MaxID returns the highest used id, or -1 for an unannotated dataset.
func (s *Snapshot) MaxID() int {
	max := -1
	for id := range s.Counts {
		if id > max {
			max = id
		}
	}
	return max
}

// Distribution returns counts ordered by frequency, most used first.
// Ties are broken by the lower id.
func (s *Snapshot) Distribution() *orderedmap.OrderedMap[int, int] {
	ids := s.UsedIDs()
	sort.SliceStable(ids, func(i, j int) bool {
		return s.Counts[ids[i]] > s.Counts[ids[j]]
	})
	m := orderedmap.NewOrderedMap[int, int]()
	for _, id := range ids {
		m.Set(id, s.Counts[id])
	}
	return m
}

// Analyzer scans label files.
type Analyzer struct {
	log *logger.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Analyzer{log: log}
}

// Analyze counts every well-formed record in every label file of ds.
// Malformed lines and unreadable files are logged and skipped. The only error
// returned is context cancellation.
func (a *Analyzer) Analyze(ctx context.Context, ds *dataset.Dataset) (*Snapshot, error) {
	snap := &Snapshot{
		Counts:   map[int]int{},
		PerSplit: map[string]map[int]int{},
	}
	log := a.log.WithDataset(ds.Root)

	refs := ds.AllLabelFiles(func(dir string, err error) {
		snap.Unreadable++
		log.Warnw("Skipping unreadable label directory", "dir", dir, "error", err)
	})

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := dataset.ReadLabelFile(ds.Fs(), ref.Path)
		if err != nil {
			snap.Unreadable++
			log.Warnw("Skipping unreadable label file", "file", ds.Rel(ref.Path), "error", err)
			continue
		}
		snap.Files++

		split := snap.PerSplit[ref.Split]
		if split == nil {
			split = map[int]int{}
			snap.PerSplit[ref.Split] = split
		}

		valid := 0
		for _, line := range f.Lines {
			if line.Err != nil {
				snap.Malformed++
				log.Warnw("Skipping malformed label line", "file", ds.Rel(ref.Path), "line", line.Raw)
				continue
			}
			valid++
			snap.Counts[line.Record.ClassID]++
			split[line.Record.ClassID]++
			snap.Total++
		}
		if valid == 0 {
			snap.EmptyFiles++
		}
	}

	log.Debugw("Usage analysis complete",
		"files", snap.Files,
		"annotations", snap.Total,
		"categories", len(snap.Counts),
	)
	return snap, nil
}

// SplitSummary describes one split directory pair.
type SplitSummary struct {
	Split       string
	LabelFiles  int
	Images      int
	Annotations int
}

// Report combines a snapshot with the roster it is interpreted against.
type Report struct {
	Layout     dataset.Layout
	Snapshot   *Snapshot
	Names      []string // nil when no roster was found
	RosterPath string
	Splits     []SplitSummary
}

// Report analyzes ds and attaches the discovered roster. A missing roster is a
// warning; the report is then id-only.
func (a *Analyzer) Report(ctx context.Context, ds *dataset.Dataset) (*Report, error) {
	snap, err := a.Analyze(ctx, ds)
	if err != nil {
		return nil, err
	}

	rep := &Report{Layout: ds.Layout, Snapshot: snap}

	names, src, err := roster.Discover(ds.Fs(), ds)
	switch {
	case err == nil:
		rep.Names, rep.RosterPath = names, src
	case errors.Is(err, roster.ErrRosterMissing):
		a.log.Warnw("No category roster found, reporting ids only", "dataset", ds.Root)
	default:
		return nil, err
	}

	for _, d := range ds.Dirs {
		labels, _ := ds.LabelFiles(d.LabelsDir)
		images, _ := ds.ImageFiles(d.ImagesDir)
		total := 0
		for _, n := range snap.PerSplit[d.Split] {
			total += n
		}
		rep.Splits = append(rep.Splits, SplitSummary{
			Split:       d.Split,
			LabelFiles:  len(labels),
			Images:      len(images),
			Annotations: total,
		})
	}
	return rep, nil
}

// Name returns the roster name for id, or "" when unknown.
func (r *Report) Name(id int) string {
	if id >= 0 && id < len(r.Names) {
		return r.Names[id]
	}
	return ""
}

// Unused returns roster ids without annotations.
func (r *Report) Unused() []int {
	var out []int
	for id := range r.Names {
		if r.Snapshot.Count(id) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// OutOfRange returns used ids that have no roster entry.
func (r *Report) OutOfRange() []int {
	if r.Names == nil {
		return nil
	}
	var out []int
	for _, id := range r.Snapshot.UsedIDs() {
		if id >= len(r.Names) {
			out = append(out, id)
		}
	}
	return out
}
