// Package verifier checks a dataset for label and roster consistency.
package verifier

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/logger"
	"github.com/dbsmedya/yoloctl/internal/roster"
)

// ProblemKind classifies a verification finding.
type ProblemKind string

const (
	// KindIDOutOfRange is a category id with no roster entry.
	KindIDOutOfRange ProblemKind = "id_out_of_range"
	// KindMalformed is a line without a leading non-negative integer id.
	KindMalformed ProblemKind = "malformed"
	// KindTokenCount is a line that is neither a box nor a polygon.
	KindTokenCount ProblemKind = "token_count"
	// KindCoordinate is a coordinate that is not a number in [0,1].
	KindCoordinate ProblemKind = "coordinate"
	// KindOrphanLabel is a label file without a paired image.
	KindOrphanLabel ProblemKind = "orphan_label"
	// KindRosterDivergence is a roster copy that differs from the primary roster.
	KindRosterDivergence ProblemKind = "roster_divergence"
	// KindUnreadable is a file or directory that could not be read.
	KindUnreadable ProblemKind = "unreadable"
)

// Kinds lists every problem kind in report order.
var Kinds = []ProblemKind{
	KindIDOutOfRange,
	KindMalformed,
	KindTokenCount,
	KindCoordinate,
	KindOrphanLabel,
	KindRosterDivergence,
	KindUnreadable,
}

// Problem is one finding.
type Problem struct {
	Kind   ProblemKind
	File   string // relative to the dataset root
	Detail string
}

// Report holds the result of a verification run.
type Report struct {
	LabelFiles  int
	Records     int
	Images      int
	Backgrounds int // images without a label file
	Problems    []Problem
}

// OK reports whether no problems were found.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

// Count returns the number of problems of kind.
func (r *Report) Count(kind ProblemKind) int {
	n := 0
	for _, p := range r.Problems {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

// IndexProblems returns the findings that break agreement between label ids
// and the roster: out-of-range ids and diverging roster copies. A category
// edit is responsible for these; the other kinds describe the files it left
// alone.
func (r *Report) IndexProblems() []Problem {
	var out []Problem
	for _, p := range r.Problems {
		if p.Kind == KindIDOutOfRange || p.Kind == KindRosterDivergence {
			out = append(out, p)
		}
	}
	return out
}

// Verifier runs consistency checks.
type Verifier struct {
	logger *logger.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(log *logger.Logger) *Verifier {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Verifier{logger: log}
}

// Verify checks every label file of ds against names. With nil names the
// id range check is skipped. The only error returned is context cancellation.
func (v *Verifier) Verify(ctx context.Context, ds *dataset.Dataset, names []string) (*Report, error) {
	rep := &Report{}
	log := v.logger.WithDataset(ds.Root)

	refs := ds.AllLabelFiles(func(dir string, err error) {
		rep.add(KindUnreadable, ds.Rel(dir), err.Error())
	})
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("verification interrupted: %w", err)
		}
		rel := ds.Rel(ref.Path)

		if _, ok := ds.PairedImage(ref.ImagesDir, dataset.Stem(ref.Path)); !ok {
			rep.add(KindOrphanLabel, rel, "no image with this stem")
		}

		f, err := dataset.ReadLabelFile(ds.Fs(), ref.Path)
		if err != nil {
			rep.add(KindUnreadable, rel, err.Error())
			continue
		}
		rep.LabelFiles++
		for _, line := range f.Lines {
			if line.Err != nil {
				rep.add(KindMalformed, rel, line.Raw)
				continue
			}
			rep.Records++
			v.checkRecord(rep, rel, line, names)
		}
	}

	images := ds.AllImageFiles(func(dir string, err error) {
		rep.add(KindUnreadable, ds.Rel(dir), err.Error())
	})
	for _, ref := range images {
		rep.Images++
		if _, ok := ds.PairedLabel(ref.LabelsDir, ref.Path); !ok {
			rep.Backgrounds++
		}
	}

	if names != nil {
		v.checkRosters(rep, ds, names)
	}

	if rep.OK() {
		log.Infow("Verification PASSED",
			"label_files", rep.LabelFiles,
			"records", rep.Records,
			"images", rep.Images,
		)
	} else {
		log.Errorw("Verification FAILED",
			"problems", len(rep.Problems),
			"label_files", rep.LabelFiles,
		)
	}
	return rep, nil
}

func (v *Verifier) checkRecord(rep *Report, rel string, line dataset.Line, names []string) {
	rec := line.Record
	if names != nil && rec.ClassID >= len(names) {
		rep.add(KindIDOutOfRange, rel, fmt.Sprintf("id %d with %d categories: %s", rec.ClassID, len(names), line.Raw))
	}

	n := len(rec.Fields)
	if n != 4 && (n < 6 || n%2 != 0) {
		rep.add(KindTokenCount, rel, fmt.Sprintf("%d coordinates: %s", n, line.Raw))
		return
	}
	for _, tok := range rec.Fields {
		val, err := strconv.ParseFloat(tok, 64)
		if err != nil || val < 0 || val > 1 {
			rep.add(KindCoordinate, rel, fmt.Sprintf("value %q: %s", tok, line.Raw))
			return
		}
	}
}

// checkRosters compares every roster copy against names.
func (v *Verifier) checkRosters(rep *Report, ds *dataset.Dataset, names []string) {
	for _, p := range roster.Locate(ds.Fs(), ds) {
		got, err := roster.Read(ds.Fs(), p)
		if err != nil {
			rep.add(KindUnreadable, ds.Rel(p), err.Error())
			continue
		}
		if !sameNames(got, names) {
			rep.add(KindRosterDivergence, ds.Rel(p),
				fmt.Sprintf("%d names, expected %d matching the primary roster", len(got), len(names)))
		}
	}
}

func (r *Report) add(kind ProblemKind, file, detail string) {
	r.Problems = append(r.Problems, Problem{Kind: kind, File: file, Detail: detail})
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
