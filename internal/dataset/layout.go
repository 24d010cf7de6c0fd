// Package dataset detects the directory layout of a YOLO dataset and
// enumerates its label and image files.
//
// A Dataset is a per-invocation view of the filesystem. Nothing here is
// persisted; every command detects the layout again.
package dataset

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/dbsmedya/yoloctl/internal/config"
	"github.com/dbsmedya/yoloctl/internal/fsutil"
	"github.com/dbsmedya/yoloctl/internal/logger"
)

// Layout identifies one of the recognized directory conventions.
type Layout string

const (
	// LayoutFormat1 is {root}/{split}/images|labels.
	LayoutFormat1 Layout = "format1"
	// LayoutFormat2 is {root}/images|labels/{split}.
	LayoutFormat2 Layout = "format2"
	// LayoutStandard is {root}/images and {root}/labels with no splits.
	LayoutStandard Layout = "standard"
	// LayoutMixed keeps images and label files side by side in {root}.
	LayoutMixed Layout = "mixed"
	// LayoutUnknown means no matcher accepted the root.
	LayoutUnknown Layout = "unknown"
)

// Splits lists the split names probed by the format1 and format2 matchers.
var Splits = []string{"train", "val", "test"}

// ErrUnknownLayout is returned when a root matches no known layout.
var ErrUnknownLayout = errors.New("unknown dataset layout")

// StructureError reports a dataset root whose layout could not be determined.
type StructureError struct {
	Root   string
	Reason string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("dataset %s: %s (expected format1, format2, standard or mixed layout)", e.Root, e.Reason)
}

// Unwrap allows errors.Is(err, ErrUnknownLayout).
func (e *StructureError) Unwrap() error {
	return ErrUnknownLayout
}

// SplitDir pairs an images directory with its labels directory.
// Split is empty for standard and mixed layouts.
type SplitDir struct {
	Split     string
	ImagesDir string
	LabelsDir string
}

// Matcher is a pure check of a root directory against one layout.
type Matcher struct {
	Layout Layout
	Match  func(fs afero.Fs, root string, exts ExtSet) bool
}

// DefaultMatchers returns the matchers in evaluation order. The first match wins,
// so nested layouts resolve to the most specific convention.
func DefaultMatchers() []Matcher {
	return []Matcher{
		{Layout: LayoutFormat1, Match: matchFormat1},
		{Layout: LayoutFormat2, Match: matchFormat2},
		{Layout: LayoutStandard, Match: matchStandard},
		{Layout: LayoutMixed, Match: matchMixed},
	}
}

func matchFormat1(fs afero.Fs, root string, _ ExtSet) bool {
	for _, split := range Splits {
		if fsutil.IsDir(fs, filepath.Join(root, split, "images")) &&
			fsutil.IsDir(fs, filepath.Join(root, split, "labels")) {
			return true
		}
	}
	return false
}

func matchFormat2(fs afero.Fs, root string, _ ExtSet) bool {
	for _, split := range Splits {
		if fsutil.IsDir(fs, filepath.Join(root, "images", split)) &&
			fsutil.IsDir(fs, filepath.Join(root, "labels", split)) {
			return true
		}
	}
	return false
}

func matchStandard(fs afero.Fs, root string, _ ExtSet) bool {
	return fsutil.IsDir(fs, filepath.Join(root, "images")) &&
		fsutil.IsDir(fs, filepath.Join(root, "labels"))
}

func matchMixed(fs afero.Fs, root string, exts ExtSet) bool {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return false
	}
	var hasImage, hasLabel bool
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch {
		case exts.Has(e.Name()):
			hasImage = true
		case IsLabelFileName(e.Name()):
			hasLabel = true
		}
		if hasImage && hasLabel {
			return true
		}
	}
	return false
}

// ExtSet is a case-insensitive set of file extensions in priority order.
type ExtSet struct {
	order []string
	set   map[string]bool
}

// NewExtSet builds an ExtSet. Extensions are lowercased and dotted.
func NewExtSet(exts []string) ExtSet {
	s := ExtSet{set: make(map[string]bool, len(exts))}
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if !s.set[e] {
			s.set[e] = true
			s.order = append(s.order, e)
		}
	}
	return s
}

// Has reports whether name carries one of the extensions.
func (s ExtSet) Has(name string) bool {
	return s.set[strings.ToLower(path.Ext(name))]
}

// Rank returns the priority of name's extension, or -1.
func (s ExtSet) Rank(name string) int {
	ext := strings.ToLower(path.Ext(name))
	for i, e := range s.order {
		if e == ext {
			return i
		}
	}
	return -1
}

// rosterNames are the flat-text roster filenames, never label files.
var rosterNames = map[string]bool{
	"classes.txt": true,
	"obj.names":   true,
	"names.txt":   true,
}

// IsRosterFileName reports whether name is a roster or dataset config file.
func IsRosterFileName(name string) bool {
	lower := strings.ToLower(name)
	if rosterNames[lower] {
		return true
	}
	ext := path.Ext(lower)
	return ext == ".yaml" || ext == ".yml"
}

// IsLabelFileName reports whether name is a YOLO label file.
func IsLabelFileName(name string) bool {
	return strings.EqualFold(path.Ext(name), ".txt") && !IsRosterFileName(name)
}

// Stem strips the extension from a file name.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Options configures a Detector.
type Options struct {
	ImageExtensions []string
	IndexCacheSize  int
	Matchers        []Matcher
}

// Detector classifies dataset roots.
type Detector struct {
	fs        afero.Fs
	exts      ExtSet
	matchers  []Matcher
	cacheSize int
	log       *logger.Logger
}

// NewDetector creates a Detector. Zero options fall back to the built-in
// extension list and matcher order.
func NewDetector(fs afero.Fs, opts Options, log *logger.Logger) *Detector {
	if log == nil {
		log = logger.NewDefault()
	}
	exts := opts.ImageExtensions
	if len(exts) == 0 {
		exts = config.DefaultImageExtensions
	}
	matchers := opts.Matchers
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	size := opts.IndexCacheSize
	if size <= 0 {
		size = 256
	}
	return &Detector{
		fs:        fs,
		exts:      NewExtSet(exts),
		matchers:  matchers,
		cacheSize: size,
		log:       log,
	}
}

// Classify runs the matchers against root and returns the first accepted layout.
func (d *Detector) Classify(root string) Layout {
	for _, m := range d.matchers {
		if m.Match(d.fs, root, d.exts) {
			return m.Layout
		}
	}
	return LayoutUnknown
}

// Detect classifies root and enumerates its split directories.
func (d *Detector) Detect(root string) (*Dataset, error) {
	root = filepath.Clean(root)
	if !fsutil.IsDir(d.fs, root) {
		return nil, &StructureError{Root: root, Reason: "not a directory"}
	}

	layout := d.Classify(root)
	if layout == LayoutUnknown {
		return nil, &StructureError{Root: root, Reason: "no images/labels structure found"}
	}

	dirs, err := d.splitDirs(root, layout)
	if err != nil {
		return nil, err
	}

	ds, err := newDataset(d.fs, root, layout, dirs, d.exts, d.cacheSize)
	if err != nil {
		return nil, err
	}

	d.log.Debugw("Detected dataset layout",
		"dataset", root,
		"layout", layout,
		"splits", len(dirs),
	)
	return ds, nil
}

func (d *Detector) splitDirs(root string, layout Layout) ([]SplitDir, error) {
	switch layout {
	case LayoutFormat1:
		var dirs []SplitDir
		for _, split := range Splits {
			images := filepath.Join(root, split, "images")
			labels := filepath.Join(root, split, "labels")
			if fsutil.IsDir(d.fs, images) || fsutil.IsDir(d.fs, labels) {
				dirs = append(dirs, SplitDir{Split: split, ImagesDir: images, LabelsDir: labels})
			}
		}
		return dirs, nil

	case LayoutFormat2:
		names := map[string]bool{}
		for _, parent := range []string{"images", "labels"} {
			entries, err := afero.ReadDir(d.fs, filepath.Join(root, parent))
			if err != nil {
				continue
			}
			for _, e := range entries {
				if e.IsDir() {
					names[e.Name()] = true
				}
			}
		}
		splits := make([]string, 0, len(names))
		for name := range names {
			splits = append(splits, name)
		}
		sort.Strings(splits)

		dirs := make([]SplitDir, 0, len(splits))
		for _, split := range splits {
			dirs = append(dirs, SplitDir{
				Split:     split,
				ImagesDir: filepath.Join(root, "images", split),
				LabelsDir: filepath.Join(root, "labels", split),
			})
		}
		return dirs, nil

	case LayoutStandard:
		return []SplitDir{{
			ImagesDir: filepath.Join(root, "images"),
			LabelsDir: filepath.Join(root, "labels"),
		}}, nil

	case LayoutMixed:
		return []SplitDir{{ImagesDir: root, LabelsDir: root}}, nil
	}

	return nil, &StructureError{Root: root, Reason: fmt.Sprintf("unsupported layout %q", layout)}
}
