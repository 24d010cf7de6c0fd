package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// Dataset is a detected dataset root with its split directories.
type Dataset struct {
	Root   string
	Layout Layout
	Dirs   []SplitDir

	fs    afero.Fs
	exts  ExtSet
	index *lru.Cache[string, map[string][]string]
}

// LabelRef locates one label file and the images directory it pairs with.
type LabelRef struct {
	Split     string
	Path      string
	ImagesDir string
}

// ImageRef locates one image file and the labels directory it pairs with.
type ImageRef struct {
	Split     string
	Path      string
	LabelsDir string
}

func newDataset(fs afero.Fs, root string, layout Layout, dirs []SplitDir, exts ExtSet, cacheSize int) (*Dataset, error) {
	index, err := lru.New[string, map[string][]string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create image index cache: %w", err)
	}
	return &Dataset{
		Root:   root,
		Layout: layout,
		Dirs:   dirs,
		fs:     fs,
		exts:   exts,
		index:  index,
	}, nil
}

// Fs returns the filesystem the dataset was detected on.
func (ds *Dataset) Fs() afero.Fs {
	return ds.fs
}

// IsImage reports whether name has a recognized image extension.
func (ds *Dataset) IsImage(name string) bool {
	return ds.exts.Has(name)
}

// Rel returns p relative to the dataset root using forward slashes.
func (ds *Dataset) Rel(p string) string {
	rel, err := filepath.Rel(ds.Root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// LabelDirs returns the distinct label directories in split order.
func (ds *Dataset) LabelDirs() []string {
	seen := make(map[string]bool, len(ds.Dirs))
	var out []string
	for _, d := range ds.Dirs {
		if !seen[d.LabelsDir] {
			seen[d.LabelsDir] = true
			out = append(out, d.LabelsDir)
		}
	}
	return out
}

// LabelFiles lists the label files in dir, sorted. Roster files are excluded.
// A missing directory yields no files.
func (ds *Dataset) LabelFiles(dir string) ([]string, error) {
	return ds.listFiles(dir, IsLabelFileName)
}

// ImageFiles lists the image files in dir, sorted.
func (ds *Dataset) ImageFiles(dir string) ([]string, error) {
	return ds.listFiles(dir, ds.exts.Has)
}

func (ds *Dataset) listFiles(dir string, keep func(string) bool) ([]string, error) {
	entries, err := afero.ReadDir(ds.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !keep(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// AllLabelFiles walks every split and returns its label files.
// Directories that cannot be listed are reported through onErr and skipped.
func (ds *Dataset) AllLabelFiles(onErr func(dir string, err error)) []LabelRef {
	var refs []LabelRef
	seen := map[string]bool{}
	for _, d := range ds.Dirs {
		if seen[d.LabelsDir] {
			continue
		}
		seen[d.LabelsDir] = true

		files, err := ds.LabelFiles(d.LabelsDir)
		if err != nil {
			if onErr != nil {
				onErr(d.LabelsDir, err)
			}
			continue
		}
		for _, f := range files {
			refs = append(refs, LabelRef{Split: d.Split, Path: f, ImagesDir: d.ImagesDir})
		}
	}
	return refs
}

// AllImageFiles walks every split and returns its image files.
func (ds *Dataset) AllImageFiles(onErr func(dir string, err error)) []ImageRef {
	var refs []ImageRef
	seen := map[string]bool{}
	for _, d := range ds.Dirs {
		if seen[d.ImagesDir] {
			continue
		}
		seen[d.ImagesDir] = true

		files, err := ds.ImageFiles(d.ImagesDir)
		if err != nil {
			if onErr != nil {
				onErr(d.ImagesDir, err)
			}
			continue
		}
		for _, f := range files {
			refs = append(refs, ImageRef{Split: d.Split, Path: f, LabelsDir: d.LabelsDir})
		}
	}
	return refs
}

// PairedImage finds the image in imagesDir sharing stem with a label file.
// When several extensions exist for one stem, the earliest configured one wins.
func (ds *Dataset) PairedImage(imagesDir, stem string) (string, bool) {
	images := ds.PairedImages(imagesDir, stem)
	if len(images) == 0 {
		return "", false
	}
	return images[0], true
}

// PairedImages returns every image in imagesDir sharing stem, in extension
// priority order.
func (ds *Dataset) PairedImages(imagesDir, stem string) []string {
	idx, ok := ds.index.Get(imagesDir)
	if !ok {
		idx = ds.buildIndex(imagesDir)
		ds.index.Add(imagesDir, idx)
	}
	return idx[stem]
}

func (ds *Dataset) buildIndex(imagesDir string) map[string][]string {
	idx := map[string][]string{}
	files, err := ds.ImageFiles(imagesDir)
	if err != nil {
		return idx
	}
	for _, f := range files {
		stem := Stem(f)
		idx[stem] = append(idx[stem], f)
	}
	for _, images := range idx {
		sort.SliceStable(images, func(a, b int) bool {
			return ds.exts.Rank(images[a]) < ds.exts.Rank(images[b])
		})
	}
	return idx
}

// PairedLabel returns the label path for an image and whether it exists.
func (ds *Dataset) PairedLabel(labelsDir, imagePath string) (string, bool) {
	p := filepath.Join(labelsDir, Stem(imagePath)+".txt")
	info, err := ds.fs.Stat(p)
	return p, err == nil && !info.IsDir()
}

// RemoveImage deletes an image and drops it from the pairing index.
func (ds *Dataset) RemoveImage(p string) error {
	if err := ds.fs.Remove(p); err != nil {
		return err
	}
	if idx, ok := ds.index.Peek(filepath.Dir(p)); ok {
		stem := Stem(p)
		var kept []string
		for _, image := range idx[stem] {
			if image != p {
				kept = append(kept, image)
			}
		}
		if len(kept) == 0 {
			delete(idx, stem)
		} else {
			idx[stem] = kept
		}
	}
	return nil
}
