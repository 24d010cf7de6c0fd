package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/yoloctl/internal/logger"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for p, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
	}
}

func newTestDetector(fs afero.Fs) *Detector {
	return NewDetector(fs, Options{}, logger.NewNop())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		dirs  []string
		want  Layout
	}{
		{
			name: "format1",
			dirs: []string{"/ds/train/images", "/ds/train/labels", "/ds/val/images"},
			want: LayoutFormat1,
		},
		{
			name: "format2",
			dirs: []string{"/ds/images/train", "/ds/labels/train"},
			want: LayoutFormat2,
		},
		{
			name: "standard",
			dirs: []string{"/ds/images", "/ds/labels"},
			want: LayoutStandard,
		},
		{
			name: "format2 wins over standard",
			dirs: []string{"/ds/images/val", "/ds/labels/val"},
			want: LayoutFormat2,
		},
		{
			name: "format1 wins over nested standard",
			dirs: []string{"/ds/images", "/ds/labels", "/ds/test/images", "/ds/test/labels"},
			want: LayoutFormat1,
		},
		{
			name:  "mixed",
			files: map[string]string{"/ds/a.JPG": "", "/ds/a.txt": "0 .5 .5 .1 .1"},
			want:  LayoutMixed,
		},
		{
			name:  "roster alone is not mixed",
			files: map[string]string{"/ds/a.jpg": "", "/ds/classes.txt": "cat"},
			want:  LayoutUnknown,
		},
		{
			name:  "labels only is unknown",
			files: map[string]string{"/ds/a.txt": "0 .5 .5 .1 .1"},
			want:  LayoutUnknown,
		},
		{
			name: "half a split is unknown",
			dirs: []string{"/ds/train/images"},
			want: LayoutUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, fs.MkdirAll("/ds", 0o755))
			for _, d := range tt.dirs {
				require.NoError(t, fs.MkdirAll(d, 0o755))
			}
			writeFiles(t, fs, tt.files)

			assert.Equal(t, tt.want, newTestDetector(fs).Classify("/ds"))
		})
	}
}

func TestMatchersAreIndependent(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/ds/images/train", 0o755))
	require.NoError(t, fs.MkdirAll("/ds/labels/train", 0o755))

	exts := NewExtSet([]string{".jpg"})
	assert.False(t, matchFormat1(fs, "/ds", exts))
	assert.True(t, matchFormat2(fs, "/ds", exts))
	assert.True(t, matchStandard(fs, "/ds", exts))
	assert.False(t, matchMixed(fs, "/ds", exts))
}

func TestDetectUnknownLayout(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0o755))

	_, err := newTestDetector(fs).Detect("/empty")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownLayout))

	var se *StructureError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "/empty", se.Root)

	_, err = newTestDetector(fs).Detect("/missing")
	assert.True(t, errors.Is(err, ErrUnknownLayout))
}

func TestDetectSplitDirs(t *testing.T) {
	t.Run("format1 enumerates present splits", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		for _, d := range []string{"/ds/train/images", "/ds/train/labels", "/ds/test/labels"} {
			require.NoError(t, fs.MkdirAll(d, 0o755))
		}
		ds, err := newTestDetector(fs).Detect("/ds")
		require.NoError(t, err)
		assert.Equal(t, LayoutFormat1, ds.Layout)
		assert.Equal(t, []SplitDir{
			{Split: "train", ImagesDir: "/ds/train/images", LabelsDir: "/ds/train/labels"},
			{Split: "test", ImagesDir: "/ds/test/images", LabelsDir: "/ds/test/labels"},
		}, ds.Dirs)
	})

	t.Run("format2 enumerates every subdirectory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		for _, d := range []string{"/ds/images/train", "/ds/labels/train", "/ds/labels/extra"} {
			require.NoError(t, fs.MkdirAll(d, 0o755))
		}
		ds, err := newTestDetector(fs).Detect("/ds")
		require.NoError(t, err)
		assert.Equal(t, []SplitDir{
			{Split: "extra", ImagesDir: "/ds/images/extra", LabelsDir: "/ds/labels/extra"},
			{Split: "train", ImagesDir: "/ds/images/train", LabelsDir: "/ds/labels/train"},
		}, ds.Dirs)
	})

	t.Run("mixed uses the root for both", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFiles(t, fs, map[string]string{"/ds/a.png": "", "/ds/a.txt": ""})
		ds, err := newTestDetector(fs).Detect("/ds/")
		require.NoError(t, err)
		assert.Equal(t, []SplitDir{{ImagesDir: "/ds", LabelsDir: "/ds"}}, ds.Dirs)
	})
}

func TestLabelFilesExcludeRosters(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ds/b.txt":        "1 .5 .5 .1 .1",
		"/ds/a.txt":        "0 .5 .5 .1 .1",
		"/ds/a.jpg":        "",
		"/ds/b.webp":       "",
		"/ds/classes.txt":  "cat\ndog",
		"/ds/names.txt":    "cat\ndog",
		"/ds/obj.names":    "cat\ndog",
		"/ds/data.yaml":    "names: [cat, dog]",
		"/ds/notes.yml":    "x: 1",
		"/ds/readme.md":    "",
		"/ds/sub/c.txt":    "0 .1 .1 .1 .1",
		"/ds/CLASSES.TXT":  "cat",
		"/ds/upper.TXT":    "0 .1 .1 .1 .1",
		"/ds/image.backup": "",
	})

	ds, err := newTestDetector(fs).Detect("/ds")
	require.NoError(t, err)
	require.Equal(t, LayoutMixed, ds.Layout)

	labels, err := ds.LabelFiles("/ds")
	require.NoError(t, err)
	assert.Equal(t, []string{"/ds/a.txt", "/ds/b.txt", "/ds/upper.TXT"}, labels)

	images, err := ds.ImageFiles("/ds")
	require.NoError(t, err)
	assert.Equal(t, []string{"/ds/a.jpg", "/ds/b.webp"}, images)

	missing, err := ds.LabelFiles("/ds/nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestIsRosterFileName(t *testing.T) {
	for name, want := range map[string]bool{
		"classes.txt":  true,
		"obj.names":    true,
		"names.txt":    true,
		"data.yaml":    true,
		"dataset.yml":  true,
		"img_001.txt":  false,
		"classes.json": false,
	} {
		assert.Equal(t, want, IsRosterFileName(name), name)
	}
}

func TestPairedImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ds/images/a.png":  "",
		"/ds/images/a.jpg":  "",
		"/ds/images/b.JPEG": "",
		"/ds/labels/a.txt":  "0 .5 .5 .1 .1",
	})

	ds, err := newTestDetector(fs).Detect("/ds")
	require.NoError(t, err)

	p, ok := ds.PairedImage("/ds/images", "a")
	require.True(t, ok)
	assert.Equal(t, "/ds/images/a.jpg", p, ".jpg ranks ahead of .png")

	p, ok = ds.PairedImage("/ds/images", "b")
	require.True(t, ok)
	assert.Equal(t, "/ds/images/b.JPEG", p)

	_, ok = ds.PairedImage("/ds/images", "zzz")
	assert.False(t, ok)

	require.NoError(t, ds.RemoveImage("/ds/images/a.jpg"))
	p, ok = ds.PairedImage("/ds/images", "a")
	require.True(t, ok)
	assert.Equal(t, "/ds/images/a.png", p, "removed image dropped from the index")

	lbl, ok := ds.PairedLabel("/ds/labels", "/ds/images/a.png")
	assert.True(t, ok)
	assert.Equal(t, "/ds/labels/a.txt", lbl)
	_, ok = ds.PairedLabel("/ds/labels", "/ds/images/b.JPEG")
	assert.False(t, ok)
}

func TestPairedImagesAllExtensions(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ds/images/x.png":  "",
		"/ds/images/x.jpg":  "",
		"/ds/images/x.webp": "",
		"/ds/labels/x.txt":  "0 .5 .5 .1 .1",
	})

	ds, err := newTestDetector(fs).Detect("/ds")
	require.NoError(t, err)

	images := ds.PairedImages("/ds/images", "x")
	require.Len(t, images, 3)
	assert.Equal(t, "/ds/images/x.jpg", images[0])

	for _, p := range images {
		require.NoError(t, ds.RemoveImage(p))
	}
	assert.Empty(t, ds.PairedImages("/ds/images", "x"))
	_, ok := ds.PairedImage("/ds/images", "x")
	assert.False(t, ok)
}

// openCounter counts directory opens so index reuse can be asserted.
type openCounter struct {
	afero.Fs
	opens map[string]int
}

func (c *openCounter) Open(name string) (afero.File, error) {
	c.opens[name]++
	return c.Fs.Open(name)
}

func TestRemoveImageKeepsIndex(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 50; i++ {
		stem := fmt.Sprintf("img_%03d", i)
		files["/ds/images/"+stem+".jpg"] = ""
		files["/ds/labels/"+stem+".txt"] = "0 .5 .5 .1 .1"
	}
	mem := afero.NewMemMapFs()
	writeFiles(t, mem, files)
	fs := &openCounter{Fs: mem, opens: map[string]int{}}

	ds, err := newTestDetector(fs).Detect("/ds")
	require.NoError(t, err)
	fs.opens = map[string]int{}

	for i := 0; i < 50; i++ {
		p, ok := ds.PairedImage("/ds/images", fmt.Sprintf("img_%03d", i))
		require.True(t, ok)
		require.NoError(t, ds.RemoveImage(p))
	}

	assert.Equal(t, 1, fs.opens["/ds/images"], "images directory listed once")
	exists, err := afero.Exists(mem, "/ds/images/img_000.jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAllFilesAndRel(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/ds/train/images/a.jpg": "",
		"/ds/train/labels/a.txt": "0 .5 .5 .1 .1",
		"/ds/val/images/b.jpg":   "",
		"/ds/val/labels/b.txt":   "1 .5 .5 .1 .1",
		"/ds/val/labels/c.txt":   "",
	})

	ds, err := newTestDetector(fs).Detect("/ds")
	require.NoError(t, err)

	labels := ds.AllLabelFiles(nil)
	require.Len(t, labels, 3)
	assert.Equal(t, "train", labels[0].Split)
	assert.Equal(t, "/ds/val/images", labels[2].ImagesDir)

	images := ds.AllImageFiles(nil)
	require.Len(t, images, 2)
	assert.Equal(t, "val/images/b.jpg", ds.Rel(images[1].Path))
	assert.Equal(t, []string{"/ds/train/labels", "/ds/val/labels"}, ds.LabelDirs())
}
