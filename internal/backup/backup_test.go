package backup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/logger"
)

func setup(t *testing.T) (afero.Fs, *dataset.Dataset) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, content := range map[string]string{
		"/data/coco/train/images/a.jpg": "img",
		"/data/coco/train/labels/a.txt": "0 .5 .5 .2 .2\n",
		"/data/coco/val/images/b.jpg":   "img",
		"/data/coco/val/labels/b.txt":   "1 .1 .1 .1 .1\n",
		"/data/coco/classes.txt":        "a\nb\n",
	} {
		require.NoError(t, fs.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
	}
	ds, err := dataset.NewDetector(fs, dataset.Options{}, logger.NewNop()).Detect("/data/coco")
	require.NoError(t, err)
	return fs, ds
}

func fixedClock(ts string) func() time.Time {
	return func() time.Time {
		t, _ := time.ParseInLocation(TimestampLayout, ts, time.Local)
		return t
	}
}

func TestDirName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	assert.Equal(t, "/data/coco_labels_backup_20240309_140507", DirName("/data/coco/", ts))
}

func TestSnapshot(t *testing.T) {
	fs, ds := setup(t)
	m := NewManager(fs, logger.NewNop())
	m.Now = fixedClock("20240101_120000")

	stats, err := m.Snapshot(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, "/data/coco_labels_backup_20240101_120000", stats.Path)
	assert.Equal(t, 2, stats.Files)

	got, err := afero.ReadFile(fs, filepath.Join(stats.Path, "train/labels/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0 .5 .5 .2 .2\n", string(got))

	ok, _ := afero.Exists(fs, filepath.Join(stats.Path, "val/labels/b.txt"))
	assert.True(t, ok)

	// Images and rosters are not copied
	ok, _ = afero.Exists(fs, filepath.Join(stats.Path, "train/images/a.jpg"))
	assert.False(t, ok)
	ok, _ = afero.Exists(fs, filepath.Join(stats.Path, "classes.txt"))
	assert.False(t, ok)
}

func TestSnapshotReplacesSameTimestamp(t *testing.T) {
	fs, ds := setup(t)
	m := NewManager(fs, logger.NewNop())
	m.Now = fixedClock("20240101_120000")

	stale := "/data/coco_labels_backup_20240101_120000/stale.txt"
	require.NoError(t, fs.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, afero.WriteFile(fs, stale, []byte("x"), 0o644))

	_, err := m.Snapshot(context.Background(), ds)
	require.NoError(t, err)

	ok, _ := afero.Exists(fs, stale)
	assert.False(t, ok)
}

func TestSnapshotFailsOnReadOnlyFs(t *testing.T) {
	fs, ds := setup(t)
	m := NewManager(afero.NewReadOnlyFs(fs), logger.NewNop())

	_, err := m.Snapshot(context.Background(), ds)
	assert.Error(t, err)
}

func TestListAndPrune(t *testing.T) {
	fs, _ := setup(t)
	m := NewManager(fs, logger.NewNop())

	for _, name := range []string{
		"coco_labels_backup_20240101_120000",
		"coco_labels_backup_20240103_090000",
		"coco_labels_backup_20240102_235959",
		"coco_labels_backup_20240104_000000",
		"coco_labels_backup_bogus",
		"coco2_labels_backup_20240105_000000",
		"other_labels_backup_20240105_000000",
	} {
		require.NoError(t, fs.MkdirAll(filepath.Join("/data", name), 0o755))
	}
	require.NoError(t, afero.WriteFile(fs, "/data/coco_labels_backup_20240106_000000", []byte("file"), 0o644))

	entries, err := m.List("/data/coco")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "/data/coco_labels_backup_20240104_000000", entries[0].Path)
	assert.Equal(t, "/data/coco_labels_backup_20240101_120000", entries[3].Path)

	// Dry run reports without deleting
	removed, err := m.Prune("/data/coco", 2, true)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.Equal(t, "/data/coco_labels_backup_20240102_235959", removed[0].Path)
	entries, _ = m.List("/data/coco")
	assert.Len(t, entries, 4)

	removed, err = m.Prune("/data/coco", 2, false)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	entries, _ = m.List("/data/coco")
	require.Len(t, entries, 2)
	assert.Equal(t, "/data/coco_labels_backup_20240103_090000", entries[1].Path)

	// Other datasets untouched
	ok, _ := afero.DirExists(fs, "/data/coco2_labels_backup_20240105_000000")
	assert.True(t, ok)

	removed, err = m.Prune("/data/coco", 10, false)
	require.NoError(t, err)
	assert.Empty(t, removed)

	_, err = m.Prune("/data/coco", -1, false)
	assert.Error(t, err)
}

func TestRestore(t *testing.T) {
	fs, ds := setup(t)
	m := NewManager(fs, logger.NewNop())
	m.Now = fixedClock("20240101_120000")

	stats, err := m.Snapshot(context.Background(), ds)
	require.NoError(t, err)

	// Simulate an interrupted mutation
	require.NoError(t, afero.WriteFile(fs, "/data/coco/train/labels/a.txt", []byte("9 .5 .5 .2 .2\n"), 0o644))
	require.NoError(t, fs.Remove("/data/coco/val/labels/b.txt"))

	n, err := m.Restore(context.Background(), ds, stats.Path, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	got, _ := afero.ReadFile(fs, "/data/coco/train/labels/a.txt")
	assert.Equal(t, "9 .5 .5 .2 .2\n", string(got), "dry run must not write")

	n, err = m.Restore(context.Background(), ds, stats.Path, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, _ = afero.ReadFile(fs, "/data/coco/train/labels/a.txt")
	assert.Equal(t, "0 .5 .5 .2 .2\n", string(got))
	got, _ = afero.ReadFile(fs, "/data/coco/val/labels/b.txt")
	assert.Equal(t, "1 .1 .1 .1 .1\n", string(got))

	_, err = m.Restore(context.Background(), ds, "/data/nowhere", false)
	assert.Error(t, err)
}
