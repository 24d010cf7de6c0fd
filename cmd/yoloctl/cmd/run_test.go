package cmd

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/yoloctl/internal/lock"
)

// testEnv points the commands at an in-memory dataset rooted at /ds.
func testEnv(t *testing.T, files map[string]string) (afero.Fs, *bytes.Buffer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for p, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
	}

	originalFs, originalDataset, originalLevel := appFs, datasetPath, logLevel
	originalInput := inputReader
	appFs, datasetPath, logLevel = fs, "/ds", "error"
	t.Cleanup(func() {
		appFs, datasetPath, logLevel = originalFs, originalDataset, originalLevel
		mutateExecute, mutateYes = false, false
		deleteIDs, deleteMinSamples, deleteMinPercentage = nil, 0, 0
		reindexToFile, reindexToClasses, reindexAllowDrop, reindexRequireSameSet = "", nil, false, false
		renamePairs = nil
		splitOut, splitDryRun, splitFormat = "", false, ""
		backupExecute = false
		inputReader = originalInput
	})
	return fs, captureOutput(t)
}

func readFile(t *testing.T, fs afero.Fs, p string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, p)
	require.NoError(t, err)
	return string(data)
}

func smallDataset() map[string]string {
	return map[string]string{
		"/ds/classes.txt":        "car\nbike\nbus\n",
		"/ds/train/images/x.jpg": "img",
		"/ds/train/labels/x.txt": "0 0.5 0.5 0.2 0.2\n2 0.4 0.4 0.1 0.1\n",
		"/ds/train/images/y.jpg": "img",
		"/ds/train/labels/y.txt": "1 0.1 0.1 0.1 0.1\n",
		"/ds/val/images/z.jpg":   "img",
		"/ds/val/labels/z.txt":   "2 0.3 0.3 0.1 0.1\n",
	}
}

func TestRunInfo(t *testing.T) {
	_, out := testEnv(t, smallDataset())

	require.NoError(t, runInfo(infoCmd, nil))

	s := out.String()
	assert.Contains(t, s, "Layout:       format1")
	assert.Contains(t, s, "/ds/classes.txt (3 categories)")
	assert.Contains(t, s, "Annotations:  4")
	assert.Contains(t, s, "[Category Distribution]")
	assert.Contains(t, s, "bus")
	assert.Contains(t, s, "[Splits]")
}

func TestRunDeletePreviewWritesNothing(t *testing.T) {
	fs, out := testEnv(t, smallDataset())
	deleteIDs = []int{1}

	require.NoError(t, runDelete(deleteCmd, nil))

	assert.Contains(t, out.String(), "Preview only")
	assert.Equal(t, "car\nbike\nbus\n", readFile(t, fs, "/ds/classes.txt"))
	assert.Equal(t, "1 0.1 0.1 0.1 0.1\n", readFile(t, fs, "/ds/train/labels/y.txt"))
	exists, _ := afero.Exists(fs, "/ds/"+lock.FileName)
	assert.False(t, exists)
}

func TestRunDeleteExecute(t *testing.T) {
	fs, out := testEnv(t, smallDataset())
	deleteIDs = []int{1}
	mutateExecute, mutateYes = true, true

	require.NoError(t, runDelete(deleteCmd, nil))

	assert.Equal(t, "car\nbus\n", readFile(t, fs, "/ds/classes.txt"))
	assert.Equal(t, "0 0.5 0.5 0.2 0.2\n1 0.4 0.4 0.1 0.1\n", readFile(t, fs, "/ds/train/labels/x.txt"))
	assert.Equal(t, "", readFile(t, fs, "/ds/train/labels/y.txt"))
	assert.Equal(t, "1 0.3 0.3 0.1 0.1\n", readFile(t, fs, "/ds/val/labels/z.txt"))

	s := out.String()
	assert.Contains(t, s, "=== Delete Complete ===")
	assert.Contains(t, s, "PASSED")

	// A backup sits next to the dataset and the lock is gone.
	entries, err := afero.ReadDir(fs, "/")
	require.NoError(t, err)
	backups := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "ds_labels_backup_") {
			backups++
			assert.Equal(t, "1 0.1 0.1 0.1 0.1\n",
				readFile(t, fs, filepath.Join("/", e.Name(), "train/labels/y.txt")))
		}
	}
	assert.Equal(t, 1, backups)
	exists, _ := afero.Exists(fs, "/ds/"+lock.FileName)
	assert.False(t, exists)
}

func TestRunDeleteToleratesUnrelatedProblems(t *testing.T) {
	files := smallDataset()
	files["/ds/train/labels/ghost.txt"] = "2 0.5 0.5 0.1 0.1\n"
	files["/ds/val/labels/z.txt"] = "2 0.3 0.3 0.1 0.1\nnot-a-label\n"
	fs, out := testEnv(t, files)
	deleteIDs = []int{1}
	mutateExecute, mutateYes = true, true

	require.NoError(t, runDelete(deleteCmd, nil))

	assert.Equal(t, "car\nbus\n", readFile(t, fs, "/ds/classes.txt"))
	assert.Equal(t, "1 0.5 0.5 0.1 0.1\n", readFile(t, fs, "/ds/train/labels/ghost.txt"))
	s := out.String()
	assert.Contains(t, s, "orphan_label")
	assert.Contains(t, s, "malformed")
	assert.Contains(t, s, "run validate for details")
}

func TestRunDeleteDeclinedConfirmation(t *testing.T) {
	fs, out := testEnv(t, smallDataset())
	deleteIDs = []int{1}
	mutateExecute = true
	inputReader = strings.NewReader("n\n")

	require.NoError(t, runDelete(deleteCmd, nil))

	assert.Contains(t, out.String(), "Aborted")
	assert.Equal(t, "car\nbike\nbus\n", readFile(t, fs, "/ds/classes.txt"))
}

func TestRunDeleteRespectsLock(t *testing.T) {
	files := smallDataset()
	files["/ds/"+lock.FileName] = "pid=1\n"
	fs, _ := testEnv(t, files)
	deleteIDs = []int{1}
	mutateExecute, mutateYes = true, true

	err := runDelete(deleteCmd, nil)
	assert.ErrorIs(t, err, lock.ErrLockHeld)
	assert.Equal(t, "car\nbike\nbus\n", readFile(t, fs, "/ds/classes.txt"))
}

func TestRunDeleteRejectsOutOfRangeID(t *testing.T) {
	fs, _ := testEnv(t, smallDataset())
	deleteIDs = []int{9}
	mutateExecute, mutateYes = true, true

	assert.Error(t, runDelete(deleteCmd, nil))
	assert.Equal(t, "car\nbike\nbus\n", readFile(t, fs, "/ds/classes.txt"))
}

func TestRunDeleteNeedsSelection(t *testing.T) {
	testEnv(t, smallDataset())
	assert.Error(t, runDelete(deleteCmd, nil))
}

func TestRunReindexFromClasses(t *testing.T) {
	fs, _ := testEnv(t, smallDataset())
	reindexToClasses = []string{"bus", "car", "bike"}
	mutateExecute, mutateYes = true, true

	require.NoError(t, runReindex(reindexCmd, nil))

	assert.Equal(t, "bus\ncar\nbike\n", readFile(t, fs, "/ds/classes.txt"))
	assert.Equal(t, "1 0.5 0.5 0.2 0.2\n0 0.4 0.4 0.1 0.1\n", readFile(t, fs, "/ds/train/labels/x.txt"))
	assert.Equal(t, "2 0.1 0.1 0.1 0.1\n", readFile(t, fs, "/ds/train/labels/y.txt"))
}

func TestRunReindexFromFileMissingCategory(t *testing.T) {
	files := smallDataset()
	files["/ref/data.yaml"] = "names: [bus, car]\n"
	fs, _ := testEnv(t, files)
	reindexToFile = "/ref/data.yaml"
	mutateExecute, mutateYes = true, true

	assert.Error(t, runReindex(reindexCmd, nil))
	assert.Equal(t, "car\nbike\nbus\n", readFile(t, fs, "/ds/classes.txt"))
}

func TestRunReindexNeedsTarget(t *testing.T) {
	testEnv(t, smallDataset())
	assert.Error(t, runReindex(reindexCmd, nil))
}

func TestRunRename(t *testing.T) {
	fs, _ := testEnv(t, smallDataset())
	renamePairs = []string{"bike:bicycle"}
	mutateExecute, mutateYes = true, true

	require.NoError(t, runRename(renameCmd, nil))

	assert.Equal(t, "car\nbicycle\nbus\n", readFile(t, fs, "/ds/classes.txt"))
	assert.Equal(t, "1 0.1 0.1 0.1 0.1\n", readFile(t, fs, "/ds/train/labels/y.txt"))
}

func TestRunCleanDeletesEmptiedPairs(t *testing.T) {
	fs, _ := testEnv(t, smallDataset())
	resetCleanFlags(t)
	cleanMinSamples = 2
	mutateExecute, mutateYes = true, true

	require.NoError(t, runClean(cleanCmd, nil))

	// car and bike have one annotation each, bus has two.
	assert.Equal(t, "bus\n", readFile(t, fs, "/ds/classes.txt"))
	assert.Equal(t, "0 0.4 0.4 0.1 0.1\n", readFile(t, fs, "/ds/train/labels/x.txt"))
	for _, p := range []string{"/ds/train/labels/y.txt", "/ds/train/images/y.jpg"} {
		exists, _ := afero.Exists(fs, p)
		assert.False(t, exists, p)
	}
}

func TestRunSplit(t *testing.T) {
	files := map[string]string{"/ds/classes.txt": "a\nb\n"}
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("/ds/images/img%02d.jpg", i)] = "img"
		files[fmt.Sprintf("/ds/labels/img%02d.txt", i)] = fmt.Sprintf("%d 0.5 0.5 0.1 0.1\n", i%2)
	}
	fs, out := testEnv(t, files)
	splitOut = "/out"

	require.NoError(t, runSplit(splitCmd, nil))

	assert.Contains(t, out.String(), "=== Split Complete ===")
	assert.Equal(t, "a\nb\n", readFile(t, fs, "/out/classes.txt"))

	total := 0
	for _, bucket := range []string{"train", "val", "test"} {
		images, err := afero.ReadDir(fs, filepath.Join("/out", bucket, "images"))
		require.NoError(t, err, bucket)
		labels, err := afero.ReadDir(fs, filepath.Join("/out", bucket, "labels"))
		require.NoError(t, err, bucket)
		assert.Equal(t, len(images), len(labels), bucket)
		total += len(images)
	}
	assert.Equal(t, 20, total)

	train, _ := afero.ReadDir(fs, "/out/train/images")
	assert.Equal(t, 16, len(train))
}

func TestRunSplitDryRun(t *testing.T) {
	fs, out := testEnv(t, smallDataset())
	splitOut = "/out"
	splitDryRun = true

	require.NoError(t, runSplit(splitCmd, nil))

	assert.Contains(t, out.String(), "Dry run")
	exists, _ := afero.Exists(fs, "/out")
	assert.False(t, exists)
}

func TestRunValidate(t *testing.T) {
	t.Run("clean dataset", func(t *testing.T) {
		_, out := testEnv(t, smallDataset())
		require.NoError(t, runValidate(validateCmd, nil))
		assert.Contains(t, out.String(), "PASSED")
	})

	t.Run("out of range id", func(t *testing.T) {
		files := smallDataset()
		files["/ds/val/labels/z.txt"] = "5 0.3 0.3 0.1 0.1\n"
		_, out := testEnv(t, files)
		assert.Error(t, runValidate(validateCmd, nil))
		assert.Contains(t, out.String(), "id_out_of_range")
	})
}

func withBackups(files map[string]string, stamps ...string) map[string]string {
	for _, ts := range stamps {
		files["/ds_labels_backup_"+ts+"/train/labels/y.txt"] = "0 0.9 0.9 0.1 0.1\n"
	}
	return files
}

func TestRunBackupList(t *testing.T) {
	_, out := testEnv(t, withBackups(smallDataset(), "20240101_120000", "20240301_120000"))

	require.NoError(t, runBackupList(backupListCmd, nil))

	s := out.String()
	newest := strings.Index(s, "ds_labels_backup_20240301_120000")
	oldest := strings.Index(s, "ds_labels_backup_20240101_120000")
	require.NotEqual(t, -1, newest)
	require.NotEqual(t, -1, oldest)
	assert.Less(t, newest, oldest)
}

func TestRunBackupPrune(t *testing.T) {
	stamps := []string{
		"20240101_000000", "20240102_000000", "20240103_000000",
		"20240104_000000", "20240105_000000", "20240106_000000",
	}

	t.Run("preview", func(t *testing.T) {
		fs, out := testEnv(t, withBackups(smallDataset(), stamps...))
		require.NoError(t, runBackupPrune(backupPruneCmd, nil))
		assert.Contains(t, out.String(), "Would remove /ds_labels_backup_20240101_000000")
		exists, _ := afero.DirExists(fs, "/ds_labels_backup_20240101_000000")
		assert.True(t, exists)
	})

	t.Run("execute", func(t *testing.T) {
		fs, _ := testEnv(t, withBackups(smallDataset(), stamps...))
		backupExecute = true
		require.NoError(t, runBackupPrune(backupPruneCmd, nil))
		exists, _ := afero.DirExists(fs, "/ds_labels_backup_20240101_000000")
		assert.False(t, exists)
		exists, _ = afero.DirExists(fs, "/ds_labels_backup_20240102_000000")
		assert.True(t, exists)
	})
}

func TestRunBackupRestore(t *testing.T) {
	fs, out := testEnv(t, withBackups(smallDataset(), "20240101_120000"))
	src := "/ds_labels_backup_20240101_120000"

	require.NoError(t, runBackupRestore(backupRestoreCmd, []string{src}))
	assert.Contains(t, out.String(), "Would restore 1 label file(s)")
	assert.Equal(t, "1 0.1 0.1 0.1 0.1\n", readFile(t, fs, "/ds/train/labels/y.txt"))

	backupExecute = true
	require.NoError(t, runBackupRestore(backupRestoreCmd, []string{src}))
	assert.Equal(t, "0 0.9 0.9 0.1 0.1\n", readFile(t, fs, "/ds/train/labels/y.txt"))
}

func TestSessionRequiresDataset(t *testing.T) {
	testEnv(t, smallDataset())
	datasetPath = ""

	_, err := newSession()
	assert.Error(t, err)
}

func TestSessionRejectsUnknownLayout(t *testing.T) {
	testEnv(t, map[string]string{"/ds/readme.md": "hi"})

	_, err := newSession()
	assert.Error(t, err)
}

func TestAcquireLockForce(t *testing.T) {
	files := smallDataset()
	files["/ds/"+lock.FileName] = "pid=1\n"
	testEnv(t, files)

	s, err := newSession()
	require.NoError(t, err)

	_, err = s.acquireLock()
	assert.ErrorIs(t, err, lock.ErrLockHeld)

	original := force
	force = true
	defer func() { force = original }()
	release, err := s.acquireLock()
	require.NoError(t, err)
	release()
}
