// Package backup snapshots a dataset's label files before destructive edits
// and manages retention of those snapshots.
//
// Backups live next to the dataset root as
// {root}_labels_backup_{YYYYMMDD_HHMMSS}. Only label files are copied;
// images and roster files are never part of a backup.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/fsutil"
	"github.com/dbsmedya/yoloctl/internal/logger"
)

// TimestampLayout is the time format embedded in backup directory names.
const TimestampLayout = "20060102_150405"

// Marker separates the dataset name from the timestamp.
const Marker = "_labels_backup_"

// Entry is one backup directory.
type Entry struct {
	Path      string
	Timestamp time.Time
}

// Stats describes a completed snapshot.
type Stats struct {
	Path     string
	Files    int
	Duration time.Duration
}

// Manager creates, lists, prunes and restores backups.
type Manager struct {
	fs  afero.Fs
	log *logger.Logger

	// Now is the clock used for backup names.
	Now func() time.Time
}

// NewManager creates a Manager.
func NewManager(fs afero.Fs, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Manager{fs: fs, log: log, Now: time.Now}
}

// DirName returns the backup directory path for root at t.
func DirName(root string, t time.Time) string {
	return filepath.Clean(root) + Marker + t.Format(TimestampLayout)
}

// Snapshot copies every label file of ds into a fresh backup directory,
// preserving paths relative to the root. Any failure aborts the snapshot:
// a mutation must not start without a complete backup.
func (m *Manager) Snapshot(ctx context.Context, ds *dataset.Dataset) (*Stats, error) {
	start := time.Now()
	dest := DirName(ds.Root, m.Now())

	if ok, _ := afero.Exists(m.fs, dest); ok {
		m.log.Warnw("Replacing existing backup directory", "path", dest)
		if err := m.fs.RemoveAll(dest); err != nil {
			return nil, fmt.Errorf("remove existing backup %s: %w", dest, err)
		}
	}
	if err := m.fs.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	var listErr error
	refs := ds.AllLabelFiles(func(dir string, err error) {
		if listErr == nil {
			listErr = fmt.Errorf("list %s: %w", dir, err)
		}
	})
	if listErr != nil {
		return nil, listErr
	}

	stats := &Stats{Path: dest}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(ds.Root, ref.Path)
		if err != nil {
			return nil, err
		}
		if err := fsutil.CopyFile(m.fs, ref.Path, filepath.Join(dest, rel)); err != nil {
			return nil, fmt.Errorf("backup %s: %w", rel, err)
		}
		stats.Files++
	}
	stats.Duration = time.Since(start)

	m.log.Infow("Backed up label files",
		"path", dest,
		"files", stats.Files,
		"duration", stats.Duration,
	)
	return stats, nil
}

func pattern(root string) *regexp.Regexp {
	base := filepath.Base(filepath.Clean(root))
	return regexp.MustCompile("^" + regexp.QuoteMeta(base+Marker) + `(\d{8}_\d{6})$`)
}

// List returns the backups of root, newest first.
func (m *Manager) List(root string) ([]Entry, error) {
	root = filepath.Clean(root)
	parent := filepath.Dir(root)
	re := pattern(root)

	infos, err := afero.ReadDir(m.fs, parent)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", parent, err)
	}

	var entries []Entry
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		match := re.FindStringSubmatch(info.Name())
		if match == nil {
			continue
		}
		ts, err := time.ParseInLocation(TimestampLayout, match[1], time.Local)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Path: filepath.Join(parent, info.Name()), Timestamp: ts})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Prune keeps the newest keep backups of root and removes the rest. With
// dryRun nothing is deleted. The returned entries are the removal set.
func (m *Manager) Prune(root string, keep int, dryRun bool) ([]Entry, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count cannot be negative: %d", keep)
	}
	entries, err := m.List(root)
	if err != nil {
		return nil, err
	}
	if len(entries) <= keep {
		return nil, nil
	}

	stale := entries[keep:]
	for _, e := range stale {
		if dryRun {
			m.log.Infow("Would remove backup", "path", e.Path)
			continue
		}
		if err := m.fs.RemoveAll(e.Path); err != nil {
			return nil, fmt.Errorf("remove backup %s: %w", e.Path, err)
		}
		m.log.Infow("Removed backup", "path", e.Path)
	}
	return stale, nil
}

// Restore copies the label files of a backup back into ds, overwriting the
// current versions. Label files created after the backup are left alone.
func (m *Manager) Restore(ctx context.Context, ds *dataset.Dataset, backupPath string, dryRun bool) (int, error) {
	info, err := m.fs.Stat(backupPath)
	if err != nil {
		return 0, fmt.Errorf("backup %s: %w", backupPath, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("backup %s is not a directory", backupPath)
	}

	restored := 0
	err = afero.Walk(m.fs, backupPath, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if fi.IsDir() || !dataset.IsLabelFileName(fi.Name()) {
			return nil
		}
		rel, err := filepath.Rel(backupPath, p)
		if err != nil {
			return err
		}
		restored++
		if dryRun {
			return nil
		}
		if err := fsutil.CopyFile(m.fs, p, filepath.Join(ds.Root, rel)); err != nil {
			return fmt.Errorf("restore %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return restored, err
	}

	m.log.Infow("Restored label files from backup",
		"backup", backupPath,
		"files", restored,
		"dry_run", dryRun,
	)
	return restored, nil
}
