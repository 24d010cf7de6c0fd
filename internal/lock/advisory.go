// Package lock provides the advisory dataset lock that keeps two yoloctl
// processes from mutating the same dataset at once.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FileName is the lock file created in the dataset root.
const FileName = ".yoloctl.lock"

// ErrLockHeld is returned when another process holds the dataset lock.
var ErrLockHeld = errors.New("dataset is locked by another yoloctl process")

// DatasetLock is an advisory lock backed by a file created with O_EXCL.
// It only guards against concurrent yoloctl runs; other tools ignore it.
type DatasetLock struct {
	fs   afero.Fs
	path string
	held bool
	now  func() time.Time
}

// New creates a lock for the dataset at root. Nothing is created until
// Acquire is called.
func New(fs afero.Fs, root string) *DatasetLock {
	return &DatasetLock{
		fs:   fs,
		path: filepath.Join(filepath.Clean(root), FileName),
		now:  time.Now,
	}
}

// Acquire takes the lock. It returns an error wrapping ErrLockHeld, with the
// holder's details when readable, if the lock file already exists.
func (l *DatasetLock) Acquire() error {
	if l.held {
		return nil
	}

	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w (%s)", ErrLockHeld, l.describeHolder())
		}
		return fmt.Errorf("create lock file %s: %w", l.path, err)
	}

	info := fmt.Sprintf("pid=%d\nacquired=%s\n", os.Getpid(), l.now().Format(time.RFC3339))
	if _, err := f.WriteString(info); err != nil {
		_ = f.Close()
		_ = l.fs.Remove(l.path)
		return fmt.Errorf("write lock file %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		_ = l.fs.Remove(l.path)
		return fmt.Errorf("close lock file %s: %w", l.path, err)
	}

	l.held = true
	return nil
}

func (l *DatasetLock) describeHolder() string {
	data, err := afero.ReadFile(l.fs, l.path)
	if err != nil || len(data) == 0 {
		return "remove " + l.path + " if no other run is active"
	}
	holder := strings.Join(strings.Fields(string(data)), " ")
	return holder + "; remove " + l.path + " if that process is gone"
}

// Release removes the lock file. Releasing a lock that is not held is a no-op.
func (l *DatasetLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := l.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file %s: %w", l.path, err)
	}
	return nil
}

// IsHeld reports whether this instance holds the lock.
func (l *DatasetLock) IsHeld() bool {
	return l.held
}

// Path returns the lock file path.
func (l *DatasetLock) Path() string {
	return l.path
}

// IsLocked reports whether any process currently holds the lock for root.
// The answer can change immediately after it is returned.
func IsLocked(fs afero.Fs, root string) bool {
	_, err := fs.Stat(filepath.Join(filepath.Clean(root), FileName))
	return err == nil
}

// WithLock runs fn while holding the lock and releases it afterwards, even
// when fn panics.
func (l *DatasetLock) WithLock(fn func() error) (err error) {
	if err := l.Acquire(); err != nil {
		return err
	}
	defer func() {
		if releaseErr := l.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn()
}
