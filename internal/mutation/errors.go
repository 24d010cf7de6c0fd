package mutation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyTarget is returned when a reindex target roster has no names.
var ErrEmptyTarget = errors.New("target roster is empty")

// IDOutOfRangeError reports requested ids outside [0, Size).
type IDOutOfRangeError struct {
	IDs  []int
	Size int
}

func (e *IDOutOfRangeError) Error() string {
	return fmt.Sprintf("category ids %v out of range: roster has %d categories (valid ids 0-%d)",
		e.IDs, e.Size, e.Size-1)
}

// MissingCategoriesError reports current categories absent from a strict
// reindex target. Their annotations would be dropped.
type MissingCategoriesError struct {
	Names []string
}

func (e *MissingCategoriesError) Error() string {
	return fmt.Sprintf("categories missing from target roster: %s (use --allow-drop to discard their annotations)",
		strings.Join(e.Names, ", "))
}

// NameSetMismatchError reports a reindex whose target is not a permutation of
// the current roster while the same-set check is on.
type NameSetMismatchError struct {
	Missing []string // in current, not in target
	Extra   []string // in target, not in current
}

func (e *NameSetMismatchError) Error() string {
	return fmt.Sprintf("target roster differs from current: missing %v, extra %v", e.Missing, e.Extra)
}

// DuplicateNameError reports a roster that would contain the same name twice.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate category name %q", e.Name)
}

// OrderMismatchError reports an explicit clean order that is not exactly the
// surviving category names.
type OrderMismatchError struct {
	Missing []string
	Extra   []string
}

func (e *OrderMismatchError) Error() string {
	return fmt.Sprintf("explicit order must list exactly the surviving categories: missing %v, unexpected %v",
		e.Missing, e.Extra)
}

// FileError is a per-file failure recorded during Apply. The batch continues.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}
