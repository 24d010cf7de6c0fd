package dataset

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/dbsmedya/yoloctl/internal/fsutil"
)

// Record is one object annotation: a category id followed by the bbox tokens.
// Fields are kept as written so unchanged coordinates round-trip byte for byte.
type Record struct {
	ClassID int
	Fields  []string
}

// MalformedLineError describes a label line without a leading non-negative integer.
type MalformedLineError struct {
	Line string
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed label line %q", e.Line)
}

// ParseLine parses a single non-blank label line.
func ParseLine(line string) (Record, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Record{}, &MalformedLineError{Line: line}
	}
	id, err := strconv.Atoi(tokens[0])
	if err != nil || id < 0 {
		return Record{}, &MalformedLineError{Line: line}
	}
	return Record{ClassID: id, Fields: tokens[1:]}, nil
}

// Format renders the record with its category id replaced by id.
func (r Record) Format(id int) string {
	if len(r.Fields) == 0 {
		return strconv.Itoa(id)
	}
	return strconv.Itoa(id) + " " + strings.Join(r.Fields, " ")
}

// Box parses the normalized center-x, center-y, width and height.
func (r Record) Box() ([4]float64, error) {
	var box [4]float64
	if len(r.Fields) != 4 {
		return box, fmt.Errorf("expected 4 bbox values, got %d", len(r.Fields))
	}
	for i, f := range r.Fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return box, fmt.Errorf("bbox value %q: %w", f, err)
		}
		box[i] = v
	}
	return box, nil
}

// Line is one non-blank line of a label file.
type Line struct {
	Raw    string // trimmed text as found on disk
	Record Record
	Err    error // non-nil when the line is malformed
}

// LabelFile is a parsed label file. Blank lines are not retained.
type LabelFile struct {
	Path  string
	Lines []Line
}

// Records returns the well-formed records in file order.
func (f *LabelFile) Records() []Record {
	out := make([]Record, 0, len(f.Lines))
	for _, l := range f.Lines {
		if l.Err == nil {
			out = append(out, l.Record)
		}
	}
	return out
}

// Malformed returns the number of lines that failed to parse.
func (f *LabelFile) Malformed() int {
	n := 0
	for _, l := range f.Lines {
		if l.Err != nil {
			n++
		}
	}
	return n
}

// ReadLabelFile reads and parses a label file.
func ReadLabelFile(fs afero.Fs, path string) (*LabelFile, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return ParseLabels(path, data), nil
}

// ParseLabels parses label file content.
func ParseLabels(path string, data []byte) *LabelFile {
	f := &LabelFile{Path: path}
	for _, raw := range strings.Split(string(data), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		rec, err := ParseLine(raw)
		f.Lines = append(f.Lines, Line{Raw: raw, Record: rec, Err: err})
	}
	return f
}

// FormatLabels renders lines as a label file body with a trailing newline.
// No lines yields an empty file.
func FormatLabels(lines []string) []byte {
	if len(lines) == 0 {
		return []byte{}
	}
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteLabelFile atomically replaces path with lines.
func WriteLabelFile(fs afero.Fs, path string, lines []string) error {
	return fsutil.WriteFileAtomic(fs, path, FormatLabels(lines), 0o644)
}
