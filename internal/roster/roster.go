// Package roster reads and writes the ordered category-name list of a dataset.
//
// A roster is stored either as a flat text file with one name per line, or as a
// YAML document carrying `names` (list or index-keyed map) and `nc`. The list
// index is the category id.
package roster

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/fsutil"
)

// ErrRosterMissing is returned when no roster file with at least one name exists.
var ErrRosterMissing = errors.New("category roster not found")

// YAMLFiles and TextFiles are the roster candidates in discovery priority order.
var (
	YAMLFiles = []string{"data.yaml", "data.yml", "dataset.yaml", "dataset.yml"}
	TextFiles = []string{"classes.txt", "obj.names", "names.txt"}
)

func candidates() []string {
	out := make([]string, 0, len(YAMLFiles)+len(TextFiles))
	out = append(out, YAMLFiles...)
	return append(out, TextFiles...)
}

// IsYAML reports whether path uses the YAML encoding.
func IsYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Read parses a roster file.
func Read(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	if IsYAML(path) {
		doc, err := parseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		names, _, err := yamlNames(doc)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return names, nil
	}
	return parseText(data), nil
}

func parseText(data []byte) []string {
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// parseYAML returns the top-level mapping node, creating one for empty input.
func parseYAML(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top-level YAML value must be a mapping")
	}
	return root, nil
}

func lookup(m *yaml.Node, key string) (int, *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i, m.Content[i+1]
		}
	}
	return -1, nil
}

// yamlNames extracts `names` and reports whether it was an index-keyed map.
func yamlNames(m *yaml.Node) ([]string, bool, error) {
	_, v := lookup(m, "names")
	if v == nil {
		return nil, false, nil
	}
	switch v.Kind {
	case yaml.SequenceNode:
		names := make([]string, 0, len(v.Content))
		for _, n := range v.Content {
			names = append(names, n.Value)
		}
		return names, false, nil

	case yaml.MappingNode:
		type entry struct {
			idx  int
			name string
		}
		entries := make([]entry, 0, len(v.Content)/2)
		for i := 0; i+1 < len(v.Content); i += 2 {
			idx, err := strconv.Atoi(v.Content[i].Value)
			if err != nil {
				return nil, true, fmt.Errorf("names key %q is not an integer", v.Content[i].Value)
			}
			entries = append(entries, entry{idx, v.Content[i+1].Value})
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].idx < entries[b].idx })
		names := make([]string, len(entries))
		for i, e := range entries {
			if e.idx != i {
				return nil, true, fmt.Errorf("names keys must run 0..%d without gaps, found %d at position %d", len(entries)-1, e.idx, i)
			}
			names[i] = e.name
		}
		return names, true, nil
	}
	return nil, false, fmt.Errorf("names must be a list or a map")
}

// Write stores names at path in the encoding implied by its extension.
// For YAML, nc and names are replaced and every other key keeps its place.
// A file that already holds exactly these names is left untouched.
func Write(fs afero.Fs, path string, names []string) error {
	if !IsYAML(path) {
		if current, err := afero.ReadFile(fs, path); err == nil && equal(parseText(current), names) {
			return nil
		}
		return fsutil.WriteFileAtomic(fs, path, formatText(names), 0o644)
	}

	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if data, err := afero.ReadFile(fs, path); err == nil {
		parsed, err := parseYAML(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		doc = parsed
	}

	current, asMap, err := yamlNames(doc)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if _, nc := lookup(doc, "nc"); equal(current, names) && nc != nil && nc.Value == strconv.Itoa(len(names)) {
		return nil
	}

	setKey(doc, "nc", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(len(names))})
	setKey(doc, "names", namesNode(names, asMap))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return fsutil.WriteFileAtomic(fs, path, buf.Bytes(), 0o644)
}

func formatText(names []string) []byte {
	if len(names) == 0 {
		return []byte{}
	}
	return []byte(strings.Join(names, "\n") + "\n")
}

func namesNode(names []string, asMap bool) *yaml.Node {
	if asMap {
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for i, name := range names {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(i)},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name},
			)
		}
		return n
	}
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, name := range names {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name})
	}
	return n
}

func setKey(m *yaml.Node, key string, value *yaml.Node) {
	if i, _ := lookup(m, key); i >= 0 {
		m.Content[i+1] = value
		return
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

func equal(a, b []string) bool {
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

// Discover returns the first non-empty roster for ds and the file it came from.
// Root-level candidates are checked before each label directory.
func Discover(fs afero.Fs, ds *dataset.Dataset) ([]string, string, error) {
	dirs := append([]string{ds.Root}, ds.LabelDirs()...)
	for _, dir := range dirs {
		for _, name := range candidates() {
			p := filepath.Join(dir, name)
			if !fsutil.IsFile(fs, p) {
				continue
			}
			names, err := Read(fs, p)
			if err != nil || len(names) == 0 {
				continue
			}
			return names, p, nil
		}
	}
	return nil, "", ErrRosterMissing
}

// Locate returns every existing roster copy for ds: root, split directories
// and label directories. Mutations rewrite all of them together. A YAML file
// without a names key is some other config and is skipped.
func Locate(fs afero.Fs, ds *dataset.Dataset) []string {
	dirs := []string{ds.Root}
	switch ds.Layout {
	case dataset.LayoutFormat1:
		for _, d := range ds.Dirs {
			dirs = append(dirs, filepath.Join(ds.Root, d.Split))
		}
	case dataset.LayoutFormat2:
		dirs = append(dirs, filepath.Join(ds.Root, "labels"))
	}
	dirs = append(dirs, ds.LabelDirs()...)

	seen := map[string]bool{}
	var out []string
	for _, dir := range dirs {
		for _, name := range candidates() {
			p := filepath.Join(dir, name)
			if seen[p] || !fsutil.IsFile(fs, p) {
				continue
			}
			seen[p] = true
			if IsYAML(p) && !hasNames(fs, p) {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

// hasNames reports whether the YAML file at p carries a names key. Files that
// do not parse are kept so the caller surfaces the error.
func hasNames(fs afero.Fs, p string) bool {
	data, err := afero.ReadFile(fs, p)
	if err != nil {
		return true
	}
	doc, err := parseYAML(data)
	if err != nil {
		return true
	}
	_, v := lookup(doc, "names")
	return v != nil
}

// RootFiles returns the roster files stored directly under root.
func RootFiles(fs afero.Fs, root string) []string {
	var out []string
	for _, name := range candidates() {
		p := filepath.Join(root, name)
		if fsutil.IsFile(fs, p) {
			out = append(out, p)
		}
	}
	return out
}
