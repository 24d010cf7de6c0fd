package mutation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/yoloctl/internal/dataset"
	"github.com/dbsmedya/yoloctl/internal/roster"
	"github.com/dbsmedya/yoloctl/internal/usage"
)

// Kind names a mutation.
type Kind string

const (
	KindDelete  Kind = "delete"
	KindReindex Kind = "reindex"
	KindClean   Kind = "clean"
	KindRename  Kind = "rename"
)

// Plan is a fully validated mutation. Building a plan never touches the
// filesystem beyond reading; Apply performs the writes.
type Plan struct {
	Kind Kind

	// OldNames and NewNames are nil when the dataset has no roster.
	OldNames []string
	NewNames []string

	// Mapping sends an old category id to its new id. Ids without an entry
	// are dropped together with their annotations.
	Mapping map[int]int

	Removed            []int // old ids dropped, ascending
	RemovedUsed        []int // subset of Removed with annotations
	RemovedUnused      []int // subset of Removed without annotations
	RemovedAnnotations int
	TotalAnnotations   int

	// DeleteEmpty deletes label files (and their images) left without records.
	DeleteEmpty bool

	RosterPaths []string
	Warnings    []string

	Snapshot *usage.Snapshot
}

// Target returns the new id for an old id, or false when it is dropped.
func (p *Plan) Target(old int) (int, bool) {
	id, ok := p.Mapping[old]
	return id, ok
}

// RewritesLabels reports whether any annotation would change or be dropped.
func (p *Plan) RewritesLabels() bool {
	if len(p.Removed) > 0 {
		return true
	}
	for _, id := range p.Snapshot.UsedIDs() {
		if to, ok := p.Mapping[id]; !ok || to != id {
			return true
		}
	}
	return false
}

// IsNoop reports whether applying the plan would change nothing.
func (p *Plan) IsNoop() bool {
	return !p.RewritesLabels() && namesEqual(p.OldNames, p.NewNames)
}

// KeptAnnotations is the number of annotations surviving the plan.
func (p *Plan) KeptAnnotations() int {
	return p.TotalAnnotations - p.RemovedAnnotations
}

// Name returns the pre-mutation name of id, or a placeholder.
func (p *Plan) Name(id int) string {
	if id >= 0 && id < len(p.OldNames) {
		return p.OldNames[id]
	}
	return fmt.Sprintf("class_%d", id)
}

func namesEqual(a, b []string) bool {
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

// DeleteRequest removes explicit ids plus any threshold selections.
// Zero thresholds are ignored.
type DeleteRequest struct {
	IDs           []int
	MinSamples    int
	MinPercentage float64
}

// ReindexRequest rewrites ids to follow a target roster order.
type ReindexRequest struct {
	Target []string
	// AllowDrop discards annotations of categories absent from Target.
	// Without it such a request fails.
	AllowDrop      bool
	RequireSameSet bool
}

// CleanRequest removes categories chosen by a strategy, deletes label files
// left empty with their images, and renumbers the survivors.
type CleanRequest struct {
	Strategy Strategy
	// Order optionally fixes the surviving names' new order.
	Order []string
	// PruneUnused also removes roster categories without annotations.
	PruneUnused bool
}

// state is what every plan starts from.
type state struct {
	snap        *usage.Snapshot
	names       []string
	rosterPaths []string
}

func (e *Engine) load(ctx context.Context, ds *dataset.Dataset, needRoster bool) (*state, error) {
	snap, err := e.analyzer.Analyze(ctx, ds)
	if err != nil {
		return nil, err
	}
	st := &state{snap: snap}

	names, _, err := roster.Discover(ds.Fs(), ds)
	switch {
	case err == nil:
		st.names = names
		st.rosterPaths = roster.Locate(ds.Fs(), ds)
	case errors.Is(err, roster.ErrRosterMissing) && !needRoster:
		e.log.Warnw("No category roster found, using ids seen in label files", "dataset", ds.Root)
	default:
		return nil, err
	}
	return st, nil
}

// size is the id space: the roster length, or max used id + 1 without a roster.
func (st *state) size() int {
	if st.names != nil {
		return len(st.names)
	}
	return st.snap.MaxID() + 1
}

// stray returns used ids with no roster entry.
func (st *state) stray() []int {
	var out []int
	for _, id := range st.snap.UsedIDs() {
		if id >= st.size() {
			out = append(out, id)
		}
	}
	return out
}

func (st *state) universe() []int {
	set := map[int]bool{}
	for id := 0; id < st.size(); id++ {
		set[id] = true
	}
	for _, id := range st.snap.UsedIDs() {
		set[id] = true
	}
	return sortedKeys(set)
}

func (st *state) checkRange(ids []int) error {
	var bad []int
	for _, id := range ids {
		if id < 0 || id >= st.size() {
			bad = append(bad, id)
		}
	}
	if len(bad) > 0 {
		sort.Ints(bad)
		return &IDOutOfRangeError{IDs: bad, Size: st.size()}
	}
	return nil
}

// PlanDelete validates and previews a delete.
func (e *Engine) PlanDelete(ctx context.Context, ds *dataset.Dataset, req DeleteRequest) (*Plan, error) {
	st, err := e.load(ctx, ds, false)
	if err != nil {
		return nil, err
	}
	if err := st.checkRange(req.IDs); err != nil {
		return nil, err
	}

	removed := append([]int(nil), req.IDs...)
	if req.MinSamples > 0 {
		ids, err := Resolve(MinSamples{N: req.MinSamples}, st.snap, st.universe())
		if err != nil {
			return nil, err
		}
		removed = append(removed, ids...)
	}
	if req.MinPercentage > 0 {
		ids, err := Resolve(MinPercentage{Percent: req.MinPercentage}, st.snap, st.universe())
		if err != nil {
			return nil, err
		}
		removed = append(removed, ids...)
	}

	return e.removalPlan(KindDelete, st, removed, false, nil)
}

// PlanClean resolves the strategy and previews a clean.
func (e *Engine) PlanClean(ctx context.Context, ds *dataset.Dataset, req CleanRequest) (*Plan, error) {
	st, err := e.load(ctx, ds, len(req.Order) > 0)
	if err != nil {
		return nil, err
	}

	removed, err := Resolve(req.Strategy, st.snap, st.universe())
	if err != nil {
		return nil, err
	}
	var explicit []int
	for _, id := range removed {
		if id >= st.size() && st.snap.Count(id) == 0 {
			explicit = append(explicit, id)
		}
	}
	if err := st.checkRange(explicit); err != nil {
		return nil, err
	}
	if err := st.checkRange(negative(removed)); err != nil {
		return nil, err
	}

	if req.PruneUnused {
		for id := 0; id < st.size(); id++ {
			if st.snap.Count(id) == 0 {
				removed = append(removed, id)
			}
		}
	}

	return e.removalPlan(KindClean, st, removed, true, req.Order)
}

func negative(ids []int) []int {
	var out []int
	for _, id := range ids {
		if id < 0 {
			out = append(out, id)
		}
	}
	return out
}

// removalPlan drops the removed ids and renumbers survivors contiguously, in
// ascending old-id order or in the explicit name order when given.
func (e *Engine) removalPlan(kind Kind, st *state, removed []int, deleteEmpty bool, order []string) (*Plan, error) {
	set := toSet(removed)

	p := &Plan{
		Kind:             kind,
		OldNames:         st.names,
		Mapping:          map[int]int{},
		DeleteEmpty:      deleteEmpty,
		RosterPaths:      st.rosterPaths,
		TotalAnnotations: st.snap.Total,
		Snapshot:         st.snap,
	}

	if st.names == nil {
		p.Warnings = append(p.Warnings, "no category roster found; ids are renumbered but no roster file is written")
	}

	for _, id := range st.stray() {
		if !set[id] {
			set[id] = true
			p.Warnings = append(p.Warnings, fmt.Sprintf(
				"category id %d has no roster entry; its %d annotations will be dropped", id, st.snap.Count(id)))
		}
	}

	var survivors []int
	for id := 0; id < st.size(); id++ {
		if !set[id] {
			survivors = append(survivors, id)
		}
	}

	if len(order) > 0 {
		if err := applyOrder(p, st.names, survivors, order); err != nil {
			return nil, err
		}
	} else {
		for newID, old := range survivors {
			p.Mapping[old] = newID
		}
		if st.names != nil {
			p.NewNames = make([]string, 0, len(survivors))
			for _, old := range survivors {
				p.NewNames = append(p.NewNames, st.names[old])
			}
		}
	}

	p.Removed = sortedKeys(set)
	for _, id := range p.Removed {
		if n := st.snap.Count(id); n > 0 {
			p.RemovedUsed = append(p.RemovedUsed, id)
			p.RemovedAnnotations += n
		} else {
			p.RemovedUnused = append(p.RemovedUnused, id)
		}
	}

	e.log.Debugw("Built mutation plan",
		"op", kind,
		"removed", p.Removed,
		"removed_annotations", p.RemovedAnnotations,
	)
	return p, nil
}

func applyOrder(p *Plan, names []string, survivors []int, order []string) error {
	if names == nil {
		return roster.ErrRosterMissing
	}
	pos := make(map[string]int, len(order))
	for i, name := range order {
		if _, dup := pos[name]; dup {
			return &DuplicateNameError{Name: name}
		}
		pos[name] = i
	}

	var missing []string
	surviving := map[string]bool{}
	for _, old := range survivors {
		name := names[old]
		surviving[name] = true
		newID, ok := pos[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		p.Mapping[old] = newID
	}
	var extra []string
	for _, name := range order {
		if !surviving[name] {
			extra = append(extra, name)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		return &OrderMismatchError{Missing: missing, Extra: extra}
	}
	p.NewNames = append([]string(nil), order...)
	return nil
}

// PlanReindex maps every current category to its position in the target roster.
func (e *Engine) PlanReindex(ctx context.Context, ds *dataset.Dataset, req ReindexRequest) (*Plan, error) {
	if len(req.Target) == 0 {
		return nil, ErrEmptyTarget
	}
	target := make(map[string]int, len(req.Target))
	for i, name := range req.Target {
		if _, dup := target[name]; dup {
			return nil, &DuplicateNameError{Name: name}
		}
		target[name] = i
	}

	st, err := e.load(ctx, ds, true)
	if err != nil {
		return nil, err
	}

	current := map[string]bool{}
	var missing []string
	for _, name := range st.names {
		current[name] = true
		if _, ok := target[name]; !ok {
			missing = append(missing, name)
		}
	}

	if req.RequireSameSet {
		var extra []string
		for _, name := range req.Target {
			if !current[name] {
				extra = append(extra, name)
			}
		}
		if len(missing) > 0 || len(extra) > 0 {
			return nil, &NameSetMismatchError{Missing: missing, Extra: extra}
		}
	}
	if len(missing) > 0 && !req.AllowDrop {
		return nil, &MissingCategoriesError{Names: missing}
	}

	p := &Plan{
		Kind:             KindReindex,
		OldNames:         st.names,
		NewNames:         append([]string(nil), req.Target...),
		Mapping:          map[int]int{},
		RosterPaths:      st.rosterPaths,
		TotalAnnotations: st.snap.Total,
		Snapshot:         st.snap,
	}

	dropped := map[int]bool{}
	for old, name := range st.names {
		if newID, ok := target[name]; ok {
			p.Mapping[old] = newID
			continue
		}
		dropped[old] = true
		p.Warnings = append(p.Warnings, fmt.Sprintf(
			"category %q (id %d) is not in the target roster; its %d annotations will be dropped",
			name, old, st.snap.Count(old)))
	}
	for _, id := range st.stray() {
		dropped[id] = true
		p.Warnings = append(p.Warnings, fmt.Sprintf(
			"category id %d has no roster entry; its %d annotations will be dropped", id, st.snap.Count(id)))
	}

	p.Removed = sortedKeys(dropped)
	for _, id := range p.Removed {
		if n := st.snap.Count(id); n > 0 {
			p.RemovedUsed = append(p.RemovedUsed, id)
			p.RemovedAnnotations += n
		} else {
			p.RemovedUnused = append(p.RemovedUnused, id)
		}
	}
	return p, nil
}

// PlanRename changes roster names only. Category ids and label files are untouched.
func (e *Engine) PlanRename(ctx context.Context, ds *dataset.Dataset, renames map[string]string) (*Plan, error) {
	if len(renames) == 0 {
		return nil, fmt.Errorf("no renames given")
	}

	st, err := e.load(ctx, ds, true)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Kind:             KindRename,
		OldNames:         st.names,
		NewNames:         append([]string(nil), st.names...),
		Mapping:          map[int]int{},
		RosterPaths:      st.rosterPaths,
		TotalAnnotations: st.snap.Total,
		Snapshot:         st.snap,
	}
	for _, id := range st.universe() {
		p.Mapping[id] = id
	}

	index := map[string]int{}
	for i, name := range st.names {
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	olds := make([]string, 0, len(renames))
	for old := range renames {
		olds = append(olds, old)
	}
	sort.Strings(olds)

	changed := map[int]bool{}
	for _, old := range olds {
		newName := strings.TrimSpace(renames[old])
		if newName == "" {
			return nil, fmt.Errorf("new name for %q is empty", old)
		}
		i, ok := index[old]
		if !ok {
			p.Warnings = append(p.Warnings, fmt.Sprintf("category %q not found in roster, skipped", old))
			continue
		}
		p.NewNames[i] = newName
		changed[i] = true
	}

	// Only renamed entries are checked; pre-existing duplicates are left alone.
	for i := range changed {
		for j, name := range p.NewNames {
			if j != i && name == p.NewNames[i] {
				return nil, &DuplicateNameError{Name: name}
			}
		}
	}
	return p, nil
}
