package mutation

import (
	"fmt"
	"sort"

	"github.com/dbsmedya/yoloctl/internal/usage"
)

// Strategy selects category ids to remove. The set of strategies is closed;
// Resolve handles every kind.
type Strategy interface {
	isStrategy()
	String() string
}

// MinSamples removes used categories with fewer than N annotations.
type MinSamples struct{ N int }

// MinPercentage removes used categories holding less than Percent% of all annotations.
type MinPercentage struct{ Percent float64 }

// Keep removes every category not listed.
type Keep struct{ IDs []int }

// Remove removes the listed categories.
type Remove struct{ IDs []int }

// TopN keeps the N most annotated categories. Ties go to the lower id.
type TopN struct{ N int }

// IDRange removes categories with Lo <= id <= Hi.
type IDRange struct{ Lo, Hi int }

// Combo removes the union of its members' selections.
type Combo struct{ Strategies []Strategy }

func (MinSamples) isStrategy()    {}
func (MinPercentage) isStrategy() {}
func (Keep) isStrategy()          {}
func (Remove) isStrategy()        {}
func (TopN) isStrategy()          {}
func (IDRange) isStrategy()       {}
func (Combo) isStrategy()         {}

func (s MinSamples) String() string    { return fmt.Sprintf("min-samples(%d)", s.N) }
func (s MinPercentage) String() string { return fmt.Sprintf("min-percentage(%g%%)", s.Percent) }
func (s Keep) String() string          { return fmt.Sprintf("keep(%v)", s.IDs) }
func (s Remove) String() string        { return fmt.Sprintf("remove(%v)", s.IDs) }
func (s TopN) String() string          { return fmt.Sprintf("top-n(%d)", s.N) }
func (s IDRange) String() string       { return fmt.Sprintf("id-range(%d-%d)", s.Lo, s.Hi) }
func (s Combo) String() string         { return fmt.Sprintf("combo%v", s.Strategies) }

// Resolve turns a strategy into a sorted removal set.
//
// Thresholds (MinSamples, MinPercentage) only consider categories that have
// annotations. Keep, TopN and IDRange range over universe, the union of roster
// ids and used ids. Remove returns its ids as given; range checks happen when
// the plan is built.
func Resolve(s Strategy, snap *usage.Snapshot, universe []int) ([]int, error) {
	set := map[int]bool{}

	switch st := s.(type) {
	case MinSamples:
		if st.N <= 0 {
			return nil, fmt.Errorf("min-samples must be positive, got %d", st.N)
		}
		for _, id := range snap.UsedIDs() {
			if snap.Count(id) < st.N {
				set[id] = true
			}
		}

	case MinPercentage:
		if st.Percent <= 0 || st.Percent > 100 {
			return nil, fmt.Errorf("min-percentage must be in (0, 100], got %g", st.Percent)
		}
		threshold := st.Percent / 100 * float64(snap.Total)
		for _, id := range snap.UsedIDs() {
			if float64(snap.Count(id)) < threshold {
				set[id] = true
			}
		}

	case Keep:
		if len(st.IDs) == 0 {
			return nil, fmt.Errorf("keep requires at least one id")
		}
		keep := toSet(st.IDs)
		for _, id := range universe {
			if !keep[id] {
				set[id] = true
			}
		}

	case Remove:
		for _, id := range st.IDs {
			set[id] = true
		}

	case TopN:
		if st.N <= 0 {
			return nil, fmt.Errorf("top-n must be positive, got %d", st.N)
		}
		ranked := snap.UsedIDs()
		sort.SliceStable(ranked, func(i, j int) bool {
			return snap.Count(ranked[i]) > snap.Count(ranked[j])
		})
		if len(ranked) > st.N {
			ranked = ranked[:st.N]
		}
		keep := toSet(ranked)
		for _, id := range universe {
			if !keep[id] {
				set[id] = true
			}
		}

	case IDRange:
		if st.Lo > st.Hi {
			return nil, fmt.Errorf("id range %d-%d is empty", st.Lo, st.Hi)
		}
		for _, id := range universe {
			if id >= st.Lo && id <= st.Hi {
				set[id] = true
			}
		}

	case Combo:
		if len(st.Strategies) == 0 {
			return nil, fmt.Errorf("combo requires at least one strategy")
		}
		for _, member := range st.Strategies {
			ids, err := Resolve(member, snap, universe)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				set[id] = true
			}
		}

	case nil:
		return nil, fmt.Errorf("no strategy given")

	default:
		return nil, fmt.Errorf("unsupported strategy %T", s)
	}

	return sortedKeys(set), nil
}

func toSet(ids []int) map[int]bool {
	m := make(map[int]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for id, ok := range m {
		if ok {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
