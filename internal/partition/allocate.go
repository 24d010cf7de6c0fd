// Package partition assigns dataset images to train, val and test buckets
// while keeping every category represented, and writes the buckets out as a
// new dataset tree.
package partition

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/elliotchance/orderedmap/v2"
)

// Bucket names.
const (
	BucketTrain = "train"
	BucketVal   = "val"
	BucketTest  = "test"
)

// ratioTolerance is the allowed deviation of the ratio sum from 1.
const ratioTolerance = 1e-6

// Ratios are the requested bucket fractions.
type Ratios struct {
	Train float64
	Val   float64
	Test  float64
}

// RatioSumError reports ratios that are negative or do not sum to 1.
type RatioSumError struct {
	Ratios Ratios
	Sum    float64
}

func (e *RatioSumError) Error() string {
	return fmt.Sprintf("split ratios train=%g val=%g test=%g must be non-negative and sum to 1 (got %g)",
		e.Ratios.Train, e.Ratios.Val, e.Ratios.Test, e.Sum)
}

// Validate checks the ratios before any allocation.
func (r Ratios) Validate() error {
	sum := r.Train + r.Val + r.Test
	if r.Train < 0 || r.Val < 0 || r.Test < 0 || math.Abs(sum-1) > ratioTolerance {
		return &RatioSumError{Ratios: r, Sum: sum}
	}
	return nil
}

// Item is one image and the distinct categories annotated on it. Items
// without categories are backgrounds.
type Item struct {
	ID         string // image path relative to the dataset root
	Label      string // label path relative to the dataset root, empty when absent
	Categories []int
}

// Assignment holds three disjoint lists of item ids.
type Assignment struct {
	Train []string
	Val   []string
	Test  []string
}

// Len returns the number of assigned items.
func (a *Assignment) Len() int {
	return len(a.Train) + len(a.Val) + len(a.Test)
}

// Buckets returns the bucket names with their ids in output order.
func (a *Assignment) Buckets() *orderedmap.OrderedMap[string, []string] {
	m := orderedmap.NewOrderedMap[string, []string]()
	m.Set(BucketTrain, a.Train)
	m.Set(BucketVal, a.Val)
	m.Set(BucketTest, a.Test)
	return m
}

// allocator carries the state of one Allocate run.
type allocator struct {
	ratios   Ratios
	rng      *rand.Rand
	assigned map[string]string // id → bucket
	out      *Assignment
}

// Allocate distributes items over the buckets.
//
// Categories are handled rarest first (ties go to the lower id). Each takes
// its not yet assigned items, shuffles them and hands max(1, ⌊n·train⌋) to
// train, ⌊n·val⌋ to val (none when n is 1) and the rest to test. Backgrounds
// are shuffled and split by the same ratios afterwards. With a zero test ratio
// the remainder goes to val instead.
//
// The result depends only on items, ratios and seed. Items should be passed
// in a stable order.
func Allocate(items []Item, ratios Ratios, seed int64) *Assignment {
	a := &allocator{
		ratios:   ratios,
		rng:      rand.New(rand.NewSource(seed)),
		assigned: make(map[string]string, len(items)),
		out:      &Assignment{},
	}

	index := orderedmap.NewOrderedMap[int, []string]()
	var backgrounds []string
	for _, it := range items {
		if len(it.Categories) == 0 {
			backgrounds = append(backgrounds, it.ID)
			continue
		}
		seen := make(map[int]bool, len(it.Categories))
		for _, c := range it.Categories {
			if seen[c] {
				continue
			}
			seen[c] = true
			ids, _ := index.Get(c)
			index.Set(c, append(ids, it.ID))
		}
	}

	categories := make([]int, 0, index.Len())
	for el := index.Front(); el != nil; el = el.Next() {
		categories = append(categories, el.Key)
	}
	sort.Slice(categories, func(i, j int) bool {
		ni, _ := index.Get(categories[i])
		nj, _ := index.Get(categories[j])
		if len(ni) != len(nj) {
			return len(ni) < len(nj)
		}
		return categories[i] < categories[j]
	})

	for _, c := range categories {
		ids, _ := index.Get(c)
		var pending []string
		for _, id := range ids {
			if _, done := a.assigned[id]; !done {
				pending = append(pending, id)
			}
		}
		if len(pending) == 0 {
			continue
		}
		a.shuffle(pending)
		a.distribute(pending, true)
	}

	a.ensureTrainCoverage(categories, index)

	if len(backgrounds) > 0 {
		a.shuffle(backgrounds)
		a.distribute(backgrounds, false)
	}
	return a.out
}

func (a *allocator) shuffle(ids []string) {
	a.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

// distribute splits ids by the ratios. A category group always keeps one id
// for train when train is requested, and a single id never goes to val.
func (a *allocator) distribute(ids []string, category bool) {
	n := len(ids)
	train := portion(n, a.ratios.Train)
	if category && a.ratios.Train > 0 && train < 1 {
		train = 1
	}
	val := portion(n, a.ratios.Val)
	if category && n == 1 {
		val = 0
	}
	if train > n {
		train = n
	}
	if train+val > n {
		val = n - train
	}

	rest := BucketTest
	if a.ratios.Test == 0 {
		rest = BucketVal
	}
	for i, id := range ids {
		switch {
		case i < train:
			a.assign(id, BucketTrain)
		case i < train+val:
			a.assign(id, BucketVal)
		default:
			a.assign(id, rest)
		}
	}
}

// portion is ⌊n·ratio⌋, tolerant of float error in ratios like 0.7.
func portion(n int, ratio float64) int {
	return int(math.Floor(float64(n)*ratio + 1e-9))
}

func (a *allocator) assign(id, bucket string) {
	a.assigned[id] = bucket
	switch bucket {
	case BucketTrain:
		a.out.Train = append(a.out.Train, id)
	case BucketVal:
		a.out.Val = append(a.out.Val, id)
	default:
		a.out.Test = append(a.out.Test, id)
	}
}

// ensureTrainCoverage moves one image into train for every category whose
// images were all claimed by rarer categories and landed outside train.
func (a *allocator) ensureTrainCoverage(categories []int, index *orderedmap.OrderedMap[int, []string]) {
	if a.ratios.Train <= 0 {
		return
	}
	for _, c := range categories {
		ids, _ := index.Get(c)
		covered := false
		for _, id := range ids {
			if a.assigned[id] == BucketTrain {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		a.move(ids[0], BucketTrain)
	}
}

func (a *allocator) move(id, to string) {
	from := a.assigned[id]
	switch from {
	case BucketVal:
		a.out.Val = remove(a.out.Val, id)
	case BucketTest:
		a.out.Test = remove(a.out.Test, id)
	}
	delete(a.assigned, id)
	a.assign(id, to)
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
