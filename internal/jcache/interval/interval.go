// Package interval implements an in-memory index of non-overlapping
// half-open byte ranges, keyed by their low endpoint.
//
// The Journal relies on the iteration order being stable and sorted by lo:
// it uses that order to decide which fragments to update in place when a
// write partially overlaps existing coverage.
package interval

import "sort"

// Interval is a half-open range [Lo, Hi) tagged with an opaque cache offset.
type Interval struct {
	Lo, Hi      uint64
	CacheOffset uint64
}

func (iv Interval) overlaps(lo, hi uint64) bool {
	return iv.Lo < hi && lo < iv.Hi
}

// Index holds a set of non-overlapping intervals sorted by Lo.
//
// Callers are responsible for not inserting overlapping ranges; the Journal
// performs the splitting/coalescing required to maintain that invariant
// before calling Insert. This mirrors the original Journal.cc, which keeps a
// plain ordered map and never rebalances it — a sorted slice with binary
// search gives the same O(log n + k) query behavior for the fragment counts
// a single cached object ever accumulates.
type Index struct {
	items []Interval
}

// New returns an empty Index.
func New() *Index {
	return &Index{}
}

func (idx *Index) search(lo uint64) int {
	return sort.Search(len(idx.items), func(i int) bool {
		return idx.items[i].Lo >= lo
	})
}

// Insert adds a non-overlapping interval. The caller guarantees [lo, hi) does
// not overlap any existing interval.
func (idx *Index) Insert(lo, hi uint64, cacheOffset uint64) {
	i := idx.search(lo)
	idx.items = append(idx.items, Interval{})
	copy(idx.items[i+1:], idx.items[i:])
	idx.items[i] = Interval{Lo: lo, Hi: hi, CacheOffset: cacheOffset}
}

// Erase removes the exact interval [lo, hi), if present.
func (idx *Index) Erase(lo, hi uint64) {
	for i, iv := range idx.items {
		if iv.Lo == lo && iv.Hi == hi {
			idx.items = append(idx.items[:i], idx.items[i+1:]...)
			return
		}
	}
}

// Query returns, in ascending order of Lo, every interval that overlaps
// [lo, hi).
func (idx *Index) Query(lo, hi uint64) []Interval {
	var out []Interval
	// Intervals are disjoint and sorted, so only the one just before the
	// first interval starting at or after lo can reach into [lo, hi).
	i := idx.search(lo)
	if i > 0 {
		i--
	}
	for _, iv := range idx.items[i:] {
		if iv.Lo >= hi {
			break
		}
		if iv.overlaps(lo, hi) {
			out = append(out, iv)
		}
	}
	return out
}

// Iter calls fn for every interval in ascending order of Lo. Iteration stops
// early if fn returns false.
func (idx *Index) Iter(fn func(Interval) bool) {
	for _, iv := range idx.items {
		if !fn(iv) {
			return
		}
	}
}

// Len returns the number of intervals currently indexed.
func (idx *Index) Len() int {
	return len(idx.items)
}

// Clear removes every interval.
func (idx *Index) Clear() {
	idx.items = nil
}
