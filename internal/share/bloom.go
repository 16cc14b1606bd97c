package share

import "github.com/ipfs/bbloom"

// nameFilter is a Bloom filter over every hashed filename currently
// shared, used to short-circuit searches that can't possibly
// match (spec.md §4.1: "feed the Bloom filter used for search
// short-circuiting"). Grounded on github.com/ipfs/bbloom, an indirect
// dependency of the teacher's go.mod (pulled in transitively via estuary)
// promoted here to a direct, concrete use.
type nameFilter struct {
	bloom *bbloom.Bloom
}

// newNameFilter sizes the filter for an expected number of files at a 1%
// false-positive rate; MayContain false positives only ever cost an extra,
// harmless wire round-trip, never a correctness violation.
func newNameFilter(expectedEntries int) *nameFilter {
	if expectedEntries < 1024 {
		expectedEntries = 1024
	}
	bl, err := bbloom.New(float64(expectedEntries), 0.01)
	if err != nil {
		// Size/rate are always valid constants here; construction
		// cannot fail in practice.
		panic(err)
	}
	return &nameFilter{bloom: bl}
}

// Add indexes a lower-cased filename.
func (f *nameFilter) Add(name string) {
	f.bloom.AddTS([]byte(name))
}

// MayContain reports whether name might be present; false means "never
// shared", true means "ask the index for a definitive answer".
func (f *nameFilter) MayContain(name string) bool {
	return f.bloom.HasTS([]byte(name))
}

// Clear resets the filter, e.g. before a full re-scan.
func (f *nameFilter) Clear() {
	f.bloom.Clear()
}
