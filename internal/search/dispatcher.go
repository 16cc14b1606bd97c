package search

import (
	"strings"

	"github.com/shakespeer/sphubd/internal/hub"
	"github.com/shakespeer/sphubd/internal/nmdc"
)

// IDAllocator hands out monotonically increasing request ids, reserving -1 for
// callers that explicitly want head-of-registry (last-to-match) placement.
type IDAllocator struct{ next int }

// NewIDAllocator returns an allocator starting at 1.
func NewIDAllocator() *IDAllocator { return &IDAllocator{next: 1} }

// Next returns the next id.
func (a *IDAllocator) Next() int {
	a.next++
	return a.next - 1
}

// Dispatch builds the registry entry and wire command for a new search,
// choosing active or passive framing based on the hub's configuration
// (spec.md §4.7, §4.5). autoSearch requests register with id==-1 so they
// match last against any concurrent operator-issued search.
func Dispatch(ids *IDAllocator, registry *Registry, myIPPort, myNick string, passive, autoSearch bool, pattern string, tth string, sizeRestricted, isAtLeast bool, size int64) (id int, wire string) {
	id = ids.Next()
	if autoSearch {
		id = -1
	}
	req := Request{ID: id, TTH: tth, SizeRestricted: sizeRestricted, IsAtLeast: isAtLeast, Size: size}
	if tth == "" {
		req.Pattern = strings.Fields(strings.ToLower(pattern))
	}
	registry.Add(req)

	sr := hub.SearchRequest{SizeRestricted: sizeRestricted, IsAtLeast: isAtLeast, Size: size, Pattern: pattern}
	if tth != "" {
		sr.Type = nmdc.SearchTypeTTH
		sr.Pattern = tth
	}
	if passive {
		wire = hub.FormatSearchPassive(myNick, sr)
	} else {
		wire = hub.FormatSearch(myIPPort, sr)
	}
	return id, wire
}
