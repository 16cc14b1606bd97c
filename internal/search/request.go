// Package search implements the UDP $SR listener, the outstanding-request
// registry, and response-to-request matching (spec.md §4.7).
//
// Grounded on backend/cache's LRU-eviction plumbing (lru_test.go) adapted
// from a cache-of-handles to a FIFO-with-head-insertion request list, and on
// the teacher's general "most recent wins" matching idiom used when
// resolving an ambiguous upload target.
package search

import (
	"strings"
)

// Request is an outstanding search we issued, kept so incoming $SR
// responses can be matched back to it.
type Request struct {
	ID             int
	Pattern        []string // casefolded composed-UTF-8 words, unused if TTH != ""
	TTH            string
	SizeRestricted bool
	IsAtLeast      bool
	Size           int64
}

// Registry is the FIFO of outstanding requests (spec.md §4.7).
type Registry struct {
	requests []Request
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry { return &Registry{} }

// Add appends a normal request, or inserts an id==-1 request at the head so
// it matches last (spec.md §4.7: "requests with id==-1 are inserted at the
// head to place them last in matching priority").
func (r *Registry) Add(req Request) {
	if req.ID == -1 {
		r.requests = append([]Request{req}, r.requests...)
		return
	}
	r.requests = append(r.requests, req)
}

// Remove discards a request by id (e.g. once its owning search completes).
func (r *Registry) Remove(id int) {
	for i, req := range r.requests {
		if req.ID == id {
			r.requests = append(r.requests[:i], r.requests[i+1:]...)
			return
		}
	}
}

// Match finds the best outstanding request for an incoming response,
// scanning most-recent-first (spec.md §4.7). It returns the request's id,
// or ok=false if nothing matches.
func (r *Registry) Match(filename, tth string, size int64) (id int, ok bool) {
	for i := len(r.requests) - 1; i >= 0; i-- {
		req := r.requests[i]
		if matches(req, filename, tth, size) {
			return req.ID, true
		}
	}
	return 0, false
}

func matches(req Request, filename, tth string, size int64) bool {
	if req.TTH != "" {
		return req.TTH == tth
	}
	lower := strings.ToLower(filename)
	for _, w := range req.Pattern {
		if !strings.Contains(lower, strings.ToLower(w)) {
			return false
		}
	}
	if req.SizeRestricted {
		if req.IsAtLeast {
			return size >= req.Size
		}
		return size <= req.Size
	}
	return true
}
