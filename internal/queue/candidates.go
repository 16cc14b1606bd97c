package queue

import "github.com/aalpar/deheap"

// candidateHeap orders a small, transient slice of queue targets so the
// "best" one pops off first. Used by GetNextSourceForNick (spec.md §4.4
// selection: "highest priority > 0, lowest sequence, not ACTIVE") and by
// the auto-search picker (spec.md §4.4: "most in need" = not yet ACTIVE,
// higher priority, larger size first).
//
// Grounded on github.com/aalpar/deheap, named directly in the teacher's
// go.mod; it exposes the same Init/Push/Pop shape as container/heap, so a
// fresh heap per selection call (rather than one maintained persistently
// across mutations) is cheap and simple to keep consistent.
type candidateHeap []*Target

func (h candidateHeap) Len() int { return len(h) }

// Less defines "comes first": ACTIVE targets sort last, then higher
// priority, then lower sequence (get_next_source_for_nick ordering).
func (h candidateHeap) Less(i, j int) bool {
	ai, aj := h[i].active(), h[j].active()
	if ai != aj {
		return aj // non-active (aj==true means j is active) sorts first
	}
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Sequence < h[j].Sequence
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(*Target)) }

func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// bestCandidate returns the highest-priority, lowest-sequence, non-active,
// priority>0 target among candidates, or nil.
func bestCandidate(candidates []*Target) *Target {
	h := make(candidateHeap, 0, len(candidates))
	for _, t := range candidates {
		if t.Priority <= 0 || t.active() {
			continue
		}
		h = append(h, t)
	}
	if len(h) == 0 {
		return nil
	}
	deheap.Init(&h)
	return deheap.Pop(&h).(*Target)
}

// needHeap orders targets for the auto-search picker: prefers not
// ACTIVE, then higher priority, then larger size.
type needHeap []*Target

func (h needHeap) Len() int { return len(h) }
func (h needHeap) Less(i, j int) bool {
	ai, aj := h[i].active(), h[j].active()
	if ai != aj {
		return aj
	}
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Size > h[j].Size
}
func (h needHeap) Swap(i, j int)            { h[i], h[j] = h[j], h[i] }
func (h *needHeap) Push(x interface{})      { *h = append(*h, x.(*Target)) }
func (h *needHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func mostInNeed(candidates []*Target) *Target {
	h := make(needHeap, len(candidates))
	copy(h, candidates)
	if len(h) == 0 {
		return nil
	}
	deheap.Init(&h)
	return deheap.Pop(&h).(*Target)
}
