package search

import (
	"container/heap"

	"github.com/JMMackenzie/IOQP/result"
)

// topKHeap is a bounded min-heap of at most k result.Result values. Its
// root is always the current worst candidate: the lowest score, with
// ties broken in favor of evicting the larger DocId first — so that, for
// equal scores, the lower DocId is the one that survives to the final
// ranking, per ioqp's deterministic tie-breaking rule.
type topKHeap struct {
	k     int
	items []result.Result
}

func newTopKHeap(k int) *topKHeap {
	return &topKHeap{k: k, items: make([]result.Result, 0, k)}
}

func (h *topKHeap) Len() int { return len(h.items) }

func (h *topKHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}

func (h *topKHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *topKHeap) Push(x any) { h.items = append(h.items, x.(result.Result)) }

func (h *topKHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Offer considers (docID, score) for inclusion in the top-k, pushing it
// in if there's room or it beats the current worst kept candidate.
func (h *topKHeap) Offer(docID uint32, score uint16) {
	cand := result.Result{DocID: docID, Score: float32(score)}
	if h.Len() < h.k {
		heap.Push(h, cand)
		return
	}
	if h.Len() == 0 {
		return
	}
	worst := h.items[0]
	if cand.Score > worst.Score || (cand.Score == worst.Score && cand.DocID < worst.DocID) {
		h.items[0] = cand
		heap.Fix(h, 0)
	}
}

// Threshold returns the score the heap's current worst candidate holds,
// or 0 if the heap isn't yet at capacity (nothing has been pruned out
// yet, so any non-zero score is still worth considering).
func (h *topKHeap) Threshold() uint16 {
	if h.Len() < h.k || h.Len() == 0 {
		return 0
	}
	return uint16(h.items[0].Score)
}

// Sorted drains the heap into descending-score order, with ties broken
// by ascending DocId.
func (h *topKHeap) Sorted() []result.Result {
	out := make([]result.Result, len(h.items))
	copy(out, h.items)
	sortResults(out)
	return out
}

func sortResults(items []result.Result) {
	// Small k in practice; insertion sort keeps this allocation-free and
	// avoids pulling in sort.Slice's reflection-based comparator for what
	// is usually a handful of elements.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && less(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// less reports whether a should rank ahead of b: higher score first,
// lower DocId breaking ties.
func less(a, b result.Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}
