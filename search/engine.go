// Package search implements ioqp's budgeted retrieval engine: selecting
// impact segments in descending score-contribution order, accumulating
// their postings into a dense per-document score array until a postings
// budget is exhausted, and extracting the top-k highest-scoring
// documents with deterministic tie-breaking.
package search

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/JMMackenzie/IOQP/index"
	"github.com/JMMackenzie/IOQP/query"
	"github.com/JMMackenzie/IOQP/result"
	"github.com/JMMackenzie/IOQP/scratch"
	"github.com/JMMackenzie/IOQP/segment"
)

// maxScratchScore caps the delta one segment adds to each of its
// documents' accumulators, guarding against overflow when a quantized
// impact level is scaled by a large term weight. The sum a document
// collects across several segments is not capped.
const maxScratchScore = math.MaxUint16

// candidateSegment is one impact segment selected for processing,
// carrying the query-weighted impact that every document it holds will
// contribute. weightedImpact is kept as a separately clamped uint32
// (rather than read back from the weighted cursor's Meta.Impact) since a
// term weight large enough to overflow uint16 would otherwise wrap
// silently instead of saturating.
type candidateSegment struct {
	weightedImpact  uint32
	queryWeight     uint32
	startByteOffset int
	meta            segment.MetaData
}

// Engine runs queries against one Index, borrowing scratch buffers from
// a pool sized for that Index.
type Engine struct {
	Index  *index.Index
	Pool   *scratch.Pool
	Logger log.Logger
}

// New builds an Engine for ix, allocating a scratch pool sized for it.
func New(ix *index.Index, poolCfg scratch.Config, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Engine{
		Index:  ix,
		Pool:   scratch.NewPool(poolCfg, ix.MaxDocID, logger),
		Logger: logger,
	}
}

// QueryFraction runs q with a postings budget equal to fraction of the
// total postings across the query's matched terms.
func (e *Engine) QueryFraction(ctx context.Context, q query.Query, k int, fraction float32) (result.Results, error) {
	budget := e.budgetForFraction(q, fraction)
	return e.QueryFixed(ctx, q, k, budget)
}

func (e *Engine) budgetForFraction(q query.Query, fraction float32) int64 {
	var total uint64
	for _, t := range q.Tokens {
		if l, ok := e.Index.PostingsList(t.Token); ok {
			total += l.NumPostings()
		}
	}
	return int64(math.Ceil(float64(total) * float64(fraction)))
}

// QueryFixed runs q against the index with an explicit postings budget:
// impact segments are processed in descending weighted-impact order
// until the budget is exhausted, consumed in whole-segment units (a
// segment that is only partially "affordable" is still fully applied,
// and its full Count is what's subtracted from the budget).
func (e *Engine) QueryFixed(ctx context.Context, q query.Query, k int, budget int64) (result.Results, error) {
	start := time.Now()

	s, err := e.Pool.Acquire(ctx)
	if err != nil {
		return result.Results{}, errors.Wrap(err, "acquiring scratch buffer")
	}
	defer e.Pool.Release(s)

	topK, numSegments := e.runQuery(s, q, budget, k)
	level.Debug(e.Logger).Log("msg", "query complete", "qid", q.ID, "k", k, "budget", budget, "segments", numSegments)

	return result.Results{QueryID: q.ID, TopK: topK, Took: int64(time.Since(start))}, nil
}

// runQuery is the shared core of QueryFixed and Warmup: select candidate
// segments, apply whole segments against s until budget is exhausted,
// then extract the top-k. It reports how many candidate segments were
// selected (before budget was applied) for logging.
func (e *Engine) runQuery(s *scratch.Scratch, q query.Query, budget int64, k int) ([]result.Result, int) {
	segments := e.collectCandidateSegments(q)
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].weightedImpact > segments[j].weightedImpact
	})

	remaining := budget
	for _, seg := range segments {
		if remaining <= 0 {
			break
		}
		e.applySegment(s, seg)
		remaining -= int64(seg.meta.Count)
	}

	return e.topK(s, k), len(segments)
}

// collectCandidateSegments expands every matched query term's postings
// list into one candidateSegment per impact segment, with the term's
// weight already folded into its weighted impact.
func (e *Engine) collectCandidateSegments(q query.Query) []candidateSegment {
	var out []candidateSegment
	for _, t := range q.Tokens {
		list, ok := e.Index.PostingsList(t.Token)
		if !ok {
			level.Debug(e.Logger).Log("msg", "unknown query token", "token", t.Token)
			continue
		}
		offset := list.StartByteOffset
		for _, meta := range list.Segments {
			weighted := uint32(meta.Impact) * t.Freq
			out = append(out, candidateSegment{
				weightedImpact:  weighted,
				queryWeight:     t.Freq,
				startByteOffset: offset,
				meta:            meta,
			})
			offset += int(meta.Bytes)
		}
	}
	return out
}

// applySegment decodes every DocId in seg and accumulates its weighted
// impact into s.
func (e *Engine) applySegment(s *scratch.Scratch, seg candidateSegment) {
	delta := seg.weightedImpact
	if delta > maxScratchScore {
		delta = maxScratchScore
	}
	deltaU16 := uint16(delta)

	c := e.Index.Compressor
	it := segment.FromEncodedSliceWeighted(seg.meta, seg.startByteOffset, seg.queryWeight)

	var large = &s.LargeDecodeBuf
	for !it.Exhausted() {
		if it.NextLargeChunk(c, e.Index.ListData, large) {
			for _, docID := range large {
				s.Add(docID, deltaU16)
			}
			continue
		}
		n := it.NextChunk(c, e.Index.ListData, s.DecodeBuf[:])
		for i := 0; i < n; i++ {
			s.Add(s.DecodeBuf[i], deltaU16)
		}
	}
}

// topK seeds the heap with accumulators [0, initHeapDocs), where
// initHeapDocs = ⌈k/ChunkSize⌉×ChunkSize, unconditionally — including
// zero-score entries, so a zero-budget query still returns k results —
// then scans the remaining chunks, skipping any whose precomputed max
// can no longer beat the heap's current worst kept candidate.
func (e *Engine) topK(s *scratch.Scratch, k int) []result.Result {
	if k <= 0 {
		return nil
	}
	h := newTopKHeap(k)
	total := len(s.Accumulators)

	initHeapDocs := ((k + scratch.ChunkSize - 1) / scratch.ChunkSize) * scratch.ChunkSize
	seedEnd := initHeapDocs
	if seedEnd > total {
		seedEnd = total
	}
	for docID := 0; docID < seedEnd; docID++ {
		h.Offer(uint32(docID), s.Accumulators[docID])
	}

	for chunk := initHeapDocs / scratch.ChunkSize; chunk < len(s.Chunks); chunk++ {
		if h.Len() >= k && s.Chunks[chunk] <= h.Threshold() {
			continue
		}
		start := chunk * scratch.ChunkSize
		end := start + scratch.ChunkSize
		if end > total {
			end = total
		}
		for docID := start; docID < end; docID++ {
			h.Offer(uint32(docID), s.Accumulators[docID])
		}
	}
	return h.Sorted()
}

// Warmup is query_fixed run with a postings budget of zero, against
// every scratch buffer in the engine's pool: it exercises the
// segment-selection path and, through topK with k=1, walks the first
// ChunkSize entries of each buffer's accumulator array without returning
// any scored results, so the first real query isn't
// paying for page faults a load-testing harness wants to exclude.
func (e *Engine) Warmup(ctx context.Context) error {
	size := e.Pool.Size()
	held := make([]*scratch.Scratch, 0, size)
	for i := 0; i < size; i++ {
		s, err := e.Pool.Acquire(ctx)
		if err != nil {
			for _, h := range held {
				e.Pool.Release(h)
			}
			return errors.Wrap(err, "warming up scratch pool")
		}
		e.runQuery(s, query.Query{}, 0, 1)
		held = append(held, s)
	}
	for _, h := range held {
		e.Pool.Release(h)
	}
	return nil
}
