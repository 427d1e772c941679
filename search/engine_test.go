package search

import (
	"context"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/JMMackenzie/IOQP/codec"
	"github.com/JMMackenzie/IOQP/index"
	"github.com/JMMackenzie/IOQP/query"
	"github.com/JMMackenzie/IOQP/scratch"
	"github.com/JMMackenzie/IOQP/segment"
)

func buildFixtureIndex(t *testing.T) *index.Index {
	t.Helper()
	c := codec.BitPacked{}

	catData, catList := segment.EncodeList(c, []segment.Bucket{
		{Impact: 10, Docs: []uint32{1, 5, 9}},
		{Impact: 3, Docs: []uint32{2, 3, 4, 6, 7, 8}},
	})
	dogData, dogList := segment.EncodeList(c, []segment.Bucket{
		{Impact: 8, Docs: []uint32{5, 9}},
	})

	catList.StartByteOffset = 0
	dogList.StartByteOffset = len(catData)

	listData := append(append([]byte{}, catData...), dogData...)

	docmap := make([]index.DocInfo, 10)
	for i := range docmap {
		docmap[i] = index.DocInfo{ExternalID: "doc", Length: 10}
	}

	return &index.Index{
		Docmap:        docmap,
		Vocab:         map[string]segment.List{"cat": catList, "dog": dogList},
		ListData:      listData,
		Compressor:    c,
		CompressorTag: index.CompressorBitPacked,
		MaxDocID:      9,
		NumPostings:   11,
	}
}

func TestQueryFixedRanksByWeightedImpact(t *testing.T) {
	ix := buildFixtureIndex(t)
	e := New(ix, scratch.Config{PoolSize: 2}, log.NewNopLogger())

	q, err := query.Parse("1:cat dog")
	require.NoError(t, err)

	res, err := e.QueryFixed(context.Background(), q, 3, 1000)
	require.NoError(t, err)
	require.Len(t, res.TopK, 3)

	// doc 5 and 9 match both cat (impact 10) and dog (impact 8) => 18.
	require.EqualValues(t, 5, res.TopK[0].DocID)
	require.EqualValues(t, 18, res.TopK[0].Score)
	require.EqualValues(t, 9, res.TopK[1].DocID)
	require.EqualValues(t, 18, res.TopK[1].Score)
	// doc 1 only matches cat at impact 10.
	require.EqualValues(t, 1, res.TopK[2].DocID)
	require.EqualValues(t, 10, res.TopK[2].Score)
}

func TestQueryFixedBudgetLimitsSegmentsProcessed(t *testing.T) {
	ix := buildFixtureIndex(t)
	e := New(ix, scratch.Config{PoolSize: 2}, log.NewNopLogger())

	q, err := query.Parse("1:cat")
	require.NoError(t, err)

	// Budget of 1 still consumes the first (highest-impact) whole
	// segment (3 docs), since budget is spent in whole-segment units.
	// With k=10 and only 10 distinct DocIds in the fixture, the top-k
	// result is padded out to all 10 DocIds: the 3 that scored, then the
	// remaining 7 zero-score DocIds in ascending order.
	res, err := e.QueryFixed(context.Background(), q, 10, 1)
	require.NoError(t, err)
	require.Len(t, res.TopK, 10)
	require.ElementsMatch(t, []uint32{1, 5, 9}, []uint32{res.TopK[0].DocID, res.TopK[1].DocID, res.TopK[2].DocID})
	for _, r := range res.TopK[:3] {
		require.EqualValues(t, 10, r.Score)
	}
	require.Equal(t, []uint32{0, 2, 3, 4, 6, 7, 8}, []uint32{
		res.TopK[3].DocID, res.TopK[4].DocID, res.TopK[5].DocID, res.TopK[6].DocID,
		res.TopK[7].DocID, res.TopK[8].DocID, res.TopK[9].DocID,
	})
	for _, r := range res.TopK[3:] {
		require.EqualValues(t, 0, r.Score)
	}
}

func TestQueryFractionZeroBudgetReturnsTopKZeroScoreDocIDs(t *testing.T) {
	ix := buildFixtureIndex(t)
	e := New(ix, scratch.Config{PoolSize: 2}, log.NewNopLogger())

	q, err := query.Parse("1:cat dog")
	require.NoError(t, err)

	res, err := e.QueryFraction(context.Background(), q, 4, 0.0)
	require.NoError(t, err)
	require.Len(t, res.TopK, 4)
	for _, r := range res.TopK {
		require.EqualValues(t, 0, r.Score)
	}
	require.Equal(t, []uint32{0, 1, 2, 3}, []uint32{
		res.TopK[0].DocID, res.TopK[1].DocID, res.TopK[2].DocID, res.TopK[3].DocID,
	})
}

func TestQueryFixedUnknownTokenYieldsZeroScorePadding(t *testing.T) {
	ix := buildFixtureIndex(t)
	e := New(ix, scratch.Config{PoolSize: 1}, log.NewNopLogger())

	q, err := query.Parse("1:nonexistent")
	require.NoError(t, err)

	// No candidate segments match, so the accumulator array stays all
	// zero; topK still returns k zero-score DocIds rather than nothing.
	res, err := e.QueryFixed(context.Background(), q, 5, 1000)
	require.NoError(t, err)
	require.Len(t, res.TopK, 5)
	for _, r := range res.TopK {
		require.EqualValues(t, 0, r.Score)
	}
}

func TestQueryFractionComputesBudgetFromMatchedPostings(t *testing.T) {
	ix := buildFixtureIndex(t)
	e := New(ix, scratch.Config{PoolSize: 1}, log.NewNopLogger())

	q, err := query.Parse("1:cat")
	require.NoError(t, err)

	// All 9 of "cat"'s postings match, leaving only DocId 0 unscored; with
	// k=10 the top-k result is padded out to all 10 DocIds in the index.
	res, err := e.QueryFraction(context.Background(), q, 10, 1.0)
	require.NoError(t, err)
	require.Len(t, res.TopK, 10)
	require.EqualValues(t, 0, res.TopK[9].DocID)
	require.EqualValues(t, 0, res.TopK[9].Score)
}

func TestWarmupReturnsAllBuffersToPool(t *testing.T) {
	ix := buildFixtureIndex(t)
	e := New(ix, scratch.Config{PoolSize: 3}, log.NewNopLogger())

	require.NoError(t, e.Warmup(context.Background()))

	for i := 0; i < 3; i++ {
		s, err := e.Pool.Acquire(context.Background())
		require.NoError(t, err)
		e.Pool.Release(s)
	}
}

func TestTieBreakPrefersLowerDocIDOnEqualScore(t *testing.T) {
	h := newTopKHeap(2)
	h.Offer(10, 5)
	h.Offer(3, 5)
	h.Offer(7, 5)

	sorted := h.Sorted()
	require.Len(t, sorted, 2)
	require.EqualValues(t, 3, sorted[0].DocID)
	require.EqualValues(t, 7, sorted[1].DocID)
}
