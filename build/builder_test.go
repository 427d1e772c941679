package build

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JMMackenzie/IOQP/codec"
	"github.com/JMMackenzie/IOQP/index"
	"github.com/JMMackenzie/IOQP/score"
)

func TestFromCiffFileBuildsQueryableIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ciff")
	writeFixtureCiff(t, path)

	cfg := DefaultConfig()
	ix, err := FromCiffFile(context.Background(), path, cfg, nil)
	require.NoError(t, err)

	require.Len(t, ix.Docmap, 3)
	require.Equal(t, "docA", ix.Docmap[0].ExternalID)
	require.EqualValues(t, 50, ix.Docmap[0].Length)

	catList, ok := ix.PostingsList("cat")
	require.True(t, ok)
	require.EqualValues(t, 2, catList.NumPostings())

	dogList, ok := ix.PostingsList("dog")
	require.True(t, ok)
	require.EqualValues(t, 1, dogList.NumPostings())

	_, ok = ix.PostingsList("bird")
	require.False(t, ok)

	c := codec.BitPacked{}
	its := catList.Iterators()
	var got []uint32
	buf := make([]uint32, codec.BlockLen)
	for _, it := range its {
		for !it.Exhausted() {
			n := it.NextChunk(c, ix.ListData, buf)
			got = append(got, buf[:n]...)
		}
	}
	require.ElementsMatch(t, []uint32{0, 1}, got)
}

func TestFromCiffFileUnquantizedUsesIdentityScorer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ciff")
	writeFixtureCiff(t, path)

	cfg := Config{Quantize: false, QuantBits: 8}
	ix, err := FromCiffFile(context.Background(), path, cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, ix)
}

func TestBucketByQuantizedLevelGroupsAndOrdersDescending(t *testing.T) {
	l := rawList{
		term: "x",
		df:   1,
		postings: []rawPosting{
			{docID: 0, tf: 1},
			{docID: 1, tf: 1},
			{docID: 2, tf: 10},
		},
	}
	docmap := []index.DocInfo{{Length: 10}, {Length: 10}, {Length: 10}}
	quantizer := score.NewLinearQuantizer(100, 8)

	buckets, err := bucketByQuantizedLevel(l, docmap, 10, score.Identity{}, quantizer)
	require.NoError(t, err)
	require.Len(t, buckets, 2)

	// Identity scorer: score == tf, so docs 0 and 1 (tf=1) share a level
	// and doc 2 (tf=10) gets a higher one; buckets are descending.
	require.Greater(t, buckets[0].Impact, buckets[1].Impact)
	require.Equal(t, []uint32{2}, buckets[0].Docs)
	require.Equal(t, []uint32{0, 1}, buckets[1].Docs)
}
