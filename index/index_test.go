package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JMMackenzie/IOQP/codec"
	"github.com/JMMackenzie/IOQP/segment"
)

func fixtureIndex() *Index {
	c := codec.BitPacked{}
	docs := []uint32{0, 4, 9, 100, 4096}
	data, meta := segment.Encode(c, 12, docs)

	return &Index{
		Docmap: []DocInfo{
			{ExternalID: "doc-a", Length: 120},
			{ExternalID: "doc-b", Length: 80},
		},
		Vocab: map[string]segment.List{
			"cat": {Segments: []segment.MetaData{meta}, StartByteOffset: 0},
		},
		ListData:      data,
		Compressor:    c,
		CompressorTag: CompressorBitPacked,
		NumLevels:     256,
		MaxLevel:      12,
		MaxDocID:      4096,
		NumPostings:   uint64(len(docs)),
		MaxTermWeight: 32,
	}
}

func TestIndexSaveOpenRoundTrip(t *testing.T) {
	original := fixtureIndex()
	path := filepath.Join(t.TempDir(), "test.ioqp")
	require.NoError(t, original.Save(path))

	loaded, err := Open(path)
	require.NoError(t, err)

	require.Equal(t, original.Docmap, loaded.Docmap)
	require.Equal(t, original.ListData, loaded.ListData)
	require.Equal(t, original.MaxDocID, loaded.MaxDocID)
	require.Equal(t, original.NumPostings, loaded.NumPostings)

	list, ok := loaded.PostingsList("cat")
	require.True(t, ok)
	require.Equal(t, original.Vocab["cat"].Segments, list.Segments)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ioqp")
	require.NoError(t, writeGarbage(path))

	_, err := Open(path)
	require.Error(t, err)
}

func writeGarbage(path string) error {
	return os.WriteFile(path, []byte("not an index"), 0o644)
}
