package build

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// appendDelimited writes a varint length prefix followed by msg, matching
// the length-delimited framing CiffReader expects.
func appendDelimited(buf *bytes.Buffer, msg []byte) {
	var lenBuf [binaryMaxVarintLen]byte
	n := protowire.AppendVarint(lenBuf[:0], uint64(len(msg)))
	buf.Write(n)
	buf.Write(msg)
}

const binaryMaxVarintLen = 10

func encodeHeader(h CiffHeader) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(h.Version))
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(h.NumPostingsLists))
	buf = protowire.AppendTag(buf, 3, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(h.NumDocs))
	return buf
}

func encodePostingsList(term string, df int64, postings []CiffPosting) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendString(buf, term)
	buf = protowire.AppendTag(buf, 2, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(df))
	for _, p := range postings {
		var pbuf []byte
		pbuf = protowire.AppendTag(pbuf, 1, protowire.VarintType)
		pbuf = protowire.AppendVarint(pbuf, uint64(p.DocIDGap))
		pbuf = protowire.AppendTag(pbuf, 2, protowire.VarintType)
		pbuf = protowire.AppendVarint(pbuf, uint64(p.TF))
		buf = protowire.AppendTag(buf, 4, protowire.BytesType)
		buf = protowire.AppendBytes(buf, pbuf)
	}
	return buf
}

func encodeDocRecord(docID int32, externalID string, length int32) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(docID))
	buf = protowire.AppendTag(buf, 2, protowire.BytesType)
	buf = protowire.AppendString(buf, externalID)
	buf = protowire.AppendTag(buf, 3, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(length))
	return buf
}

func writeFixtureCiff(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer

	appendDelimited(&buf, encodeHeader(CiffHeader{Version: 1, NumPostingsLists: 2, NumDocs: 3}))

	appendDelimited(&buf, encodePostingsList("cat", 2, []CiffPosting{
		{DocIDGap: 0, TF: 3},
		{DocIDGap: 1, TF: 1},
	}))
	appendDelimited(&buf, encodePostingsList("dog", 1, []CiffPosting{
		{DocIDGap: 2, TF: 5},
	}))

	appendDelimited(&buf, encodeDocRecord(0, "docA", 50))
	appendDelimited(&buf, encodeDocRecord(1, "docB", 20))
	appendDelimited(&buf, encodeDocRecord(2, "docC", 80))

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestCiffReaderReadsHeaderListsAndDocs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ciff")
	writeFixtureCiff(t, path)

	r, closer, err := OpenCiff(path)
	require.NoError(t, err)
	defer closer.Close()

	require.EqualValues(t, 2, r.Header().NumPostingsLists)
	require.EqualValues(t, 3, r.Header().NumDocs)

	rec1, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, CiffRecordPostingsList, rec1.Kind)
	require.Equal(t, "cat", rec1.PostingsList.Term)
	require.Len(t, rec1.PostingsList.Postings, 2)

	rec2, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "dog", rec2.PostingsList.Term)

	rec3, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, CiffRecordDoc, rec3.Kind)
	require.Equal(t, "docA", rec3.Doc.CollectionDocID)
}
