// Package index defines the on-disk, in-memory Index: a vocabulary
// mapping terms to postings lists, the shared byte blob those lists
// decode against, and the document map translating internal DocIds back
// to corpus-supplied external identifiers.
//
// Serialization follows the same manual, length-delimited binary framing
// friggdb uses for its own on-disk records (friggdb/record.go,
// friggdb/encoding/object.go) rather than reaching for a generic
// serialization library: the pack has no Go equivalent of the original's
// bincode, and the format here is simple enough that hand-rolled framing
// is the more direct idiom. See DESIGN.md.
package index

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/JMMackenzie/IOQP/codec"
	"github.com/JMMackenzie/IOQP/segment"
)

// magic identifies an ioqp index file and its format version.
var magic = [8]byte{'I', 'O', 'Q', 'P', 0, 0, 0, 1}

// CompressorTag names which codec.Compressor a serialized index was
// built with, so Open can reconstruct the matching decoder.
type CompressorTag uint8

const (
	// CompressorBitPacked selects codec.BitPacked.
	CompressorBitPacked CompressorTag = iota
	// CompressorUncompressed selects codec.Uncompressed.
	CompressorUncompressed
)

// Compressor returns the codec.Compressor this tag names.
func (t CompressorTag) Compressor() (codec.Compressor, error) {
	switch t {
	case CompressorBitPacked:
		return codec.BitPacked{}, nil
	case CompressorUncompressed:
		return codec.Uncompressed{}, nil
	default:
		return nil, errors.Errorf("unknown compressor tag %d", t)
	}
}

// DocInfo is the per-document metadata an Index keeps to translate
// internal DocIds back to the corpus and to compute BM25 length
// normalization at build time.
type DocInfo struct {
	ExternalID string
	Length     uint32
}

// Index is a complete, queryable impact-ordered inverted index.
type Index struct {
	Docmap        []DocInfo
	Vocab         map[string]segment.List
	ListData      []byte
	Compressor    codec.Compressor
	CompressorTag CompressorTag
	NumLevels     uint32
	MaxLevel      uint16
	MaxDocID      uint32
	NumPostings   uint64
	MaxTermWeight uint32
}

// ExternalID translates an internal DocId back to its corpus identifier.
func (ix *Index) ExternalID(docID uint32) string {
	if int(docID) >= len(ix.Docmap) {
		return ""
	}
	return ix.Docmap[docID].ExternalID
}

// DocLength returns a document's stored length, used for BM25
// normalization at build time (queries score against already-quantized
// impacts and don't need it).
func (ix *Index) DocLength(docID uint32) uint32 {
	return ix.Docmap[docID].Length
}

// PostingsList looks up a term's postings list.
func (ix *Index) PostingsList(term string) (segment.List, bool) {
	l, ok := ix.Vocab[term]
	return l, ok
}

// Save writes ix to path in ioqp's binary index format.
func (ix *Index) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating index file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := ix.writeTo(w); err != nil {
		return err
	}
	return errors.Wrap(w.Flush(), "flushing index file")
}

func (ix *Index) writeTo(w io.Writer) error {
	if _, err := w.Write(magic[:]); err != nil {
		return errors.Wrap(err, "writing magic")
	}
	header := []uint64{
		uint64(ix.CompressorTag),
		uint64(ix.MaxDocID),
		uint64(ix.MaxLevel),
		ix.NumPostings,
		uint64(ix.NumLevels),
		uint64(ix.MaxTermWeight),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return errors.Wrap(err, "writing header")
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(ix.Docmap))); err != nil {
		return errors.Wrap(err, "writing docmap length")
	}
	for _, d := range ix.Docmap {
		if err := writeString(w, d.ExternalID); err != nil {
			return errors.Wrap(err, "writing doc external id")
		}
		if err := binary.Write(w, binary.LittleEndian, d.Length); err != nil {
			return errors.Wrap(err, "writing doc length")
		}
	}

	terms := make([]string, 0, len(ix.Vocab))
	for t := range ix.Vocab {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	if err := binary.Write(w, binary.LittleEndian, uint64(len(terms))); err != nil {
		return errors.Wrap(err, "writing vocab length")
	}
	for _, t := range terms {
		list := ix.Vocab[t]
		if err := writeString(w, t); err != nil {
			return errors.Wrap(err, "writing term")
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(list.StartByteOffset)); err != nil {
			return errors.Wrap(err, "writing start byte offset")
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(len(list.Segments))); err != nil {
			return errors.Wrap(err, "writing segment count")
		}
		for _, seg := range list.Segments {
			if err := binary.Write(w, binary.LittleEndian, seg.Impact); err != nil {
				return errors.Wrap(err, "writing segment impact")
			}
			if err := binary.Write(w, binary.LittleEndian, seg.Count); err != nil {
				return errors.Wrap(err, "writing segment count field")
			}
			if err := binary.Write(w, binary.LittleEndian, seg.Bytes); err != nil {
				return errors.Wrap(err, "writing segment bytes")
			}
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(ix.ListData))); err != nil {
		return errors.Wrap(err, "writing list data length")
	}
	if _, err := w.Write(ix.ListData); err != nil {
		return errors.Wrap(err, "writing list data")
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// Open reads an Index previously written by Save.
func Open(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening index file")
	}
	defer f.Close()

	return readFrom(bufio.NewReader(f))
}

func readFrom(r io.Reader) (*Index, error) {
	var gotMagic [8]byte
	if _, err := io.ReadFull(r, gotMagic[:]); err != nil {
		return nil, errors.Wrap(err, "reading magic")
	}
	if gotMagic != magic {
		return nil, errors.New("not an ioqp index file (bad magic)")
	}

	header := make([]uint64, 6)
	for i := range header {
		if err := binary.Read(r, binary.LittleEndian, &header[i]); err != nil {
			return nil, errors.Wrap(err, "reading header")
		}
	}
	ix := &Index{
		CompressorTag: CompressorTag(header[0]),
		MaxDocID:      uint32(header[1]),
		MaxLevel:      uint16(header[2]),
		NumPostings:   header[3],
		NumLevels:     uint32(header[4]),
		MaxTermWeight: uint32(header[5]),
	}
	compressor, err := ix.CompressorTag.Compressor()
	if err != nil {
		return nil, err
	}
	ix.Compressor = compressor

	var numDocs uint64
	if err := binary.Read(r, binary.LittleEndian, &numDocs); err != nil {
		return nil, errors.Wrap(err, "reading docmap length")
	}
	ix.Docmap = make([]DocInfo, numDocs)
	for i := range ix.Docmap {
		extID, err := readString(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading doc external id")
		}
		var length uint32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, errors.Wrap(err, "reading doc length")
		}
		ix.Docmap[i] = DocInfo{ExternalID: extID, Length: length}
	}

	var numTerms uint64
	if err := binary.Read(r, binary.LittleEndian, &numTerms); err != nil {
		return nil, errors.Wrap(err, "reading vocab length")
	}
	ix.Vocab = make(map[string]segment.List, numTerms)
	for i := uint64(0); i < numTerms; i++ {
		term, err := readString(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading term")
		}
		var startOffset uint64
		if err := binary.Read(r, binary.LittleEndian, &startOffset); err != nil {
			return nil, errors.Wrap(err, "reading start byte offset")
		}
		var numSegments uint64
		if err := binary.Read(r, binary.LittleEndian, &numSegments); err != nil {
			return nil, errors.Wrap(err, "reading segment count")
		}
		segments := make([]segment.MetaData, numSegments)
		for j := range segments {
			if err := binary.Read(r, binary.LittleEndian, &segments[j].Impact); err != nil {
				return nil, errors.Wrap(err, "reading segment impact")
			}
			if err := binary.Read(r, binary.LittleEndian, &segments[j].Count); err != nil {
				return nil, errors.Wrap(err, "reading segment count field")
			}
			if err := binary.Read(r, binary.LittleEndian, &segments[j].Bytes); err != nil {
				return nil, errors.Wrap(err, "reading segment bytes")
			}
		}
		ix.Vocab[term] = segment.List{Segments: segments, StartByteOffset: int(startOffset)}
	}

	var listDataLen uint64
	if err := binary.Read(r, binary.LittleEndian, &listDataLen); err != nil {
		return nil, errors.Wrap(err, "reading list data length")
	}
	ix.ListData = make([]byte, listDataLen)
	if _, err := io.ReadFull(r, ix.ListData); err != nil {
		return nil, errors.Wrap(err, "reading list data")
	}

	return ix, nil
}

func readString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
