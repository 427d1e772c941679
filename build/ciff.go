// Package build implements ioqp's index construction: reading a Common
// Index File Format (CIFF) export and turning it into a quantized,
// impact-ordered index.Index.
//
// CIFF parsing is hand-rolled against the low-level protobuf wire
// primitives in google.golang.org/protobuf/encoding/protowire rather than
// generated .proto bindings — there is no .proto schema checked into
// this module to generate from, and CIFF's three message shapes
// (Header, PostingsList, DocRecord) are small enough that decoding them
// field-by-field off the wire is the more direct idiom here. See
// DESIGN.md.
package build

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// CiffHeader is CIFF's leading Header message.
type CiffHeader struct {
	Version                int32
	NumPostingsLists       int32
	NumDocs                int32
	TotalPostingsLists     int32
	TotalDocs              int32
	TotalTermsInCollection int64
	AverageDocLength       float64
	Description            string
}

// CiffPosting is one (docid-gap, term frequency) pair within a
// PostingsList; DocIDGap is relative to the previous posting in the same
// list (0 for the first posting, whose DocIDGap is its absolute DocId).
type CiffPosting struct {
	DocIDGap int32
	TF       int32
}

// CiffPostingsList is one term's raw (un-quantized, delta-coded) postings.
type CiffPostingsList struct {
	Term     string
	DF       int64
	CF       int64
	Postings []CiffPosting
}

// CiffDocRecord describes one document: its internal CIFF DocId, the
// corpus's own identifier for it, and its length in terms.
type CiffDocRecord struct {
	DocID           int32
	CollectionDocID string
	DocLength       int32
}

// CiffRecordKind distinguishes the two record payloads CiffReader.Next
// can return.
type CiffRecordKind int

const (
	// CiffRecordPostingsList tags a CiffRecord carrying a PostingsList.
	CiffRecordPostingsList CiffRecordKind = iota
	// CiffRecordDoc tags a CiffRecord carrying a DocRecord.
	CiffRecordDoc
)

// CiffRecord is one record read from a CIFF stream after its Header.
type CiffRecord struct {
	Kind         CiffRecordKind
	PostingsList CiffPostingsList
	Doc          CiffDocRecord
}

// CiffReader reads length-delimited CIFF protobuf messages from a
// (possibly gzip-compressed) stream: one Header, then Header's declared
// number of PostingsList messages, then its declared number of DocRecord
// messages.
type CiffReader struct {
	r                 *bufio.Reader
	header            CiffHeader
	postingsRemaining int32
	docsRemaining     int32
}

// OpenCiff opens path, transparently decompressing it if it starts with
// a gzip magic header, and reads its CIFF Header.
func OpenCiff(path string) (*CiffReader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening ciff file")
	}

	buffered := bufio.NewReader(f)
	magic, err := buffered.Peek(2)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, nil, errors.Wrap(err, "peeking ciff file header")
	}

	var src io.Reader = buffered
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, nil, errors.Wrap(err, "opening gzip ciff stream")
		}
		src = gz
	}

	cr := &CiffReader{r: bufio.NewReader(src)}
	headerBuf, err := readDelimited(cr.r)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "reading ciff header")
	}
	header, err := parseHeader(headerBuf)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "parsing ciff header")
	}
	cr.header = header
	cr.postingsRemaining = header.NumPostingsLists
	cr.docsRemaining = header.NumDocs

	return cr, f, nil
}

// Header returns the CIFF file's header.
func (cr *CiffReader) Header() CiffHeader { return cr.header }

// Next returns the next PostingsList or DocRecord in the stream, in
// CIFF's fixed order (all postings lists, then all doc records), or
// io.EOF once both are exhausted.
func (cr *CiffReader) Next() (CiffRecord, error) {
	switch {
	case cr.postingsRemaining > 0:
		buf, err := readDelimited(cr.r)
		if err != nil {
			return CiffRecord{}, errors.Wrap(err, "reading postings list")
		}
		pl, err := parsePostingsList(buf)
		if err != nil {
			return CiffRecord{}, errors.Wrap(err, "parsing postings list")
		}
		cr.postingsRemaining--
		return CiffRecord{Kind: CiffRecordPostingsList, PostingsList: pl}, nil

	case cr.docsRemaining > 0:
		buf, err := readDelimited(cr.r)
		if err != nil {
			return CiffRecord{}, errors.Wrap(err, "reading doc record")
		}
		doc, err := parseDocRecord(buf)
		if err != nil {
			return CiffRecord{}, errors.Wrap(err, "parsing doc record")
		}
		cr.docsRemaining--
		return CiffRecord{Kind: CiffRecordDoc, Doc: doc}, nil

	default:
		return CiffRecord{}, io.EOF
	}
}

func readDelimited(r *bufio.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func parseHeader(buf []byte) (CiffHeader, error) {
	var h CiffHeader
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return h, errors.New("malformed header tag")
		}
		buf = buf[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(buf)
			h.Version = int32(v)
			buf = buf[consumedOrAll(n, buf):]
		case 2:
			v, n := protowire.ConsumeVarint(buf)
			h.NumPostingsLists = int32(v)
			buf = buf[consumedOrAll(n, buf):]
		case 3:
			v, n := protowire.ConsumeVarint(buf)
			h.NumDocs = int32(v)
			buf = buf[consumedOrAll(n, buf):]
		case 4:
			v, n := protowire.ConsumeVarint(buf)
			h.TotalPostingsLists = int32(v)
			buf = buf[consumedOrAll(n, buf):]
		case 5:
			v, n := protowire.ConsumeVarint(buf)
			h.TotalDocs = int32(v)
			buf = buf[consumedOrAll(n, buf):]
		case 6:
			v, n := protowire.ConsumeVarint(buf)
			h.TotalTermsInCollection = int64(v)
			buf = buf[consumedOrAll(n, buf):]
		case 7:
			v, n := protowire.ConsumeFixed64(buf)
			h.AverageDocLength = fixed64ToFloat64(v)
			buf = buf[consumedOrAll(n, buf):]
		case 8:
			s, n := protowire.ConsumeString(buf)
			h.Description = s
			buf = buf[consumedOrAll(n, buf):]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return h, errors.New("malformed header field")
			}
			buf = buf[n:]
		}
	}
	return h, nil
}

func parsePostingsList(buf []byte) (CiffPostingsList, error) {
	var pl CiffPostingsList
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return pl, errors.New("malformed postings_list tag")
		}
		buf = buf[n:]
		switch num {
		case 1:
			s, n := protowire.ConsumeString(buf)
			pl.Term = s
			buf = buf[consumedOrAll(n, buf):]
		case 2:
			v, n := protowire.ConsumeVarint(buf)
			pl.DF = int64(v)
			buf = buf[consumedOrAll(n, buf):]
		case 3:
			v, n := protowire.ConsumeVarint(buf)
			pl.CF = int64(v)
			buf = buf[consumedOrAll(n, buf):]
		case 4:
			msg, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return pl, errors.New("malformed posting submessage")
			}
			p, err := parsePosting(msg)
			if err != nil {
				return pl, err
			}
			pl.Postings = append(pl.Postings, p)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return pl, errors.New("malformed postings_list field")
			}
			buf = buf[n:]
		}
	}
	return pl, nil
}

func parsePosting(buf []byte) (CiffPosting, error) {
	var p CiffPosting
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return p, errors.New("malformed posting tag")
		}
		buf = buf[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(buf)
			p.DocIDGap = int32(v)
			buf = buf[consumedOrAll(n, buf):]
		case 2:
			v, n := protowire.ConsumeVarint(buf)
			p.TF = int32(v)
			buf = buf[consumedOrAll(n, buf):]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return p, errors.New("malformed posting field")
			}
			buf = buf[n:]
		}
	}
	return p, nil
}

func parseDocRecord(buf []byte) (CiffDocRecord, error) {
	var d CiffDocRecord
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return d, errors.New("malformed doc_record tag")
		}
		buf = buf[n:]
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(buf)
			d.DocID = int32(v)
			buf = buf[consumedOrAll(n, buf):]
		case 2:
			s, n := protowire.ConsumeString(buf)
			d.CollectionDocID = s
			buf = buf[consumedOrAll(n, buf):]
		case 3:
			v, n := protowire.ConsumeVarint(buf)
			d.DocLength = int32(v)
			buf = buf[consumedOrAll(n, buf):]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return d, errors.New("malformed doc_record field")
			}
			buf = buf[n:]
		}
	}
	return d, nil
}

// consumedOrAll guards against a negative protowire "malformed" sentinel
// by treating it as consuming the whole remaining buffer, so a caller
// never slices with a negative index. The submessage and unknown-field
// cases check n themselves and return an error; the varint, fixed64 and
// string field cases rely on this helper instead, so a malformed value
// there ends parsing of the message without an error, leaving that field
// at its zero value.
func consumedOrAll(n int, buf []byte) int {
	if n < 0 {
		return len(buf)
	}
	return n
}

func fixed64ToFloat64(v uint64) float64 {
	return math.Float64frombits(v)
}
