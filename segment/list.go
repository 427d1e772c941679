package segment

import "github.com/JMMackenzie/IOQP/codec"

// List is one term's postings list: its impact segments ordered by
// descending impact level, plus the byte offset in the index's shared
// list-data blob at which the first segment's bytes begin.
type List struct {
	Segments        []MetaData
	StartByteOffset int
}

// NumPostings sums the document counts of every segment in the list.
func (l List) NumPostings() uint64 {
	var total uint64
	for _, m := range l.Segments {
		total += uint64(m.Count)
	}
	return total
}

// MaxImpact returns the list's highest impact level, or 0 for an empty
// list. Segments are stored highest-impact-first.
func (l List) MaxImpact() uint16 {
	if len(l.Segments) == 0 {
		return 0
	}
	return l.Segments[0].Impact
}

// Iterators returns one positioned Impact cursor per segment, ready to
// decode against the list-data blob passed to the caller separately.
func (l List) Iterators() []Impact {
	its := make([]Impact, len(l.Segments))
	offset := l.StartByteOffset
	for i, m := range l.Segments {
		its[i] = FromEncodedSlice(m, offset)
		offset += int(m.Bytes)
	}
	return its
}

// EncodeList bit-packs every bucket of a term's postings (buckets must
// already be ordered by descending impact) into one contiguous byte run
// and returns that run alongside the resulting List, whose
// StartByteOffset is left at 0 — the caller (the index builder) is
// responsible for offsetting it once the run is appended to the shared
// blob.
func EncodeList(c codec.Compressor, buckets []Bucket) ([]byte, List) {
	var data []byte
	segments := make([]MetaData, 0, len(buckets))
	for _, b := range buckets {
		bytes, meta := Encode(c, b.Impact, b.Docs)
		data = append(data, bytes...)
		segments = append(segments, meta)
	}
	return data, List{Segments: segments}
}
