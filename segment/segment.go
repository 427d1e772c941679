// Package segment implements impact segments: the per-(term, quantized
// impact level) runs of strictly increasing DocIds that make up a
// postings list, and the postings list itself.
package segment

import (
	"github.com/JMMackenzie/IOQP/codec"
	"github.com/JMMackenzie/IOQP/internal/byterange"
)

// MetaData describes one encoded impact segment: the quantized impact
// level shared by every document in it, how many documents it holds, and
// how many bytes its encoding occupies in the list's byte blob.
type MetaData struct {
	Impact uint16
	Count  uint32
	Bytes  uint32
}

// Impact is a cursor over one encoded impact segment, decoding DocIds out
// of a shared list-data blob in BlockLen-sized (or large, LargeBlockLen)
// chunks as the caller asks for them.
type Impact struct {
	Meta          MetaData
	remainingU32s uint32
	bytes         byterange.Range
	initial       uint32
}

// FromEncodedSlice positions an Impact cursor at offset within listData,
// ready to decode Meta.Count DocIds.
func FromEncodedSlice(meta MetaData, offset int) Impact {
	return Impact{
		Meta:          meta,
		remainingU32s: meta.Count,
		bytes:         byterange.New(offset, offset+int(meta.Bytes)),
		initial:       0,
	}
}

// FromEncodedSliceWeighted is FromEncodedSlice with the segment's impact
// level pre-multiplied by a query term's weight, so that every later read
// of Meta.Impact already reflects the query-time scaling.
func FromEncodedSliceWeighted(meta MetaData, offset int, queryWeight uint32) Impact {
	weighted := meta
	weighted.Impact = uint16(uint32(meta.Impact) * queryWeight)
	return FromEncodedSlice(weighted, offset)
}

// Count reports how many DocIds remain undecoded in this segment.
func (im *Impact) Count() uint32 { return im.remainingU32s }

// Exhausted reports whether every DocId in the segment has been decoded.
func (im *Impact) Exhausted() bool { return im.remainingU32s == 0 }

// NextChunk decodes the next chunk of DocIds (a full BlockLen block, or
// the short tail) into out and returns how many were written. It returns
// 0 once the segment is exhausted.
func (im *Impact) NextChunk(c codec.Compressor, listData []byte, out []uint32) int {
	if im.remainingU32s == 0 {
		return 0
	}
	src := im.bytes.Slice(listData)
	var n int
	var consumed int
	if im.remainingU32s >= codec.BlockLen {
		n = codec.BlockLen
		consumed = c.DecompressFull(im.initial, src, out[:n])
	} else {
		n = int(im.remainingU32s)
		consumed = c.DecompressTail(im.initial, src, out[:n])
	}
	im.initial = out[n-1]
	im.bytes.Advance(consumed)
	im.remainingU32s -= uint32(n)
	return n
}

// NextLargeChunk decodes 64 full blocks (LargeBlockLen DocIds) at once
// into out. It only succeeds — returning true — when at least
// LargeBlockLen DocIds remain; callers fall back to NextChunk otherwise.
func (im *Impact) NextLargeChunk(c codec.Compressor, listData []byte, out *codec.LargeBuffer) bool {
	if im.remainingU32s < codec.LargeBlockLen {
		return false
	}
	for i := 0; i < 64; i++ {
		src := im.bytes.Slice(listData)
		dst := out[i*codec.BlockLen : (i+1)*codec.BlockLen]
		consumed := c.DecompressFull(im.initial, src, dst)
		im.initial = dst[codec.BlockLen-1]
		im.bytes.Advance(consumed)
	}
	im.remainingU32s -= codec.LargeBlockLen
	return true
}

// Bucket is one quantized-impact-level group of DocIds destined for a
// single term's postings list, in the shape the index builder assembles
// before encoding.
type Bucket struct {
	Impact uint16
	Docs   []uint32
}

// Encode bit-packs one impact level's sorted DocIds and returns the bytes
// written along with the MetaData describing them. Docs must already be
// sorted ascending.
func Encode(c codec.Compressor, impact uint16, docs []uint32) ([]byte, MetaData) {
	out := make([]byte, 0, len(docs)*5)
	scratch := make([]byte, (codec.BlockLen+1)*4)
	var initial uint32
	for i := 0; i < len(docs); i += codec.BlockLen {
		end := i + codec.BlockLen
		if end > len(docs) {
			end = len(docs)
		}
		chunk := docs[i:end]
		var n int
		if len(chunk) == codec.BlockLen {
			n = c.CompressFull(initial, chunk, scratch)
		} else {
			n = c.CompressTail(initial, chunk, scratch)
		}
		out = append(out, scratch[:n]...)
		initial = chunk[len(chunk)-1]
	}
	return out, MetaData{Impact: impact, Count: uint32(len(docs)), Bytes: uint32(len(out))}
}
