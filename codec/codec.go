// Package codec implements the block compressors for monotonically
// increasing uint32 document-identifier sequences that back every impact
// segment in the index.
//
// Two layouts exist: a bit-packed layout for full BLOCK_LEN-sized blocks
// (one num-bits-per-int byte followed by the delta-encoded, bit-packed
// payload) and a stream-vbyte-delta layout for the short tail that
// remains once a posting list has been sliced into full blocks. Both are
// parameterized by an initial value — the DocId immediately preceding the
// block — so blocks chain deltas without ever storing an absolute DocId
// after the very first one in a segment.
package codec

import "math/bits"

const (
	// BlockLen is the number of DocIds packed into one full block.
	BlockLen = 128
	// BlockLenM1 is BlockLen-1.
	BlockLenM1 = BlockLen - 1
	// LargeBlockLen groups 64 full blocks together; decoding at this
	// granularity amortizes per-block call overhead for long segments.
	LargeBlockLen = 64 * BlockLen

	vbyteGroupSize = 4
)

// Buffer holds one decoded full block.
type Buffer = [BlockLen]uint32

// LargeBuffer holds one decoded group of 64 full blocks.
type LargeBuffer = [LargeBlockLen]uint32

// Compressor packs and unpacks DocId blocks. Full-block operations always
// see exactly BlockLen strictly-increasing values; tail operations see a
// short remainder in [1, BlockLen).
type Compressor interface {
	// CompressFull packs BlockLen sorted DocIds (delta-chained from
	// initial) into output, returning the number of bytes written.
	CompressFull(initial uint32, input []uint32, output []byte) int
	// CompressTail packs a short remainder of sorted DocIds into output,
	// returning the number of bytes written.
	CompressTail(initial uint32, input []uint32, output []byte) int
	// DecompressFull restores BlockLen DocIds into output, returning the
	// number of bytes consumed from input.
	DecompressFull(initial uint32, input []byte, output []uint32) int
	// DecompressTail restores len(output) DocIds into output, returning
	// the number of bytes consumed from input.
	DecompressTail(initial uint32, input []byte, output []uint32) int
}

// BitPacked is the production Compressor: bit-packed delta blocks for
// full BlockLen runs, stream-vbyte-delta for tails. It is the Go-scalar
// counterpart of the original's AVX2/SSE bit-packer — see the REDESIGN
// FLAGS section of SPEC_FULL.md for why the vectorized inner loop is not
// carried over.
type BitPacked struct{}

// CompressFull implements Compressor.
func (BitPacked) CompressFull(initial uint32, input []uint32, output []byte) int {
	numBits := maxDeltaBits(initial, input)
	output[0] = byte(numBits)
	packedLen := packDeltas(initial, input, numBits, output[1:])
	return 1 + packedLen
}

// CompressTail implements Compressor.
func (BitPacked) CompressTail(initial uint32, input []uint32, output []byte) int {
	return encodeStreamVByteDelta(initial, input, output)
}

// DecompressFull implements Compressor.
func (BitPacked) DecompressFull(initial uint32, input []byte, output []uint32) int {
	numBits := int(input[0])
	packedLen := (numBits * BlockLen) / 8
	unpackDeltas(initial, input[1:1+packedLen], numBits, output)
	return 1 + packedLen
}

// DecompressTail implements Compressor.
func (BitPacked) DecompressTail(initial uint32, input []byte, output []uint32) int {
	return decodeStreamVByteDelta(initial, input, output)
}

func maxDeltaBits(initial uint32, input []uint32) int {
	prev := initial
	var maxDelta uint32
	for _, v := range input {
		d := v - prev
		if d > maxDelta {
			maxDelta = d
		}
		prev = v
	}
	n := bits.Len32(maxDelta)
	if n == 0 {
		n = 1
	}
	return n
}

// packDeltas bit-packs the deltas of input (chained from initial) using
// numBits per value, into out. len(input) must be BlockLen; the caller
// guarantees numBits*BlockLen is a multiple of 8 (true for BlockLen=128
// and any numBits in [1,32]).
func packDeltas(initial uint32, input []uint32, numBits int, out []byte) int {
	var acc uint64
	accBits := 0
	outPos := 0
	prev := initial
	mask := uint64(1)<<uint(numBits) - 1
	for _, v := range input {
		d := uint64(v-prev) & mask
		prev = v
		acc |= d << uint(accBits)
		accBits += numBits
		for accBits >= 8 {
			out[outPos] = byte(acc)
			acc >>= 8
			accBits -= 8
			outPos++
		}
	}
	if accBits > 0 {
		out[outPos] = byte(acc)
		outPos++
	}
	return outPos
}

// unpackDeltas is the inverse of packDeltas, writing BlockLen absolute
// DocIds (chained from initial) into output.
func unpackDeltas(initial uint32, in []byte, numBits int, output []uint32) {
	var acc uint64
	accBits := 0
	inPos := 0
	prev := initial
	mask := uint64(1)<<uint(numBits) - 1
	for i := 0; i < BlockLen; i++ {
		for accBits < numBits {
			acc |= uint64(in[inPos]) << uint(accBits)
			accBits += 8
			inPos++
		}
		d := uint32(acc & mask)
		acc >>= uint(numBits)
		accBits -= numBits
		prev += d
		output[i] = prev
	}
}

// byteLenOf returns the minimum number of bytes needed to hold v, in
// [1,4] (stream-vbyte never emits a zero-length code).
func byteLenOf(v uint32) int {
	n := (bits.Len32(v) + 7) / 8
	if n == 0 {
		n = 1
	}
	return n
}

func encodeStreamVByteDelta(initial uint32, input []uint32, output []byte) int {
	prev := initial
	pos := 0
	for i := 0; i < len(input); i += vbyteGroupSize {
		groupLen := vbyteGroupSize
		if i+groupLen > len(input) {
			groupLen = len(input) - i
		}
		controlPos := pos
		output[controlPos] = 0
		pos++
		for j := 0; j < groupLen; j++ {
			v := input[i+j] - prev
			prev = input[i+j]
			nbytes := byteLenOf(v)
			output[controlPos] |= byte(nbytes-1) << uint(j*2)
			for b := 0; b < nbytes; b++ {
				output[pos] = byte(v >> uint(8*b))
				pos++
			}
		}
	}
	return pos
}

func decodeStreamVByteDelta(initial uint32, input []byte, output []uint32) int {
	prev := initial
	pos := 0
	for i := 0; i < len(output); i += vbyteGroupSize {
		groupLen := vbyteGroupSize
		if i+groupLen > len(output) {
			groupLen = len(output) - i
		}
		control := input[pos]
		pos++
		for j := 0; j < groupLen; j++ {
			nbytes := int((control>>uint(j*2))&0x3) + 1
			var v uint32
			for b := 0; b < nbytes; b++ {
				v |= uint32(input[pos]) << uint(8*b)
				pos++
			}
			prev += v
			output[i+j] = prev
		}
	}
	return pos
}

// Uncompressed stores DocIds as raw little-endian uint32s, ignoring
// initial entirely. Used by tests that need to inspect or construct
// index bytes without reasoning about bit-packing.
type Uncompressed struct{}

// CompressFull implements Compressor.
func (Uncompressed) CompressFull(_ uint32, input []uint32, output []byte) int {
	return writeU32LE(input, output)
}

// CompressTail implements Compressor.
func (Uncompressed) CompressTail(_ uint32, input []uint32, output []byte) int {
	return writeU32LE(input, output)
}

// DecompressFull implements Compressor.
func (Uncompressed) DecompressFull(_ uint32, input []byte, output []uint32) int {
	return readU32LE(input, output)
}

// DecompressTail implements Compressor.
func (Uncompressed) DecompressTail(_ uint32, input []byte, output []uint32) int {
	return readU32LE(input, output)
}

func writeU32LE(input []uint32, output []byte) int {
	for i, v := range input {
		o := output[i*4 : i*4+4]
		o[0] = byte(v)
		o[1] = byte(v >> 8)
		o[2] = byte(v >> 16)
		o[3] = byte(v >> 24)
	}
	return len(input) * 4
}

func readU32LE(input []byte, output []uint32) int {
	for i := range output {
		in := input[i*4 : i*4+4]
		output[i] = uint32(in[0]) | uint32(in[1])<<8 | uint32(in[2])<<16 | uint32(in[3])<<24
	}
	return len(output) * 4
}
