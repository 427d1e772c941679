package codec

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func sortedRandomRun(n int, start uint32) []uint32 {
	out := make([]uint32, n)
	cur := start
	for i := 0; i < n; i++ {
		cur += uint32(rand.Intn(50) + 1)
		out[i] = cur
	}
	return out
}

func TestBitPackedFullBlockRoundTrip(t *testing.T) {
	compressors := map[string]Compressor{
		"BitPacked": BitPacked{},
	}
	for name, c := range compressors {
		t.Run(name, func(t *testing.T) {
			for trial := 0; trial < 20; trial++ {
				initial := uint32(trial * 17)
				input := sortedRandomRun(BlockLen, initial)

				buf := make([]byte, (1+BlockLen)*4)
				n := c.CompressFull(initial, input, buf)
				require.LessOrEqual(t, n, len(buf))

				out := make([]uint32, BlockLen)
				consumed := c.DecompressFull(initial, buf, out)
				require.Equal(t, n, consumed)
				require.Equal(t, input, out)
			}
		})
	}
}

func TestBitPackedTailRoundTrip(t *testing.T) {
	c := BitPacked{}
	for _, tailLen := range []int{1, 2, 3, 4, 5, 7, 8, 63, 127} {
		initial := uint32(100)
		input := sortedRandomRun(tailLen, initial)

		buf := make([]byte, tailLen*5+4)
		n := c.CompressTail(initial, input, buf)

		out := make([]uint32, tailLen)
		consumed := c.DecompressTail(initial, buf, out)

		require.Equal(t, n, consumed)
		require.Equal(t, input, out)
	}
}

func TestBitPackedAllZeroDeltaBlockNeverOccursButNumBitsFloorsAtOne(t *testing.T) {
	c := BitPacked{}
	initial := uint32(0)
	input := make([]uint32, BlockLen)
	for i := range input {
		input[i] = uint32(i + 1)
	}
	buf := make([]byte, (1+BlockLen)*4)
	n := c.CompressFull(initial, input, buf)
	require.Equal(t, byte(1), buf[0])

	out := make([]uint32, BlockLen)
	c.DecompressFull(initial, buf, out)
	require.Equal(t, input, out)
	_ = n
}

func TestBitPackedLargeDeltasNeedMoreBits(t *testing.T) {
	c := BitPacked{}
	initial := uint32(0)
	input := make([]uint32, BlockLen)
	cur := uint32(0)
	for i := range input {
		cur += 1 << 20
		input[i] = cur
	}
	buf := make([]byte, (1+BlockLen)*4)
	c.CompressFull(initial, input, buf)
	require.GreaterOrEqual(t, int(buf[0]), 21)

	out := make([]uint32, BlockLen)
	c.DecompressFull(initial, buf, out)
	require.Equal(t, input, out)
}

func TestUncompressedRoundTrip(t *testing.T) {
	c := Uncompressed{}
	input := sortedRandomRun(BlockLen, 7)
	buf := make([]byte, BlockLen*4)
	n := c.CompressFull(0, input, buf)
	require.Equal(t, BlockLen*4, n)

	out := make([]uint32, BlockLen)
	consumed := c.DecompressFull(0, buf, out)
	require.Equal(t, n, consumed)
	require.Equal(t, input, out)
}

func TestUncompressedTailRoundTrip(t *testing.T) {
	c := Uncompressed{}
	input := sortedRandomRun(13, 9000)
	buf := make([]byte, 13*4)
	n := c.CompressTail(0, input, buf)

	out := make([]uint32, 13)
	consumed := c.DecompressTail(0, buf, out)
	require.Equal(t, n, consumed)
	require.Equal(t, input, out)
}
