// Package byterange provides a small, mutable half-open range over a byte
// slice, used by the segment decoders to track their current read cursor
// into the index's shared list_data blob without slicing (and thus
// re-bounds-checking) on every decode.
package byterange

// Range is a half-open [Start, Stop) window into some shared byte slice.
type Range struct {
	Start int
	Stop  int
}

// FromSlice returns a Range spanning the whole of data.
func FromSlice(data []byte) Range {
	return Range{Start: 0, Stop: len(data)}
}

// New returns a Range explicitly delimited by [start, stop).
func New(start, stop int) Range {
	return Range{Start: start, Stop: stop}
}

// Advance moves the start of the range forward by n bytes, as a decoder
// consumes bytes from the front of its remaining span.
func (r *Range) Advance(n int) {
	r.Start += n
}

// Slice returns the portion of data covered by r.
func (r Range) Slice(data []byte) []byte {
	return data[r.Start:r.Stop]
}

// Len reports the number of bytes remaining in the range.
func (r Range) Len() int {
	return r.Stop - r.Start
}
