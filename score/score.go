// Package score implements the term-scoring functions used while
// building a quantized index (BM25, or a pass-through Identity scorer)
// and the linear quantizer that maps a scorer's floating-point output
// into the small integer impact range a postings list stores.
package score

import (
	"math"

	"github.com/pkg/errors"
)

// Scorer computes a term's contribution to a document's score from
// corpus-level and document-level statistics.
type Scorer interface {
	Score(termFreq, docFreq uint32, normDocLen float64, numDocs uint64) float32
}

// BM25 is the Okapi BM25 scorer.
type BM25 struct {
	K1 float32
	B  float32
}

// NewBM25 returns a BM25 scorer with the given k1/b parameters.
func NewBM25(k1, b float32) BM25 {
	return BM25{K1: k1, B: b}
}

// DefaultBM25 returns a BM25 scorer using the common k1=0.9, b=0.4
// defaults.
func DefaultBM25() BM25 {
	return NewBM25(0.9, 0.4)
}

// termIDF floors the raw IDF term at a small positive epsilon before
// scaling by (1+k1): a term whose document frequency exceeds half the
// collection (common/stopword terms) produces a negative or zero raw
// IDF, which would otherwise drive Score negative and make the term an
// un-quantizable, scoreless no-op instead of the negligible-but-valid
// contribution BM25 intends.
func (s BM25) termIDF(docFreq uint32, numDocs uint64) float32 {
	n := float32(numDocs)
	df := float32(docFreq)
	raw := float32(math.Log(float64((n - df + 0.5) / (df + 0.5))))
	const idfFloor = 1.0e-6
	if raw < idfFloor {
		raw = idfFloor
	}
	return raw * (1 + s.K1)
}

func (s BM25) docTermWeight(termFreq uint32, normDocLen float64) float32 {
	tf := float32(termFreq)
	return tf / (tf + s.K1*(1-s.B+s.B*float32(normDocLen)))
}

// Score implements Scorer.
func (s BM25) Score(termFreq, docFreq uint32, normDocLen float64, numDocs uint64) float32 {
	return s.termIDF(docFreq, numDocs) * s.docTermWeight(termFreq, normDocLen)
}

// Identity is a scorer that returns the raw term frequency, useful for
// building unweighted indexes during testing.
type Identity struct{}

// Score implements Scorer.
func (Identity) Score(termFreq, _ uint32, _ float64, _ uint64) float32 {
	return float32(termFreq)
}

// LinearQuantizer maps a scorer's output, known to lie in [0, GlobalMax],
// linearly onto the integer range [0, 2^quantBits]. Scaled scores are
// rounded up, so GlobalMax itself maps to 2^quantBits.
type LinearQuantizer struct {
	GlobalMax float32
	Scale     float32
}

// NewLinearQuantizer builds a LinearQuantizer scaling scores in
// [0, globalMax] onto [0, 2^quantBits].
func NewLinearQuantizer(globalMax float32, quantBits uint32) LinearQuantizer {
	levels := float32(uint32(1) << quantBits)
	return LinearQuantizer{GlobalMax: globalMax, Scale: levels / globalMax}
}

// Quantize maps score into its quantized impact level. It returns an
// error rather than panicking when score falls outside [0, GlobalMax] —
// a condition a caller can trigger with bad input, not a programmer
// error, so it is reported rather than fatal.
func (q LinearQuantizer) Quantize(score float32) (uint32, error) {
	if score < 0 || score > q.GlobalMax {
		return 0, errors.Errorf("score %f out of quantizer range [0, %f]", score, q.GlobalMax)
	}
	return uint32(math.Ceil(float64(score * q.Scale))), nil
}
