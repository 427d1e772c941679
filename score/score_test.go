package score

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBM25ScoreIncreasesWithTermFreq(t *testing.T) {
	s := DefaultBM25()
	low := s.Score(1, 100, 1.0, 10000)
	high := s.Score(10, 100, 1.0, 10000)
	require.Greater(t, high, low)
}

func TestBM25RarerTermsScoreHigher(t *testing.T) {
	s := DefaultBM25()
	common := s.Score(1, 5000, 1.0, 10000)
	rare := s.Score(1, 5, 1.0, 10000)
	require.Greater(t, rare, common)
}

func TestBM25FloorsNegativeIDFForCommonTerms(t *testing.T) {
	s := DefaultBM25()
	// A term appearing in more than half the collection drives the raw
	// IDF negative; Score must still land non-negative so Quantize never
	// rejects it.
	score := s.Score(1, 9000, 1.0, 10000)
	require.GreaterOrEqual(t, score, float32(0))
}

func TestIdentityScorerReturnsTermFreq(t *testing.T) {
	var s Identity
	require.EqualValues(t, 7, s.Score(7, 1, 1.0, 1))
}

func TestLinearQuantizerRoundsToExpectedLevel(t *testing.T) {
	q := NewLinearQuantizer(10.0, 8)
	lvl, err := q.Quantize(5.0)
	require.NoError(t, err)
	require.EqualValues(t, 128, lvl)

	lvl, err = q.Quantize(0)
	require.NoError(t, err)
	require.EqualValues(t, 0, lvl)

	lvl, err = q.Quantize(10.0)
	require.NoError(t, err)
	require.EqualValues(t, 256, lvl)
}

func TestLinearQuantizerRejectsOutOfRangeScore(t *testing.T) {
	q := NewLinearQuantizer(10.0, 8)

	_, err := q.Quantize(-0.1)
	require.Error(t, err)

	_, err = q.Quantize(10.1)
	require.Error(t, err)
}
