// Package query parses batch query files: one query per line, in
// "<id>:<token> <token> ...*" form, with repeated tokens collapsed into a
// per-term frequency and, for weighted runs, rescaled onto a bounded
// integer term-weight range.
package query

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxTermWeight bounds how large a single query term's weight may become
// after rescaling.
const MaxTermWeight = 32

// Term is one distinct token in a query, along with how many times it
// appeared (or, after rescaling, its rescaled integer weight).
type Term struct {
	Token string
	Freq  uint32
}

// Query is a parsed batch query: an externally supplied numeric ID and
// its distinct terms, in first-seen order.
type Query struct {
	ID     uint64
	Tokens []Term
}

// Parse parses one line of the form "<id>:<token> <token> ...". Repeated
// tokens are collapsed into a single Term with Freq equal to the number
// of occurrences.
func Parse(line string) (Query, error) {
	idPart, rest, ok := strings.Cut(line, ":")
	if !ok {
		return Query{}, errors.Errorf("malformed query line (missing ':'): %q", line)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return Query{}, errors.Wrapf(err, "parsing query id from %q", line)
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Query{}, errors.Errorf("query %d has no tokens", id)
	}

	index := make(map[string]int, len(fields))
	var tokens []Term
	for _, tok := range fields {
		if i, ok := index[tok]; ok {
			tokens[i].Freq++
			continue
		}
		index[tok] = len(tokens)
		tokens = append(tokens, Term{Token: tok, Freq: 1})
	}

	return Query{ID: id, Tokens: tokens}, nil
}

// Rescale rescales every term's Freq onto [1, maxWeight] when the query's
// largest raw frequency exceeds maxWeight; otherwise it leaves Freq
// values untouched (they already fit).
func (q *Query) Rescale(maxWeight uint32) {
	if maxWeight == 0 || len(q.Tokens) == 0 {
		return
	}
	var maxFreq uint32
	for _, t := range q.Tokens {
		if t.Freq > maxFreq {
			maxFreq = t.Freq
		}
	}
	if maxFreq <= maxWeight {
		return
	}
	for i := range q.Tokens {
		scaled := math.Ceil(float64(maxWeight) * float64(q.Tokens[i].Freq) / float64(maxFreq))
		q.Tokens[i].Freq = uint32(scaled)
	}
}

// ReadFile reads one query per line from path. When weighted is true,
// each query is rescaled onto [1, MaxTermWeight]; otherwise every term's
// frequency is collapsed to 1, producing an unweighted (boolean-OR-style)
// query.
func ReadFile(path string, weighted bool) ([]Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening query file")
	}
	defer f.Close()

	var queries []Query
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		q, err := Parse(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		if weighted {
			q.Rescale(MaxTermWeight)
		} else {
			q.Rescale(1)
		}
		queries = append(queries, q)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "reading query file")
	}
	return queries, nil
}
