// Package result holds the output types a query produces: one scored
// document, the ranked top-k for a query, and writers for the standard
// TREC run format.
package result

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Result is one scored document.
type Result struct {
	DocID uint32
	Score float32
}

// Results is the ranked top-k for a single query, along with how long
// the query took to run.
type Results struct {
	QueryID uint64
	TopK    []Result
	Took    int64 // nanoseconds
}

// String renders one Results as a block of TREC-formatted lines, one per
// ranked result, using externalID to translate DocIds into the corpus's
// own identifiers.
func (r Results) String(externalID func(uint32) string) string {
	var sb strings.Builder
	for i, res := range r.TopK {
		fmt.Fprintf(&sb, "%d Q0 %s %d %f ioqp\n", r.QueryID, externalID(res.DocID), i+1, res.Score)
	}
	return sb.String()
}

// WriteTREC appends every Results entry's TREC-formatted lines to w.
func WriteTREC(w io.Writer, all []Results, externalID func(uint32) string) error {
	bw := bufio.NewWriter(w)
	for _, r := range all {
		for i, res := range r.TopK {
			if _, err := fmt.Fprintf(bw, "%d Q0 %s %d %f ioqp\n", r.QueryID, externalID(res.DocID), i+1, res.Score); err != nil {
				return errors.Wrap(err, "writing trec line")
			}
		}
	}
	return errors.Wrap(bw.Flush(), "flushing trec output")
}

// WriteTRECFile writes every Results entry to a new file at path in TREC
// format.
func WriteTRECFile(path string, all []Results, externalID func(uint32) string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating trec output file")
	}
	defer f.Close()
	return WriteTREC(f, all, externalID)
}
