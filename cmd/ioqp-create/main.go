// Command ioqp-create builds a quantized ioqp index from a CIFF export.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/JMMackenzie/IOQP"
)

func main() {
	var (
		input        string
		output       string
		quantize     bool
		bm25K1       float64
		bm25B        float64
		quantBits    uint
		uncompressed bool
	)

	flag.StringVar(&input, "input", "", "path to the CIFF export to index")
	flag.StringVar(&output, "output", "", "path to write the built index to")
	flag.BoolVar(&quantize, "quantize", true, "score with BM25 and quantize; false builds an unweighted (term-frequency) index")
	flag.Float64Var(&bm25K1, "bm25-k1", 0.9, "BM25 k1 parameter")
	flag.Float64Var(&bm25B, "bm25-b", 0.4, "BM25 b parameter")
	flag.UintVar(&quantBits, "quant-bits", 8, "number of bits per quantized impact level")
	flag.BoolVar(&uncompressed, "uncompressed", false, "store postings uncompressed, for debugging")
	flag.Parse()

	logger := log.NewLogfmtLogger(os.Stderr)
	logger = level.NewFilter(logger, level.AllowInfo())
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	if input == "" || output == "" {
		fmt.Fprintln(os.Stderr, "usage: ioqp-create -input <ciff file> -output <index file>")
		os.Exit(2)
	}

	cfg := ioqp.BuildConfig{
		Quantize:     quantize,
		BM25K1:       float32(bm25K1),
		BM25B:        float32(bm25B),
		QuantBits:    uint32(quantBits),
		Uncompressed: uncompressed,
	}

	ix, err := ioqp.Build(context.Background(), input, cfg, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to build index", "err", err)
		os.Exit(1)
	}

	if err := ix.Save(output); err != nil {
		level.Error(logger).Log("msg", "failed to write index", "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log("msg", "index built", "output", output, "docs", len(ix.Docmap), "postings", ix.NumPostings)
}
