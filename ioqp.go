// Package ioqp is an impact-ordered query processor: a quantized,
// block-compressed inverted index with a budgeted top-k retrieval engine
// that trades recall for a bounded amount of work per query.
//
// This file re-exports the handful of types and entrypoints most callers
// need so that, outside of index construction and CLI plumbing, code can
// depend on the ioqp package directly rather than reaching into its
// internal packages.
package ioqp

import (
	"context"

	"github.com/go-kit/log"

	"github.com/JMMackenzie/IOQP/build"
	"github.com/JMMackenzie/IOQP/index"
	"github.com/JMMackenzie/IOQP/query"
	"github.com/JMMackenzie/IOQP/result"
	"github.com/JMMackenzie/IOQP/scratch"
	"github.com/JMMackenzie/IOQP/search"
)

// Index is a complete, queryable impact-ordered inverted index.
type Index = index.Index

// BuildConfig controls index construction; see build.Config.
type BuildConfig = build.Config

// DefaultBuildConfig returns the common BM25-quantized build
// configuration.
func DefaultBuildConfig() BuildConfig {
	return build.DefaultConfig()
}

// Build reads a CIFF export at ciffPath and constructs a quantized index
// according to cfg.
func Build(ctx context.Context, ciffPath string, cfg BuildConfig, logger log.Logger) (*Index, error) {
	return build.FromCiffFile(ctx, ciffPath, cfg, logger)
}

// Open loads a previously built index from path.
func Open(path string) (*Index, error) {
	return index.Open(path)
}

// Query is a parsed batch query; see query.Query.
type Query = query.Query

// Term is one distinct token within a Query; see query.Term.
type Term = query.Term

// ParseQuery parses a single "<id>:<token> <token> ..." query line.
func ParseQuery(line string) (Query, error) {
	return query.Parse(line)
}

// ReadQueries reads a batch query file; see query.ReadFile.
func ReadQueries(path string, weighted bool) ([]Query, error) {
	return query.ReadFile(path, weighted)
}

// Results is a query's ranked top-k output; see result.Results.
type Results = result.Results

// Engine runs queries against an Index using a pool of reusable scratch
// buffers; see search.Engine.
type Engine = search.Engine

// ScratchPoolConfig controls Engine's scratch buffer pool; see
// scratch.Config.
type ScratchPoolConfig = scratch.Config

// DefaultScratchPoolConfig returns a scratch pool sized for modest query
// concurrency.
func DefaultScratchPoolConfig() ScratchPoolConfig {
	return scratch.DefaultConfig()
}

// NewEngine builds an Engine for ix.
func NewEngine(ix *Index, poolCfg ScratchPoolConfig, logger log.Logger) *Engine {
	return search.New(ix, poolCfg, logger)
}
