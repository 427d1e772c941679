// Command ioqp-query runs a batch of queries against an ioqp index and
// writes a TREC-formatted run file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/JMMackenzie/IOQP"
	"github.com/JMMackenzie/IOQP/result"
)

func main() {
	var (
		indexPath      string
		queriesPath    string
		outputPath     string
		weighted       bool
		k              int
		budgetFixed    int64
		budgetFraction float64
		warmup         bool
		poolSize       int
	)

	flag.StringVar(&indexPath, "index", "", "path to a built ioqp index")
	flag.StringVar(&queriesPath, "queries", "", "path to a batch query file")
	flag.StringVar(&outputPath, "output", "", "path to write the TREC run file to")
	flag.BoolVar(&weighted, "weighted", false, "rescale repeated query terms onto a bounded weight instead of collapsing them to frequency 1")
	flag.IntVar(&k, "k", 10, "number of results to return per query")
	flag.Int64Var(&budgetFixed, "budget-fixed", 0, "fixed postings budget per query (mutually exclusive with -budget-fraction)")
	flag.Float64Var(&budgetFraction, "budget-fraction", 0, "postings budget per query, as a fraction of the query's total matched postings")
	flag.BoolVar(&warmup, "warmup", false, "cycle the scratch pool before timing queries")
	flag.IntVar(&poolSize, "pool-size", 0, "scratch buffer pool size (0 uses the default)")
	flag.Parse()

	logger := log.NewLogfmtLogger(os.Stderr)
	logger = level.NewFilter(logger, level.AllowInfo())
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if indexPath == "" || queriesPath == "" || outputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ioqp-query -index <index file> -queries <query file> -output <trec file> [-budget-fixed N | -budget-fraction F]")
		os.Exit(2)
	}
	if (budgetFixed <= 0) == (budgetFraction <= 0) {
		fmt.Fprintln(os.Stderr, "exactly one of -budget-fixed or -budget-fraction must be set")
		os.Exit(2)
	}

	ix, err := ioqp.Open(indexPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open index", "err", err)
		os.Exit(1)
	}

	poolCfg := ioqp.DefaultScratchPoolConfig()
	if poolSize > 0 {
		poolCfg.PoolSize = poolSize
	}
	engine := ioqp.NewEngine(ix, poolCfg, logger)

	queries, err := ioqp.ReadQueries(queriesPath, weighted)
	if err != nil {
		level.Error(logger).Log("msg", "failed to read queries", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if warmup {
		if err := engine.Warmup(ctx); err != nil {
			level.Error(logger).Log("msg", "warmup failed", "err", err)
			os.Exit(1)
		}
	}

	all := make([]result.Results, 0, len(queries))
	start := time.Now()
	for _, q := range queries {
		var res result.Results
		var err error
		if budgetFixed > 0 {
			res, err = engine.QueryFixed(ctx, q, k, budgetFixed)
		} else {
			res, err = engine.QueryFraction(ctx, q, k, float32(budgetFraction))
		}
		if err != nil {
			level.Error(logger).Log("msg", "query failed", "qid", q.ID, "err", err)
			os.Exit(1)
		}
		all = append(all, res)
	}
	elapsed := time.Since(start)

	if err := result.WriteTRECFile(outputPath, all, ix.ExternalID); err != nil {
		level.Error(logger).Log("msg", "failed to write trec output", "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log("msg", "queries complete", "count", len(queries), "elapsed", elapsed, "output", outputPath)
}
