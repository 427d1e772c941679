// Command ioqp-serve exposes an ioqp index over a small HTTP JSON API.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/JMMackenzie/IOQP"
)

// searchRequest is the JSON body POST /search accepts, or the query
// parameters GET /search accepts under the same field names.
type searchRequest struct {
	Query          string  `json:"query"`
	K              int     `json:"k"`
	BudgetFixed    int64   `json:"budget_fixed,omitempty"`
	BudgetFraction float32 `json:"budget_fraction,omitempty"`
}

type searchResponseHit struct {
	ExternalID string  `json:"id"`
	Score      float32 `json:"score"`
}

type searchResponse struct {
	QueryID uint64              `json:"query_id"`
	TookNS  int64               `json:"took_ns"`
	Hits    []searchResponseHit `json:"hits"`
}

func main() {
	var (
		indexPath string
		port      int
		poolSize  int
	)
	flag.StringVar(&indexPath, "index", "", "path to a built ioqp index")
	flag.IntVar(&port, "port", 3000, "HTTP port to listen on")
	flag.IntVar(&poolSize, "pool-size", 0, "scratch buffer pool size (0 uses the default)")
	flag.Parse()

	logger := log.NewLogfmtLogger(os.Stderr)
	logger = level.NewFilter(logger, level.AllowInfo())
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if indexPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ioqp-serve -index <index file> [-port N]")
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

	router := mux.NewRouter()
	srv := &server{engine: engine, logger: logger}
	router.HandleFunc("/search", srv.handleSearchPost).Methods(http.MethodPost)
	router.HandleFunc("/search", srv.handleSearchGet).Methods(http.MethodGet)

	addr := fmt.Sprintf(":%d", port)
	level.Info(logger).Log("msg", "listening", "addr", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		level.Error(logger).Log("msg", "server stopped", "err", err)
		os.Exit(1)
	}
}

type server struct {
	engine *ioqp.Engine
	logger log.Logger
}

func (s *server) handleSearchPost(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.search(w, r, req)
}

func (s *server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := searchRequest{Query: q.Get("query")}
	if k, err := strconv.Atoi(q.Get("k")); err == nil {
		req.K = k
	}
	if bf, err := strconv.ParseInt(q.Get("budget_fixed"), 10, 64); err == nil {
		req.BudgetFixed = bf
	}
	if bfrac, err := strconv.ParseFloat(q.Get("budget_fraction"), 32); err == nil {
		req.BudgetFraction = float32(bfrac)
	}
	s.search(w, r, req)
}

func (s *server) search(w http.ResponseWriter, r *http.Request, req searchRequest) {
	if req.Query == "" {
		http.Error(w, "missing query", http.StatusBadRequest)
		return
	}
	if req.K <= 0 {
		req.K = 10
	}

	parsed, err := ioqp.ParseQuery(req.Query)
	if err != nil {
		http.Error(w, "invalid query: "+err.Error(), http.StatusBadRequest)
		return
	}

	var res ioqp.Results
	if req.BudgetFixed > 0 {
		res, err = s.engine.QueryFixed(r.Context(), parsed, req.K, req.BudgetFixed)
	} else if req.BudgetFraction > 0 {
		res, err = s.engine.QueryFraction(r.Context(), parsed, req.K, req.BudgetFraction)
	} else {
		res, err = s.engine.QueryFraction(r.Context(), parsed, req.K, 1.0)
	}
	if err != nil {
		level.Error(s.logger).Log("msg", "query failed", "err", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	hits := make([]searchResponseHit, len(res.TopK))
	for i, hit := range res.TopK {
		hits[i] = searchResponseHit{ExternalID: s.engine.Index.ExternalID(hit.DocID), Score: hit.Score}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(searchResponse{QueryID: res.QueryID, TookNS: res.Took, Hits: hits})
}
