// Package scratch provides a bounded pool of reusable per-query working
// state, so that concurrent queries against the same index don't each
// allocate a dense accumulator array and chunk-max array from scratch.
//
// The shape is adapted from friggdb's worker pool (friggdb/pool/pool.go):
// a fixed-size resource pool guarded by a buffered channel instead of
// that pool's job-dispatch queue, since here callers borrow and return a
// resource rather than submit work to be run on it.
package scratch

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"

	"github.com/JMMackenzie/IOQP/codec"
)

// ChunkSize is the number of consecutive DocIds whose running max score
// is tracked by one entry of a Scratch's Chunks array.
const ChunkSize = 2048

var (
	metricPoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ioqp",
		Subsystem: "scratch_pool",
		Name:      "in_use",
		Help:      "Number of scratch buffers currently checked out of the pool.",
	})
	metricPoolWaitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ioqp",
		Subsystem: "scratch_pool",
		Name:      "wait_total",
		Help:      "Number of times Acquire found the pool empty and allocated a fresh scratch buffer.",
	})
)

// Config controls the size of a scratch Pool.
type Config struct {
	PoolSize int `yaml:"pool_size"`
}

// DefaultConfig returns a Config sized for modest query concurrency.
func DefaultConfig() Config {
	return Config{PoolSize: 32}
}

// RegisterFlags wires Config's fields to a flag.FlagSet for CLI use.
func (c *Config) RegisterFlags(prefix string, f flagSet) {
	f.IntVar(&c.PoolSize, prefix+"scratch.pool-size", 32, "number of reusable query scratch buffers to keep on hand")
}

// flagSet is the subset of *flag.FlagSet RegisterFlags needs, so this
// package doesn't have to import "flag" just to accept one.
type flagSet interface {
	IntVar(p *int, name string, value int, usage string)
}

// Scratch is one reusable unit of per-query working state: a dense
// per-DocId score accumulator, a coarser per-chunk running maximum used
// to prune low-scoring regions during top-k selection, and decode buffers
// sized for the codec's block and large-block chunk sizes.
type Scratch struct {
	Accumulators []uint16
	Chunks       []uint16
	DecodeBuf    codec.Buffer
	LargeDecodeBuf codec.LargeBuffer

	touched []uint32
}

func newScratch(maxDocID uint32) *Scratch {
	numChunks := int(maxDocID)/ChunkSize + 1
	return &Scratch{
		Accumulators: make([]uint16, maxDocID+1),
		Chunks:       make([]uint16, numChunks),
		touched:      make([]uint32, 0, 4096),
	}
}

// Add accumulates delta into docID's score, maintaining both the dense
// accumulator array and the coarser chunk-max array used to prune the
// top-k scan. It records docID as touched so Reset can clear only the
// entries a query actually wrote to.
func (s *Scratch) Add(docID uint32, delta uint16) {
	if s.Accumulators[docID] == 0 {
		s.touched = append(s.touched, docID)
	}
	s.Accumulators[docID] += delta
	chunk := docID / ChunkSize
	if s.Accumulators[docID] > s.Chunks[chunk] {
		s.Chunks[chunk] = s.Accumulators[docID]
	}
}

// Reset zeroes every accumulator and chunk-max entry touched since the
// last Reset, leaving the Scratch ready for reuse by the next query.
func (s *Scratch) Reset() {
	for _, idx := range s.touched {
		s.Accumulators[idx] = 0
	}
	s.touched = s.touched[:0]
	for i := range s.Chunks {
		s.Chunks[i] = 0
	}
}

// Pool is a bounded set of reusable Scratch buffers, all sized for the
// same index (same max DocId). Pool exhaustion does not back-pressure
// callers: when the free list is empty, Acquire allocates a fresh
// Scratch rather than waiting for one to be returned.
type Pool struct {
	cfg      Config
	free     chan *Scratch
	logger   log.Logger
	inUse    *atomic.Int32
	maxDocID uint32
}

// NewPool allocates cfg.PoolSize Scratch buffers sized for an index whose
// largest DocId is maxDocID.
func NewPool(cfg Config, maxDocID uint32, logger log.Logger) *Pool {
	if cfg.PoolSize <= 0 {
		cfg = DefaultConfig()
	}
	p := &Pool{
		cfg:      cfg,
		free:     make(chan *Scratch, cfg.PoolSize),
		logger:   logger,
		inUse:    atomic.NewInt32(0),
		maxDocID: maxDocID,
	}
	for i := 0; i < cfg.PoolSize; i++ {
		p.free <- newScratch(maxDocID)
	}
	return p
}

// Acquire borrows a Scratch from the pool. If the pool is exhausted it
// allocates a fresh one instead of blocking: ctx is accepted for API
// symmetry with Release's callers but Acquire itself never waits on it.
func (p *Pool) Acquire(ctx context.Context) (*Scratch, error) {
	select {
	case s := <-p.free:
		p.markBorrowed()
		return s, nil
	default:
	}

	metricPoolWaitTotal.Inc()
	level.Debug(p.logger).Log("msg", "scratch pool exhausted, allocating a fresh buffer")
	p.markBorrowed()
	return newScratch(p.maxDocID), nil
}

// Release resets s and returns it to the pool. If the pool is already at
// capacity (s was allocated on overflow by Acquire) it is dropped instead
// of blocking, and left for the garbage collector.
func (p *Pool) Release(s *Scratch) {
	s.Reset()
	p.inUse.Dec()
	metricPoolInUse.Set(float64(p.inUse.Load()))
	select {
	case p.free <- s:
	default:
	}
}

func (p *Pool) markBorrowed() {
	p.inUse.Inc()
	metricPoolInUse.Set(float64(p.inUse.Load()))
}

// Size reports the pool's total capacity.
func (p *Pool) Size() int {
	return p.cfg.PoolSize
}
