package build

import (
	"context"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/JMMackenzie/IOQP/codec"
	"github.com/JMMackenzie/IOQP/index"
	"github.com/JMMackenzie/IOQP/score"
	"github.com/JMMackenzie/IOQP/segment"
)

// Config controls how Build turns a CIFF export into a quantized index.
type Config struct {
	// Quantize selects BM25 scoring and quantization when true, or the
	// Identity scorer when false, in which case each posting's impact
	// level is its raw term frequency, unscaled.
	Quantize bool
	BM25K1   float32 `yaml:"bm25_k1"`
	BM25B    float32 `yaml:"bm25_b"`
	// QuantBits sets the quantization resolution: scores are scaled onto
	// levels in [0, 2^QuantBits], with the collection's maximum score at
	// 2^QuantBits.
	QuantBits uint32 `yaml:"quant_bits"`
	// Uncompressed selects the Uncompressed codec instead of BitPacked,
	// for tests and debugging.
	Uncompressed bool
}

// DefaultConfig returns the common BM25-quantized build configuration.
func DefaultConfig() Config {
	return Config{
		Quantize:  true,
		BM25K1:    0.9,
		BM25B:     0.4,
		QuantBits: 8,
	}
}

func (c Config) scorer() score.Scorer {
	if c.Quantize {
		return score.NewBM25(c.BM25K1, c.BM25B)
	}
	return score.Identity{}
}

func (c Config) compressor() codec.Compressor {
	if c.Uncompressed {
		return codec.Uncompressed{}
	}
	return codec.BitPacked{}
}

func (c Config) compressorTag() index.CompressorTag {
	if c.Uncompressed {
		return index.CompressorUncompressed
	}
	return index.CompressorBitPacked
}

// rawList is one term's postings with DocId gaps resolved to absolute,
// ascending DocIds.
type rawList struct {
	term     string
	df       int64
	postings []rawPosting
}

type rawPosting struct {
	docID uint32
	tf    uint32
}

// FromCiffFile builds an index.Index from the CIFF export at path.
//
// Construction runs in three passes, mirroring the original's
// from_ciff_file: a doc pass that reads every DocRecord into the
// document map and computes the average document length; a max-score
// pass that, in parallel across posting lists, scores every posting and
// tracks the single highest score observed anywhere in the collection;
// and a quantize/bucket/encode pass that, again in parallel across
// posting lists, quantizes each posting's score against that global
// maximum, buckets postings by quantized level, and bit-packs each
// term's buckets into the shared list-data blob. With cfg.Quantize false,
// the Identity scorer's term frequencies are used as impact levels
// without scaling.
func FromCiffFile(ctx context.Context, path string, cfg Config, logger log.Logger) (*index.Index, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	lists, docs, err := readCiff(path)
	if err != nil {
		return nil, err
	}
	level.Info(logger).Log("msg", "read ciff export", "lists", len(lists), "docs", len(docs))

	docmap, avgDocLen := buildDocmap(docs)

	scorer := cfg.scorer()
	globalMax, err := maxScoreOverCollection(ctx, lists, docmap, avgDocLen, scorer)
	if err != nil {
		return nil, err
	}
	if globalMax <= 0 {
		globalMax = 1
	}
	quantizer := score.NewLinearQuantizer(globalMax, cfg.QuantBits)
	if !cfg.Quantize {
		// A unit scale keeps each raw term frequency as its own level.
		quantizer = score.LinearQuantizer{GlobalMax: globalMax, Scale: 1}
	}
	level.Info(logger).Log("msg", "computed global max score", "max", globalMax)

	compressor := cfg.compressor()
	listData, vocab, numPostings, maxLevel, err := quantizeBucketEncode(ctx, lists, docmap, avgDocLen, scorer, quantizer, compressor)
	if err != nil {
		return nil, err
	}

	return &index.Index{
		Docmap:        docmap,
		Vocab:         vocab,
		ListData:      listData,
		Compressor:    compressor,
		CompressorTag: cfg.compressorTag(),
		NumLevels:     uint32(1) << cfg.QuantBits,
		MaxLevel:      maxLevel,
		MaxDocID:      uint32(len(docmap) - 1),
		NumPostings:   numPostings,
	}, nil
}

func readCiff(path string) ([]rawList, []CiffDocRecord, error) {
	r, closer, err := OpenCiff(path)
	if err != nil {
		return nil, nil, err
	}
	defer closer.Close()

	header := r.Header()
	lists := make([]rawList, 0, header.NumPostingsLists)
	docs := make([]CiffDocRecord, 0, header.NumDocs)

	for {
		rec, err := r.Next()
		if err != nil {
			break
		}
		switch rec.Kind {
		case CiffRecordPostingsList:
			lists = append(lists, toRawList(rec.PostingsList))
		case CiffRecordDoc:
			docs = append(docs, rec.Doc)
		}
	}

	if len(lists) != int(header.NumPostingsLists) {
		return nil, nil, errors.Errorf("ciff header declared %d postings lists, read %d", header.NumPostingsLists, len(lists))
	}
	if len(docs) != int(header.NumDocs) {
		return nil, nil, errors.Errorf("ciff header declared %d docs, read %d", header.NumDocs, len(docs))
	}

	return lists, docs, nil
}

func toRawList(pl CiffPostingsList) rawList {
	postings := make([]rawPosting, len(pl.Postings))
	var docID int32
	for i, p := range pl.Postings {
		docID += p.DocIDGap
		postings[i] = rawPosting{docID: uint32(docID), tf: uint32(p.TF)}
	}
	return rawList{term: pl.Term, df: pl.DF, postings: postings}
}

func buildDocmap(docs []CiffDocRecord) ([]index.DocInfo, float64) {
	maxDocID := int32(-1)
	for _, d := range docs {
		if d.DocID > maxDocID {
			maxDocID = d.DocID
		}
	}
	docmap := make([]index.DocInfo, maxDocID+1)
	var totalLen uint64
	for _, d := range docs {
		docmap[d.DocID] = index.DocInfo{ExternalID: d.CollectionDocID, Length: uint32(d.DocLength)}
		totalLen += uint64(d.DocLength)
	}
	avg := 0.0
	if len(docs) > 0 {
		avg = float64(totalLen) / float64(len(docs))
	}
	return docmap, avg
}

func normDocLen(docLen uint32, avgDocLen float64) float64 {
	if avgDocLen == 0 {
		return 1
	}
	return float64(docLen) / avgDocLen
}

// maxScoreOverCollection fans out one goroutine per posting list to find
// that list's highest score, then reduces the per-list maxima to one
// collection-wide maximum.
func maxScoreOverCollection(ctx context.Context, lists []rawList, docmap []index.DocInfo, avgDocLen float64, scorer score.Scorer) (float32, error) {
	maxima := make([]float32, len(lists))
	g, ctx := errgroup.WithContext(ctx)
	for i, l := range lists {
		i, l := i, l
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var localMax float32
			for _, p := range l.postings {
				s := scorer.Score(p.tf, uint32(l.df), normDocLen(docmap[p.docID].Length, avgDocLen), uint64(len(docmap)))
				if s > localMax {
					localMax = s
				}
			}
			maxima[i] = localMax
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, errors.Wrap(err, "computing max score")
	}

	var globalMax float32
	for _, m := range maxima {
		if m > globalMax {
			globalMax = m
		}
	}
	return globalMax, nil
}

type listResult struct {
	term string
	data []byte
	list segment.List
}

// quantizeBucketEncode quantizes and bit-packs every list in parallel,
// then stitches the results into one shared list-data blob in a fixed
// (sorted-by-term) order so builds are deterministic regardless of
// goroutine completion order.
func quantizeBucketEncode(
	ctx context.Context,
	lists []rawList,
	docmap []index.DocInfo,
	avgDocLen float64,
	scorer score.Scorer,
	quantizer score.LinearQuantizer,
	compressor codec.Compressor,
) ([]byte, map[string]segment.List, uint64, uint16, error) {
	results := make([]listResult, len(lists))
	g, ctx := errgroup.WithContext(ctx)
	for i, l := range lists {
		i, l := i, l
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			buckets, err := bucketByQuantizedLevel(l, docmap, avgDocLen, scorer, quantizer)
			if err != nil {
				return errors.Wrapf(err, "quantizing postings for term %q", l.term)
			}
			data, list := segment.EncodeList(compressor, buckets)
			results[i] = listResult{term: l.term, data: data, list: list}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, 0, 0, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].term < results[j].term })

	var listData []byte
	var numPostings uint64
	var maxLevel uint16
	vocab := make(map[string]segment.List, len(results))
	for _, r := range results {
		r.list.StartByteOffset = len(listData)
		listData = append(listData, r.data...)
		numPostings += r.list.NumPostings()
		if r.list.MaxImpact() > maxLevel {
			maxLevel = r.list.MaxImpact()
		}
		vocab[r.term] = r.list
	}

	return listData, vocab, numPostings, maxLevel, nil
}

// bucketByQuantizedLevel scores and quantizes every posting in l, groups
// postings sharing a quantized level, and returns those groups ordered by
// descending level with each group's DocIds sorted ascending — the shape
// segment.EncodeList expects.
func bucketByQuantizedLevel(l rawList, docmap []index.DocInfo, avgDocLen float64, scorer score.Scorer, quantizer score.LinearQuantizer) ([]segment.Bucket, error) {
	byLevel := make(map[uint16][]uint32)
	for _, p := range l.postings {
		s := scorer.Score(p.tf, uint32(l.df), normDocLen(docmap[p.docID].Length, avgDocLen), uint64(len(docmap)))
		level, err := quantizer.Quantize(s)
		if err != nil {
			return nil, err
		}
		lvl := uint16(level)
		byLevel[lvl] = append(byLevel[lvl], p.docID)
	}

	levels := make([]uint16, 0, len(byLevel))
	for lvl := range byLevel {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] > levels[j] })

	buckets := make([]segment.Bucket, 0, len(levels))
	for _, lvl := range levels {
		docs := byLevel[lvl]
		sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
		buckets = append(buckets, segment.Bucket{Impact: lvl, Docs: docs})
	}
	return buckets, nil
}
