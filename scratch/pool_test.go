package scratch

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireRelease(t *testing.T) {
	p := NewPool(Config{PoolSize: 2}, 1000, log.NewNopLogger())

	s1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Len(t, s1.Accumulators, 1001)

	s2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotSame(t, s1, s2)

	p.Release(s1)
	s3, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Same(t, s1, s3)
}

func TestPoolAcquireAllocatesFreshOnExhaustionInsteadOfBlocking(t *testing.T) {
	p := NewPool(Config{PoolSize: 1}, 1000, log.NewNopLogger())

	s1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s2, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NotSame(t, s1, s2)
	require.Len(t, s2.Accumulators, 1001)

	// Releasing the overflow buffer must not block even though the pool
	// is already at capacity.
	p.Release(s2)
	p.Release(s1)
}

func TestScratchAddTracksChunkMaxAndTouched(t *testing.T) {
	s := newScratch(10000)
	s.Add(5, 10)
	s.Add(5, 7)
	s.Add(ChunkSize+1, 3)

	require.EqualValues(t, 17, s.Accumulators[5])
	require.EqualValues(t, 17, s.Chunks[0])
	require.EqualValues(t, 3, s.Chunks[1])

	s.Reset()
	require.EqualValues(t, 0, s.Accumulators[5])
	require.EqualValues(t, 0, s.Chunks[0])
	require.EqualValues(t, 0, s.Chunks[1])
}
