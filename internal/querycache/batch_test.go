package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRangeOrderedResults(t *testing.T) {
	opts := BatchOptions{ChunkSize: 2, Concurrency: 3}

	// Later chunks finish first; output order must still be numeric.
	got, err := FetchRange(context.Background(), 10, 15, opts, func(ctx context.Context, n uint64) (uint64, error) {
		time.Sleep(time.Duration(16-n) * time.Millisecond)
		return n, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 11, 12, 13, 14, 15}, got)
}

func TestFetchRangeEmptyRange(t *testing.T) {
	var calls atomic.Int32

	got, err := FetchRange(context.Background(), 10, 9, BatchOptions{}, func(ctx context.Context, n uint64) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(0), calls.Load())
}

func TestFetchRangeSingleItem(t *testing.T) {
	got, err := FetchRange(context.Background(), 7, 7, BatchOptions{}, func(ctx context.Context, n uint64) (string, error) {
		return fmt.Sprintf("block-%d", n), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"block-7"}, got)
}

func TestFetchRangePropagatesError(t *testing.T) {
	fetchErr := errors.New("rpc unavailable")

	_, err := FetchRange(context.Background(), 0, 9, BatchOptions{ChunkSize: 3}, func(ctx context.Context, n uint64) (int, error) {
		if n == 5 {
			return 0, fetchErr
		}
		return int(n), nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, fetchErr)
}

func TestFetchRangeBoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	opts := BatchOptions{ChunkSize: 1, Concurrency: 2}

	_, err := FetchRange(context.Background(), 0, 19, opts, func(ctx context.Context, n uint64) (uint64, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return n, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFetchByKeysDedupes(t *testing.T) {
	var calls atomic.Int32

	out, failed := FetchByKeys(context.Background(), []string{"0xa", "0xb", "0xa", "0xa"}, BatchOptions{}, func(ctx context.Context, k string) (string, error) {
		calls.Add(1)
		return "r-" + k, nil
	})
	assert.Empty(t, failed)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, map[string]string{"0xa": "r-0xa", "0xb": "r-0xb"}, out)
}

func TestFetchByKeysPartialFailure(t *testing.T) {
	out, failed := FetchByKeys(context.Background(), []string{"0xa", "0xb", "0xc"}, BatchOptions{ChunkSize: 1}, func(ctx context.Context, k string) (string, error) {
		if k == "0xb" {
			return "", errors.New("missing")
		}
		return "r-" + k, nil
	})

	assert.Len(t, out, 2)
	assert.Equal(t, "r-0xa", out["0xa"])
	assert.Equal(t, "r-0xc", out["0xc"])

	require.Len(t, failed, 1)
	assert.Equal(t, "0xb", failed[0].Key)
	assert.EqualError(t, failed[0].Err, "missing")
}

func TestFetchByKeysEmptyInput(t *testing.T) {
	out, failed := FetchByKeys(context.Background(), nil, BatchOptions{}, func(ctx context.Context, k int) (int, error) {
		t.Fatal("fetch must not be called for an empty key set")
		return 0, nil
	})
	assert.Empty(t, out)
	assert.Empty(t, failed)
}
