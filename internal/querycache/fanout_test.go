package querycache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func balanceQueryFor(addr string, fetch func(ctx context.Context) (int, error)) Query[int] {
	return Query[int]{Key: MakeKey(DomainBalance, addr), Fetch: fetch}
}

func TestFanOutAllSucceed(t *testing.T) {
	c := newTestCache()

	res := FanOut(context.Background(), c, []string{"0xa", "0xb", "0xc"}, func(addr string) Query[int] {
		return balanceQueryFor(addr, func(ctx context.Context) (int, error) {
			return len(addr), nil
		})
	})

	assert.False(t, res.IsLoading)
	assert.False(t, res.IsError)
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Data, 3)
}

func TestFanOutPartialFailure(t *testing.T) {
	c := newTestCache()
	failB := errors.New("address unreachable")

	res := FanOut(context.Background(), c, []string{"0xa", "0xb", "0xc"}, func(addr string) Query[int] {
		return balanceQueryFor(addr, func(ctx context.Context) (int, error) {
			if addr == "0xb" {
				return 0, failB
			}
			return 1, nil
		})
	})

	// The failing item does not hide the ones that resolved.
	assert.True(t, res.IsError)
	assert.False(t, res.IsLoading)
	assert.Len(t, res.Data, 2)
	assert.Contains(t, res.Data, "0xa")
	assert.Contains(t, res.Data, "0xc")

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "0xb", res.Errors[0].Item)
	assert.ErrorIs(t, res.Errors[0].Err, failB)
}

func TestFanOutEmptyItems(t *testing.T) {
	c := newTestCache()

	res := FanOut(context.Background(), c, nil, func(addr string) Query[int] {
		t.Fatal("build must not be called without items")
		return Query[int]{}
	})
	assert.False(t, res.IsLoading)
	assert.Empty(t, res.Data)
}

func TestFanOutCoalescesWithConcurrentFetch(t *testing.T) {
	c := newTestCache()

	var calls int32
	release := make(chan struct{})
	sharedFetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}

	direct := make(chan int, 1)
	go func() {
		v, err := Fetch(context.Background(), c, balanceQueryFor("0xshared", sharedFetch))
		require.NoError(t, err)
		direct <- v
	}()

	// Give the direct fetch time to enter the flight group.
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 5*time.Millisecond)

	done := make(chan FanOutResult[string, int], 1)
	go func() {
		done <- FanOut(context.Background(), c, []string{"0xshared"}, func(addr string) Query[int] {
			return balanceQueryFor(addr, sharedFetch)
		})
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)

	res := <-done
	assert.Equal(t, 7, res.Data["0xshared"])
	assert.Equal(t, 7, <-direct)

	// Both callers rode the same backend fetch.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFanOutContextExpiryReturnsPartialData(t *testing.T) {
	c := newTestCache()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := FanOut(ctx, c, []string{"0xfast", "0xslow"}, func(addr string) Query[int] {
		return balanceQueryFor(addr, func(ctx context.Context) (int, error) {
			if addr == "0xslow" {
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return 0, ctx.Err()
				}
			}
			return 1, nil
		})
	})

	assert.Contains(t, res.Data, "0xfast")
	assert.NotContains(t, res.Data, "0xslow")
}
