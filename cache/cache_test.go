package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrFetchCachesWithinTTL(t *testing.T) {
	c := New(time.Minute)
	var calls int64
	fetch := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		return []byte(`{"n":1}`), nil
	}

	first, err := c.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)
	second, err := c.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	c := New(time.Minute)
	var calls int64
	gate := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		<-gate
		return []byte("v"), nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([][]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrFetch(context.Background(), "k", fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Let every caller pile onto the same flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "exactly one upstream fetch")
	for i := 0; i < n; i++ {
		assert.Equal(t, []byte("v"), results[i])
	}
}

func TestGetOrFetchErrorSharedNotCached(t *testing.T) {
	c := New(time.Minute)
	boom := errors.New("upstream down")
	var calls int64

	_, err := c.GetOrFetch(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	// A failure leaves nothing behind; the next call fetches again.
	v, err := c.GetOrFetch(context.Background(), "k", func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), v)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestExpiredEntryTriggersOneNewFetch(t *testing.T) {
	c := New(20 * time.Millisecond)
	var calls int64
	fetch := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		return []byte("v"), nil
	}

	_, err := c.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = c.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestKeyCanonicalization(t *testing.T) {
	a := Key("tool", map[string]interface{}{"x": 1, "y": "z"})
	b := Key("tool", map[string]interface{}{"y": "z", "x": 1})
	assert.Equal(t, a, b, "argument order must not change the key")

	c := Key("tool", map[string]interface{}{"x": 2, "y": "z"})
	assert.NotEqual(t, a, c)

	d := Key("other", map[string]interface{}{"x": 1, "y": "z"})
	assert.NotEqual(t, a, d)
}
