package credential

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

type fakeRefresher struct {
	calls int64
	delay time.Duration
	err   error
	ttl   time.Duration
}

func (f *fakeRefresher) Refresh(ctx context.Context, audience string, prev *Credential) (*Credential, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	ttl := f.ttl
	if ttl == 0 {
		ttl = time.Hour
	}
	return &Credential{
		Token:     "tok",
		Audience:  audience,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func TestGetTokenCachesPerAudience(t *testing.T) {
	f := &fakeRefresher{}
	m := NewManager(f)

	first, err := m.GetToken(context.Background(), "records")
	require.NoError(t, err)
	second, err := m.GetToken(context.Background(), "records")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), atomic.LoadInt64(&f.calls))

	_, err = m.GetToken(context.Background(), "imaging")
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&f.calls), "audiences refresh independently")
}

func TestGetTokenSingleRefresh(t *testing.T) {
	f := &fakeRefresher{delay: 50 * time.Millisecond}
	m := NewManager(f)

	const n = 12
	var wg sync.WaitGroup
	tokens := make([]*Credential, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred, err := m.GetToken(context.Background(), "records")
			assert.NoError(t, err)
			tokens[i] = cred
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&f.calls), "exactly one refresh")
	for i := 1; i < n; i++ {
		assert.Same(t, tokens[0], tokens[i])
	}
}

func TestGetTokenRefreshFailureSharedByWaiters(t *testing.T) {
	f := &fakeRefresher{delay: 30 * time.Millisecond, err: errors.New("endpoint down")}
	m := NewManager(f)

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.GetToken(context.Background(), "records")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&f.calls))
	for i := 0; i < n; i++ {
		assert.ErrorIs(t, errs[i], ErrRefreshFailed)
	}
}

func TestExpiredCredentialRefreshes(t *testing.T) {
	f := &fakeRefresher{ttl: -time.Second} // already expired when handed out
	m := NewManager(f)

	_, err := m.GetToken(context.Background(), "records")
	require.NoError(t, err)
	_, err = m.GetToken(context.Background(), "records")
	require.NoError(t, err)

	assert.Equal(t, int64(2), atomic.LoadInt64(&f.calls))
}

func TestExpiredHelper(t *testing.T) {
	now := time.Now()
	assert.True(t, (*Credential)(nil).Expired(now))
	assert.True(t, (&Credential{ExpiresAt: now.Add(10 * time.Second)}).Expired(now), "inside slack window")
	assert.False(t, (&Credential{ExpiresAt: now.Add(10 * time.Minute)}).Expired(now))
}
