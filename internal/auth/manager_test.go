package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type fakeEndpoint struct {
	mu      sync.Mutex
	calls   atomic.Int64
	delay   time.Duration
	failNow bool
	next    int
}

func (f *fakeEndpoint) AcquireToken(ctx context.Context) (Credential, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Credential{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNow {
		return Credential{}, errors.New("login refused")
	}
	f.next++
	return Credential{Token: fmt.Sprintf("tok-%d", f.next), IssuedAt: time.Now()}, nil
}

func TestToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	ep := &fakeEndpoint{delay: 20 * time.Millisecond}
	m := NewTokenManager(ep)

	const callers = 16
	results := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := m.Token(context.Background())
			require.NoError(t, err)
			results <- cred.Token
		}()
	}
	wg.Wait()
	close(results)

	require.Equal(t, int64(1), ep.calls.Load(), "expected exactly one login for concurrent demand")
	for tok := range results {
		require.Equal(t, "tok-1", tok)
	}
}

func TestToken_RefreshFailureSharedByAllWaiters(t *testing.T) {
	ep := &fakeEndpoint{delay: 10 * time.Millisecond, failNow: true}
	m := NewTokenManager(ep)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Token(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	require.Equal(t, int64(1), ep.calls.Load())
	for err := range errs {
		require.Error(t, err)
	}
	require.False(t, m.HasValidToken(), "failed refresh must leave no partial state")

	// The next caller starts a fresh attempt.
	ep.mu.Lock()
	ep.failNow = false
	ep.mu.Unlock()
	cred, err := m.Token(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cred.Token)
}

func TestInvalidate_IsCompareAndInvalidate(t *testing.T) {
	ep := &fakeEndpoint{}
	m := NewTokenManager(ep)

	first, err := m.Token(context.Background())
	require.NoError(t, err)

	// Another job already rotated the credential.
	m.Invalidate(first.Token)
	second, err := m.Token(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	// A stale invalidation against the old token must not clobber the new one.
	m.Invalidate(first.Token)
	require.True(t, m.HasValidToken())

	third, err := m.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, second.Token, third.Token)
}

func TestToken_WaiterHonoursContextCancellation(t *testing.T) {
	ep := &fakeEndpoint{delay: 200 * time.Millisecond}
	m := NewTokenManager(ep)

	go func() {
		_, _ = m.Token(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Token(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestToken_RefreshSurvivesInitiatorCancellation(t *testing.T) {
	ep := &fakeEndpoint{delay: 30 * time.Millisecond}
	m := NewTokenManager(ep)

	shortCtx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := m.Token(shortCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The login the expired caller started must still complete and serve
	// the healthy waiters.
	cred, err := m.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", cred.Token)
	require.Equal(t, int64(1), ep.calls.Load(), "the shared login must not restart")
}
