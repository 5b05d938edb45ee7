// Package auth holds the shared credential for a run and refreshes it with
// single-flight semantics under concurrent demand.
package auth

import (
	"context"
	"sync"
	"time"
)

// Credential is an opaque server-issued token. The zero value is invalid.
type Credential struct {
	Token    string
	IssuedAt time.Time
}

// Endpoint performs the actual login against the remote auth surface.
type Endpoint interface {
	AcquireToken(ctx context.Context) (Credential, error)
}

type refresh struct {
	done chan struct{}
	cred Credential
	err  error
}

// TokenManager owns the credential. Jobs read it through Token and report
// server-side rejections through Invalidate; only the manager replaces it.
type TokenManager struct {
	endpoint Endpoint

	mu       sync.Mutex
	cred     Credential
	valid    bool
	inflight *refresh
}

func NewTokenManager(endpoint Endpoint) *TokenManager {
	return &TokenManager{endpoint: endpoint}
}

// Token returns the held credential, refreshing it first when none is valid.
// Concurrent callers during a refresh all wait on the same login attempt and
// share its result, success or failure. A caller whose context ends while
// waiting gets its context error; the refresh itself keeps going for the
// remaining waiters.
func (m *TokenManager) Token(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	if m.valid {
		cred := m.cred
		m.mu.Unlock()
		return cred, nil
	}
	r := m.inflight
	if r == nil {
		r = &refresh{done: make(chan struct{})}
		m.inflight = r
		// The login outlives the initiating caller: its context ending must
		// not poison the result the remaining waiters share.
		go m.doRefresh(context.WithoutCancel(ctx), r)
	}
	m.mu.Unlock()

	select {
	case <-r.done:
		return r.cred, r.err
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
}

func (m *TokenManager) doRefresh(ctx context.Context, r *refresh) {
	cred, err := m.endpoint.AcquireToken(ctx)

	m.mu.Lock()
	if err == nil {
		m.cred = cred
		m.valid = true
	}
	// Failed refreshes leave no partial state behind; the next Token call
	// starts a fresh attempt.
	m.inflight = nil
	m.mu.Unlock()

	r.cred, r.err = cred, err
	close(r.done)
}

// Invalidate drops the held credential, but only if it is still the one the
// caller used. A token refreshed by another job in the meantime survives.
func (m *TokenManager) Invalidate(token string) {
	m.mu.Lock()
	if m.valid && m.cred.Token == token {
		m.valid = false
		m.cred = Credential{}
	}
	m.mu.Unlock()
}

// HasValidToken reports whether a credential is currently held.
func (m *TokenManager) HasValidToken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}
