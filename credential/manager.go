// Package credential manages delegated access tokens for tools that read
// patient-specific records. One live credential is held per audience;
// refresh is single-flight, so concurrent consumers share one refresh and
// never observe a half-updated credential.
package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/medbridge-ai/medgate/logger"
	"github.com/medbridge-ai/medgate/types"
)

// ErrRefreshFailed wraps any refresh failure. Callers map it to the
// access-unavailable error surface; the underlying cause stays in logs.
var ErrRefreshFailed = errors.New("credential refresh failed")

// expirySlack refreshes tokens slightly before their actual expiry so a
// credential handed to a dispatcher is still valid when the connector uses it.
const expirySlack = 30 * time.Second

// Credential is a delegated access token for one audience.
type Credential struct {
	Token     string
	Audience  string
	ExpiresAt time.Time
	// RefreshMaterial is the opaque value the refresher needs to renew the
	// token (refresh token, assertion, ...). Never logged, never serialized.
	RefreshMaterial string
}

// Expired reports whether the credential is past (or within slack of) its
// expiry.
func (c *Credential) Expired(now time.Time) bool {
	return c == nil || !now.Add(expirySlack).Before(c.ExpiresAt)
}

// Refresher acquires a new credential for an audience. Implementations are
// stateless; the manager owns caching and concurrency.
type Refresher interface {
	Refresh(ctx context.Context, audience string, prev *Credential) (*Credential, error)
}

// Manager caches one credential per audience behind a single-flight
// refresh.
type Manager struct {
	mu        sync.RWMutex
	creds     map[string]*Credential
	refresher Refresher
	group     singleflight.Group
	log       *logger.Logger
}

// NewManager creates a manager backed by the given refresher.
func NewManager(r Refresher) *Manager {
	return &Manager{
		creds:     make(map[string]*Credential),
		refresher: r,
		log:       logger.Get().WithField("component", "credential"),
	}
}

// GetToken returns a live credential for audience, refreshing if the cached
// one is absent or expired. Concurrent callers for the same audience block
// on a single refresh and all receive the refreshed credential or the same
// refresh error.
func (m *Manager) GetToken(ctx context.Context, audience string) (*Credential, error) {
	m.mu.RLock()
	cred := m.creds[audience]
	m.mu.RUnlock()
	if !cred.Expired(time.Now()) {
		return cred, nil
	}

	v, err, _ := m.group.Do(audience, func() (interface{}, error) {
		// Re-check under the flight: a concurrent winner may have already
		// refreshed.
		m.mu.RLock()
		cur := m.creds[audience]
		m.mu.RUnlock()
		if !cur.Expired(time.Now()) {
			return cur, nil
		}

		fresh, err := m.refresher.Refresh(ctx, audience, cur)
		if err != nil {
			// The stale value stays marked expired; it is not corrupted,
			// just known-invalid.
			m.log.Error("refresh failed", err, map[string]interface{}{"audience": audience})
			return nil, fmt.Errorf("%w: audience %s: %v", ErrRefreshFailed, audience, err)
		}
		if fresh.Audience == "" {
			fresh.Audience = audience
		}
		m.mu.Lock()
		m.creds[audience] = fresh
		m.mu.Unlock()
		m.log.Info("credential refreshed", map[string]interface{}{
			"audience":  audience,
			"expiresAt": fresh.ExpiresAt,
		})
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential), nil
}

// AsGatewayError converts a refresh failure into the structured
// access-unavailable error clients see.
func AsGatewayError(err error) *types.GatewayError {
	ge := types.NewGatewayError(types.ErrorCodeAccessUnavailable,
		"delegated access is currently unavailable")
	if errors.Is(err, ErrRefreshFailed) {
		ge.Details["cause"] = types.ErrorCodeRefreshFailed
	}
	return ge
}
