// Package session exchanges pool credentials for upstream access tokens
// and extracts the caller-subject identity carried in them.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/pysugar/enginelabs-gateway/internal/db/models"
	"github.com/pysugar/enginelabs-gateway/internal/upstream"
)

// reuseMargin keeps a cached token out of use once it is this close to
// expiry, so in-flight requests don't ride a token that dies mid-stream.
const reuseMargin = time.Minute

// Session is a resolved upstream identity for one credential.
type Session struct {
	Token   *oauth2.Token
	Subject string
}

// AccessToken returns the bearer token value.
func (s *Session) AccessToken() string {
	return s.Token.AccessToken
}

// Resolver exchanges credentials for access tokens, caching each resolved
// token per credential until it nears expiry. Any exchange or decode
// failure is an upstream-authentication failure: the caller must report
// the credential failed and surface the error; no alternate credential is
// tried within the same request.
type Resolver struct {
	client *upstream.Client

	mu    sync.Mutex
	cache map[string]*Session // keyed by credential ID
}

func NewResolver(client *upstream.Client) *Resolver {
	return &Resolver{
		client: client,
		cache:  make(map[string]*Session),
	}
}

// Resolve returns a live session for the credential, reusing the cached
// token while it remains valid.
func (r *Resolver) Resolve(ctx context.Context, authBase string, cred *models.Credential) (*Session, error) {
	r.mu.Lock()
	cached, ok := r.cache[cred.ID]
	r.mu.Unlock()
	if ok && cached.Token.Valid() && time.Until(cached.Token.Expiry) > reuseMargin {
		return cached, nil
	}

	sess, err := r.exchange(ctx, authBase, cred.SecretValue)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[cred.ID] = sess
	r.mu.Unlock()

	log.Printf("🎫 Resolved session for credential %s (expires %s)", cred.ID, sess.Token.Expiry.Format(time.RFC3339))
	return sess, nil
}

// Verify checks that a raw credential secret can be exchanged for a usable
// session. Used by the admin surface before persisting a new credential and
// by the manual test action; nothing is cached.
func (r *Resolver) Verify(ctx context.Context, authBase, secret string) error {
	_, err := r.exchange(ctx, authBase, secret)
	return err
}

func (r *Resolver) exchange(ctx context.Context, authBase, secret string) (*Session, error) {
	rawToken, err := r.client.ExchangeSession(ctx, authBase, secret)
	if err != nil {
		return nil, fmt.Errorf("upstream authentication failed: %w", err)
	}

	claims, err := ParseClaims(rawToken)
	if err != nil {
		return nil, fmt.Errorf("upstream authentication failed: %w", err)
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("upstream authentication failed: token has no subject claim")
	}

	return &Session{
		Token: &oauth2.Token{
			AccessToken: rawToken,
			TokenType:   "Bearer",
			Expiry:      time.Unix(claims.Exp, 0),
		},
		Subject: claims.Sub,
	}, nil
}

// Invalidate drops the cached session for a credential. Called when a
// request using the credential fails, so the next attempt re-exchanges.
func (r *Resolver) Invalidate(credentialID string) {
	r.mu.Lock()
	delete(r.cache, credentialID)
	r.mu.Unlock()
}
