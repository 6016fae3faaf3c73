// Package pool implements the credential pool: selection of a healthy
// upstream credential per request and failure accounting across requests.
package pool

import (
	"log"
	"math/rand"
	"strings"

	"github.com/pysugar/enginelabs-gateway/internal/db"
	"github.com/pysugar/enginelabs-gateway/internal/db/models"
)

// Strategy selects which valid credential serves a request.
type Strategy int

const (
	// Sequential picks the first valid credential in creation order.
	Sequential Strategy = iota
	// Random picks uniformly among valid credentials.
	Random
)

// ParseStrategy maps the stored strategy name to its variant. Unknown
// values fall back to Sequential.
func ParseStrategy(s string) Strategy {
	if strings.EqualFold(strings.TrimSpace(s), "random") {
		return Random
	}
	return Sequential
}

func (s Strategy) String() string {
	if s == Random {
		return "random"
	}
	return "sequential"
}

// Pool owns credential selection and health state. It is constructed once
// at startup and injected into the request handlers.
type Pool struct {
	creds     *db.CredentialStore
	threshold func() int
}

// New creates a pool. threshold is read per failure report so an admin
// settings change takes effect without a restart.
func New(creds *db.CredentialStore, threshold func() int) *Pool {
	return &Pool{creds: creds, threshold: threshold}
}

// Select returns a credential per the strategy, or nil when no valid
// credential exists. A nil result is capacity exhaustion: the caller must
// answer 503 without attempting an upstream call.
func (p *Pool) Select(strategy Strategy) (*models.Credential, error) {
	valid, err := p.creds.ListValid()
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return nil, nil
	}
	switch strategy {
	case Random:
		return &valid[rand.Intn(len(valid))], nil
	default:
		return &valid[0], nil
	}
}

// ReportFailure counts one failure against the credential and disables it
// once the configured threshold is reached. Concurrent reports from
// overlapping requests are all counted.
func (p *Pool) ReportFailure(credentialID string) {
	cred, err := p.creds.IncrementFailure(credentialID, p.threshold())
	if err != nil {
		log.Printf("⚠️ Failed to record credential failure for %s: %v", credentialID, err)
		return
	}
	if cred.IsValid {
		log.Printf("🔻 Credential %s failure count: %d", cred.ID, cred.FailCount)
	} else {
		log.Printf("🚫 Credential %s disabled after %d failures", cred.ID, cred.FailCount)
	}
}

// ReportSuccess resets the credential's failure state. Only the manual
// validation action calls this; normal traffic never does.
func (p *Pool) ReportSuccess(credentialID string) error {
	return p.creds.ResetFailure(credentialID)
}
