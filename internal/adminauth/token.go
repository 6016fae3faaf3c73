// Package adminauth issues and verifies HMAC-signed session tokens for the
// admin operator. Tokens are JWT-shaped (header.payload.signature, HS256)
// so standard tooling can inspect them.
package adminauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var encodedHeader = base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))

type claims struct {
	Sub string `json:"sub"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

// Manager signs and verifies admin tokens with one process-wide secret.
type Manager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewManager(secret string, expiryDays int) *Manager {
	return &Manager{
		secret: []byte(secret),
		expiry: time.Duration(expiryDays) * 24 * time.Hour,
		now:    time.Now,
	}
}

// Issue creates a signed token for the given subject.
func (m *Manager) Issue(subject string) (string, error) {
	now := m.now()
	payload, err := json.Marshal(claims{
		Sub: subject,
		Iat: now.Unix(),
		Exp: now.Add(m.expiry).Unix(),
	})
	if err != nil {
		return "", err
	}

	signingInput := encodedHeader + "." + base64.RawURLEncoding.EncodeToString(payload)
	return signingInput + "." + m.sign(signingInput), nil
}

// Verify checks signature and expiry, returning the token's subject.
func (m *Manager) Verify(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid token format")
	}

	signingInput := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(m.sign(signingInput)), []byte(parts[2])) {
		return "", fmt.Errorf("invalid token signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid token payload")
	}
	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", fmt.Errorf("invalid token payload")
	}
	if c.Sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	if m.now().Unix() >= c.Exp {
		return "", fmt.Errorf("token expired")
	}
	return c.Sub, nil
}

func (m *Manager) sign(input string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(input))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
