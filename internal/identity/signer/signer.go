// Package signer produces the timestamp and HMAC signature that authenticate
// each request to the identity provider.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrMissingSecret = errors.New("signing secret is not configured")

// Signature is the pair sent alongside every verification request.
type Signature struct {
	Timestamp string
	Signature string
}

type Signer struct {
	now func() time.Time
}

type Option func(*Signer)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Signer {
	s := &Signer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign stamps the current time and signs it with secret. Signatures are never
// cached; each call reads the clock again.
func (s *Signer) Sign(secret string) (Signature, error) {
	if secret == "" {
		return Signature{}, ErrMissingSecret
	}
	ts := s.now().UTC().Format(TimestampLayout)
	return Signature{Timestamp: ts, Signature: Compute(secret, ts)}, nil
}

// Compute returns base64(HMAC-SHA256(secret, timestamp)).
func Compute(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches timestamp under secret.
func Verify(secret, timestamp, signature string) bool {
	if secret == "" {
		return false
	}
	return hmac.Equal([]byte(Compute(secret, timestamp)), []byte(signature))
}
