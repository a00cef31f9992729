// Package store defines the pluggable persistence contracts behind
// replay prevention and idempotent response caching, plus the
// in-memory implementations the reference deployment ships. Any
// backend satisfying the atomicity and expiry contracts is acceptable.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrJTIUsed is returned by JtiStore.Add when the grant id was already
// admitted and has not yet expired.
var ErrJTIUsed = errors.New("jti already used")

// JtiStore enforces single use of connect grants. Add must be an
// atomic check-and-insert: under concurrent admission of the same jti
// exactly one caller succeeds. An entry whose expiry has passed may be
// re-admitted.
type JtiStore interface {
	Has(ctx context.Context, jti string) (bool, error)
	Add(ctx context.Context, jti string, expiresAt time.Time) error
}

// IdempotencyEntry is the first response committed for a key.
type IdempotencyEntry struct {
	RequestHash  string
	ResponseJSON []byte
	ExpiresAt    time.Time
}

// IdempotencyStore caches one response per (key, org, tool). Get
// treats expired entries as absent. The store does not decide
// conflicts; the handshake compares request hashes.
type IdempotencyStore interface {
	Get(ctx context.Context, key, orgID, toolID string) (*IdempotencyEntry, error)
	Set(ctx context.Context, key, orgID, toolID string, entry IdempotencyEntry) error
}
