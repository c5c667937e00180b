// Package store holds the authorization server's state: short-lived
// challenge and code records in an ephemeral key-value store, and durable
// refresh tokens and consent records.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound covers missing, expired and already-consumed entries alike.
var ErrNotFound = errors.New("not found")

// Ephemeral is a key-value store with TTL and an atomic get-and-delete.
type Ephemeral interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Take returns the value and deletes the key in one atomic step. Of N
	// concurrent callers on the same key at most one receives the value.
	Take(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Record key prefixes; keys are <TYPE>_<tenant>_<id>.
const (
	TypeLogin   = "LOGIN"
	TypeConsent = "CONSENT"
	TypeCode    = "CODE"
)

func Key(typ, tenantID, id string) string {
	return typ + "_" + tenantID + "_" + id
}
