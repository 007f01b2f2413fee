// Package store centralizes every durable and ephemeral read/write behind
// one interface. No other package touches the underlying medium directly.
package store

import (
	"context"
	"encoding/json"
	"log"
)

// Scope selects the storage medium. Durable survives restarts and is shared
// across devices for the same user; Ephemeral expires with the session.
type Scope string

const (
	Durable   Scope = "durable"
	Ephemeral Scope = "ephemeral"
)

// Backend is a raw scoped key/value medium. Get returns (nil, nil) when the
// key is absent.
type Backend interface {
	Set(ctx context.Context, userID string, scope Scope, key string, value []byte) error
	Get(ctx context.Context, userID string, scope Scope, key string) ([]byte, error)
	Remove(ctx context.Context, userID string, scope Scope, key string) error
	Clear(ctx context.Context, userID string, scope Scope) error
}

type Store struct {
	durable   Backend
	ephemeral Backend
}

func New(durable Backend, ephemeral Backend) *Store {
	return &Store{
		durable:   durable,
		ephemeral: ephemeral,
	}
}

func (s *Store) backend(scope Scope) Backend {
	if scope == Ephemeral {
		return s.ephemeral
	}
	return s.durable
}

// Set serializes value and overwrites any prior value at key. Failures are
// logged and swallowed; callers must not assume the write succeeded.
func (s *Store) Set(ctx context.Context, scope Scope, userID string, key string, value interface{}) {
	b, err := json.Marshal(value)
	if err != nil {
		log.Printf("store: failed to serialize %v/%v for user %v: %v", scope, key, userID, err.Error())
		return
	}
	err = s.backend(scope).Set(ctx, userID, scope, key, b)
	if err != nil {
		log.Printf("store: failed to write %v/%v for user %v: %v", scope, key, userID, err.Error())
	}
}

// Get loads key into out and reports whether a usable value was found.
// Absent keys and corrupt stored content both read as "not found"; one bad
// row must never crash a session bootstrap.
func (s *Store) Get(ctx context.Context, scope Scope, userID string, key string, out interface{}) bool {
	b, err := s.backend(scope).Get(ctx, userID, scope, key)
	if err != nil {
		log.Printf("store: failed to read %v/%v for user %v: %v", scope, key, userID, err.Error())
		return false
	}
	if b == nil {
		return false
	}
	err = json.Unmarshal(b, out)
	if err != nil {
		log.Printf("store: corrupt value at %v/%v for user %v, treating as absent: %v", scope, key, userID, err.Error())
		return false
	}
	return true
}

func (s *Store) Remove(ctx context.Context, scope Scope, userID string, key string) error {
	return s.backend(scope).Remove(ctx, userID, scope, key)
}

func (s *Store) Clear(ctx context.Context, scope Scope, userID string) error {
	return s.backend(scope).Clear(ctx, userID, scope)
}
