// Package keystore defines the external KeyStore collaborator named in
// spec.md §6. The actual key fetch/rotation service is deliberately out of
// scope (spec.md §1); this package only carries the contract plus a small
// in-memory implementation useful for tests and local development.
package keystore

import "sync"

// PrivateKey is the key material RequestCrypto needs to decapsulate a
// request or encapsulate a response.
type PrivateKey struct {
	KeyID  string
	Secret []byte
}

// Store looks up private keys by key id.
type Store interface {
	// GetPrivateKey returns the key for keyID, or ok=false if it isn't
	// known to the store (spec.md §4.1: absence is a fatal INVALID_ARGUMENT).
	GetPrivateKey(keyID string) (PrivateKey, bool)
}

// InMemory is a Store backed by a fixed map, useful for tests and for
// seeding a single active key in local development.
type InMemory struct {
	mu   sync.RWMutex
	keys map[string]PrivateKey
}

// NewInMemory returns an InMemory store seeded with keys.
func NewInMemory(keys ...PrivateKey) *InMemory {
	m := &InMemory{keys: make(map[string]PrivateKey, len(keys))}
	for _, k := range keys {
		m.keys[k.KeyID] = k
	}
	return m
}

func (s *InMemory) GetPrivateKey(keyID string) (PrivateKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[keyID]
	return k, ok
}

// Put adds or replaces a key, for rotation.
func (s *InMemory) Put(k PrivateKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.KeyID] = k
}
