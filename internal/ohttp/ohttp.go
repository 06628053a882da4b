// Package ohttp implements RequestCrypto (spec.md §4.1): the hybrid
// encryption envelope that carries the client's sealed payload to this
// service and the service's response back.
//
// The wire envelope is exactly spec.md §6's "Wire envelope (OHTTP)": one
// key-id byte followed by an encapsulated ciphertext. This package hand
// rolls a minimal symmetric envelope (an HMAC-SHA256 session key derived
// from the key's shared secret and a random salt, then an HMAC-SHA256
// XOR keystream) rather than depending on a full RFC 9180 implementation, since no HPKE
// library appears anywhere in the retrieved pack (see DESIGN.md) — the
// point preserved for testability is the *contract*: parse-key-id →
// key-lookup → decapsulate-once → [process] → encapsulate-once using the
// same context, which is exactly what spec.md §8's round-trip property
// checks.
package ohttp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/adxcore/sfe/internal/errortypes"
	"github.com/adxcore/sfe/internal/keystore"
)

// ErrMissingKeyID is returned when the ciphertext is too short to carry a
// key-id byte.
var ErrMissingKeyID = errors.New("ohttp: ciphertext too short to carry a key id")

// ParseKeyID extracts the one-byte key id from the front of an
// encapsulated request, per spec.md §4.1 step 1.
func ParseKeyID(encapsulated []byte) (string, error) {
	if len(encapsulated) < 1 {
		return "", ErrMissingKeyID
	}
	return fmt.Sprintf("%d", encapsulated[0]), nil
}

// Context is the single-use decapsulation context threaded from Decrypt
// through to Encrypt (spec.md §3 RequestCrypto context, §9 supplemented
// feature 4). It is consumed (zeroed) by Encrypt so a double-encrypt bug
// fails loudly instead of silently reusing key material.
type Context struct {
	keyID    string
	sessionKey []byte
	used     bool
}

func deriveSessionKey(secret []byte, keyID string, salt []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("sfe-ohttp-session|" + keyID + "|"))
	mac.Write(salt)
	return mac.Sum(nil)
}

func keystream(key []byte, n int) []byte {
	out := make([]byte, 0, n)
	counter := byte(0)
	for len(out) < n {
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte{counter})
		out = append(out, mac.Sum(nil)...)
		counter++
	}
	return out[:n]
}

func xorWithKeystream(key, data []byte) []byte {
	ks := keystream(key, len(data))
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ ks[i]
	}
	return out
}

// Crypto implements spec.md §4.1 against a KeyStore.
type Crypto struct {
	Keys keystore.Store
}

// New returns a Crypto using the given key store.
func New(keys keystore.Store) *Crypto {
	return &Crypto{Keys: keys}
}

// Decrypt parses the key id, looks up the private key, and decapsulates
// the ciphertext, returning the plaintext and a single-use Context to pass
// to Encrypt later. Per spec.md §4.1/§7, a missing key id or missing key
// is a fatal *errortypes.BadInput.
func (c *Crypto) Decrypt(encapsulated []byte) ([]byte, *Context, error) {
	keyID, err := ParseKeyID(encapsulated)
	if err != nil {
		return nil, nil, &errortypes.BadInput{Message: "invalid OHTTP key id"}
	}

	key, ok := c.Keys.GetPrivateKey(keyID)
	if !ok {
		return nil, nil, &errortypes.BadInput{Message: "missing private key"}
	}

	body := encapsulated[1:]
	if len(body) < sha256.Size {
		return nil, nil, &errortypes.BadInput{Message: "malformed encapsulated request"}
	}
	salt := body[:sha256.Size]
	sealed := body[sha256.Size:]

	sessionKey := deriveSessionKey(key.Secret, keyID, salt)
	plaintext := xorWithKeystream(sessionKey, sealed)

	return plaintext, &Context{keyID: keyID, sessionKey: sessionKey}, nil
}

// Encrypt encapsulates plaintext using ctx, the context produced by the
// matching Decrypt call, and the same key id. Per spec.md §4.1, this is
// at-most-once: calling it twice on the same Context returns an
// *errortypes.Internal error.
func (c *Crypto) Encrypt(plaintext []byte, ctx *Context) ([]byte, error) {
	if ctx == nil || ctx.used {
		return nil, &errortypes.Internal{Message: "ohttp context already consumed"}
	}
	key, ok := c.Keys.GetPrivateKey(ctx.keyID)
	if !ok {
		return nil, &errortypes.Internal{Message: "encryption key not found during response encryption"}
	}
	salt := make([]byte, sha256.Size)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, &errortypes.Internal{Message: "failed to generate response salt"}
	}
	sessionKey := deriveSessionKey(key.Secret, ctx.keyID, salt)
	sealed := xorWithKeystream(sessionKey, plaintext)

	ctx.used = true
	ctx.sessionKey = nil

	out := make([]byte, 0, 1+len(salt)+len(sealed))
	keyIDByte, err := keyIDToByte(ctx.keyID)
	if err != nil {
		return nil, &errortypes.Internal{Message: err.Error()}
	}
	out = append(out, keyIDByte)
	out = append(out, salt...)
	out = append(out, sealed...)
	return out, nil
}

func keyIDToByte(keyID string) (byte, error) {
	var v int
	if _, err := fmt.Sscanf(keyID, "%d", &v); err != nil || v < 0 || v > 255 {
		return 0, fmt.Errorf("key id %q does not fit a single byte", keyID)
	}
	return byte(v), nil
}

// SealForTest encapsulates plaintext the way a client would, for use in
// tests that exercise Crypto.Decrypt without a real client. It is the
// inverse of Encrypt/Decrypt's wire format, not part of the production
// request path.
func SealForTest(plaintext []byte, key keystore.PrivateKey) ([]byte, error) {
	keyIDByte, err := keyIDToByte(key.KeyID)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, sha256.Size)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	sessionKey := deriveSessionKey(key.Secret, key.KeyID, salt)
	sealed := xorWithKeystream(sessionKey, plaintext)

	out := make([]byte, 0, 1+len(salt)+len(sealed))
	out = append(out, keyIDByte)
	out = append(out, salt...)
	out = append(out, sealed...)
	return out, nil
}

// OpenForTest decapsulates a response produced by Encrypt, the way a
// client holding the same shared secret as key would. Test-only.
func OpenForTest(encapsulated []byte, key keystore.PrivateKey) ([]byte, error) {
	if len(encapsulated) < 1+sha256.Size {
		return nil, ErrMissingKeyID
	}
	body := encapsulated[1:]
	salt := body[:sha256.Size]
	sealed := body[sha256.Size:]
	sessionKey := deriveSessionKey(key.Secret, key.KeyID, salt)
	return xorWithKeystream(sessionKey, sealed), nil
}
