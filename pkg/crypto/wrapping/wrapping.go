// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-threshold-kms.
//
// go-threshold-kms is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package wrapping provides the key-wrapping service used to persist raw
// key material at rest. A wrapped token is an opaque, URL-safe string
// produced by an AEAD cipher under a master key; the same input wraps
// differently on every call (random nonce) but always round-trips under
// the same master key.
//
// The service is a value injected into consumers, never a process-wide
// singleton, so tests can substitute a deterministic fake.
package wrapping

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned when a token is corrupted, truncated, or
// was produced under a different master key.
var ErrInvalidToken = errors.New("wrapping: invalid token")

// Service wraps raw key material into opaque tokens safe to persist and
// unwraps them back. Implementations must be safe for concurrent use.
type Service interface {
	// Wrap encrypts key material and returns an opaque token.
	// Wrapping is non-deterministic: two calls on the same input
	// produce different tokens.
	Wrap(material []byte) (string, error)

	// Unwrap recovers the raw key material from a token. Returns
	// ErrInvalidToken if the token is malformed or foreign-keyed.
	Unwrap(token string) ([]byte, error)
}

// KeySize is the size in bytes of generated symmetric keys (AES-256).
const KeySize = 32

// GenerateKey returns a fresh 256-bit symmetric key from the system's
// cryptographically secure random source.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("wrapping: failed to generate key: %w", err)
	}
	return key, nil
}

// tokenEncoding is the URL-safe, unpadded alphabet used for tokens.
var tokenEncoding = base64.RawURLEncoding

// encodeToken serializes nonce||ciphertext into an opaque token string.
func encodeToken(nonce, ciphertext []byte) string {
	buf := make([]byte, 0, len(nonce)+len(ciphertext))
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)
	return tokenEncoding.EncodeToString(buf)
}

// decodeToken splits a token back into its nonce and ciphertext parts.
func decodeToken(token string, nonceSize int) (nonce, ciphertext []byte, err error) {
	raw, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(raw) <= nonceSize {
		return nil, nil, fmt.Errorf("%w: token too short", ErrInvalidToken)
	}
	return raw[:nonceSize], raw[nonceSize:], nil
}
