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

package wrapping

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// XChaCha20Poly1305 is a Service backed by XChaCha20-Poly1305. The
// 24-byte nonce makes random nonce generation safe without counter
// management, which fits the wrap-per-call token model. Useful on hosts
// without AES hardware acceleration.
type XChaCha20Poly1305 struct {
	aead cipher.AEAD
}

// NewXChaCha20Poly1305 creates an XChaCha20-Poly1305 wrapping service.
// The master key must be exactly 32 bytes.
func NewXChaCha20Poly1305(masterKey []byte) (*XChaCha20Poly1305, error) {
	if len(masterKey) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("wrapping: XChaCha20 master key must be %d bytes, got %d",
			chacha20poly1305.KeySize, len(masterKey))
	}

	aead, err := chacha20poly1305.NewX(masterKey)
	if err != nil {
		return nil, fmt.Errorf("wrapping: failed to create XChaCha20-Poly1305: %w", err)
	}

	return &XChaCha20Poly1305{aead: aead}, nil
}

// Wrap encrypts key material under a fresh random 24-byte nonce.
func (w *XChaCha20Poly1305) Wrap(material []byte) (string, error) {
	if len(material) == 0 {
		return "", fmt.Errorf("wrapping: material cannot be empty")
	}

	nonce := make([]byte, w.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("wrapping: failed to generate nonce: %w", err)
	}

	ciphertext := w.aead.Seal(nil, nonce, material, nil)
	return encodeToken(nonce, ciphertext), nil
}

// Unwrap authenticates and decrypts a token produced by Wrap.
func (w *XChaCha20Poly1305) Unwrap(token string) ([]byte, error) {
	nonce, ciphertext, err := decodeToken(token, w.aead.NonceSize())
	if err != nil {
		return nil, err
	}

	material, err := w.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrInvalidToken)
	}
	return material, nil
}
