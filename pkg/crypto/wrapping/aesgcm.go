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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// AESGCM is a Service backed by AES-GCM under a caller-supplied master
// key. Tokens are base64url(nonce || ciphertext).
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM creates an AES-GCM wrapping service. The master key must be
// 16, 24, or 32 bytes (AES-128/192/256).
func NewAESGCM(masterKey []byte) (*AESGCM, error) {
	switch len(masterKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("wrapping: AES master key must be 16, 24, or 32 bytes, got %d", len(masterKey))
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("wrapping: failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wrapping: failed to create GCM: %w", err)
	}

	return &AESGCM{aead: aead}, nil
}

// Wrap encrypts key material under a fresh random nonce.
func (w *AESGCM) Wrap(material []byte) (string, error) {
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
func (w *AESGCM) Unwrap(token string) ([]byte, error) {
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
