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

package secretsharing

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/jeremyhahn/go-threshold-kms/pkg/crypto/field"
)

var (
	// ErrInvalidParameters indicates the n/k bounds are violated.
	ErrInvalidParameters = errors.New("secretsharing: invalid parameters")

	// ErrInsufficientShares indicates reconstruction was attempted with
	// fewer than the structural minimum of two shares.
	ErrInsufficientShares = errors.New("secretsharing: insufficient shares")

	// ErrShareLengthMismatch indicates the supplied shares do not decode
	// to the same number of field elements.
	ErrShareLengthMismatch = errors.New("secretsharing: share length mismatch")
)

// Share is one (index, payload) pair produced by Split. Index is the
// x-coordinate the per-byte polynomials were evaluated at (1..n). Value
// holds one 2-byte big-endian field element per secret byte, so
// len(Value) == 2*len(secret).
type Share struct {
	Index int
	Value []byte
}

// SecretLength returns the length of the secret this share was derived
// from, based on the fixed 2-bytes-per-element encoding.
func (s Share) SecretLength() int {
	return len(s.Value) / 2
}

var prime = big.NewInt(field.Prime)

// Split divides a secret into n shares of which any k reconstruct it.
//
// For every byte of the secret a fresh degree-(k-1) polynomial over
// GF(257) is drawn with the secret byte as its constant term and k-1
// cryptographically random higher-order coefficients, then evaluated at
// x = 1..n. Share i's payload is the concatenation of its per-byte
// y-values, each encoded as a 2-byte big-endian field (values may be 256,
// which does not fit one byte).
//
// Preconditions: 2 <= k <= n <= 255 and a non-empty secret; violations
// return ErrInvalidParameters naming the offending bound.
func Split(secret []byte, n, k int) ([]Share, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: threshold k must be at least 2, got %d", ErrInvalidParameters, k)
	}
	if k > n {
		return nil, fmt.Errorf("%w: threshold k (%d) cannot exceed total shares n (%d)", ErrInvalidParameters, k, n)
	}
	if n > 255 {
		return nil, fmt.Errorf("%w: maximum 255 shares supported, got %d", ErrInvalidParameters, n)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: secret cannot be empty", ErrInvalidParameters)
	}

	shares := make([]Share, n)
	for i := range shares {
		shares[i].Index = i + 1
		shares[i].Value = make([]byte, 0, 2*len(secret))
	}

	coeffs := make([]int, k)
	for _, b := range secret {
		coeffs[0] = int(b)
		for j := 1; j < k; j++ {
			c, err := rand.Int(rand.Reader, prime)
			if err != nil {
				return nil, fmt.Errorf("secretsharing: failed to generate random coefficients: %w", err)
			}
			coeffs[j] = int(c.Int64())
		}

		for i := range shares {
			y := field.EvalPolynomial(coeffs, shares[i].Index)
			shares[i].Value = binary.BigEndian.AppendUint16(shares[i].Value, uint16(y))
		}
	}

	return shares, nil
}

// Reconstruct recovers a secret of secretLength bytes from the supplied
// shares using Lagrange interpolation at x=0 over GF(257).
//
// At least two shares are required and all shares must decode to the
// same element count. Supplying more shares than the scheme's threshold
// is accepted; any valid subset of size >= k yields the same secret.
// Reconstruct itself cannot know the original threshold, so callers that
// do (see the kms package) must gate on it before calling.
func Reconstruct(shares []Share, secretLength int) ([]byte, error) {
	if len(shares) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 shares, got %d", ErrInsufficientShares, len(shares))
	}

	decoded := make([][]int, len(shares))
	xs := make([]int, len(shares))
	seen := make(map[int]bool, len(shares))
	for i, s := range shares {
		if s.Index < 1 || s.Index > 255 {
			return nil, fmt.Errorf("%w: share index %d out of range", ErrInvalidParameters, s.Index)
		}
		if seen[s.Index] {
			return nil, fmt.Errorf("%w: duplicate share index %d", ErrInvalidParameters, s.Index)
		}
		seen[s.Index] = true

		values, err := decodeShare(s.Value)
		if err != nil {
			return nil, err
		}
		decoded[i] = values
		xs[i] = s.Index
	}

	elements := len(decoded[0])
	for i, values := range decoded {
		if len(values) != elements {
			return nil, fmt.Errorf("%w: share %d has %d elements, expected %d",
				ErrShareLengthMismatch, shares[i].Index, len(values), elements)
		}
	}
	if secretLength > elements {
		return nil, fmt.Errorf("%w: shares carry %d elements, %d requested",
			ErrShareLengthMismatch, elements, secretLength)
	}

	// The Lagrange basis at x=0 depends only on the x-coordinates, so it
	// is computed once and reused for every byte position.
	basis := make([]int, len(xs))
	for i, xi := range xs {
		num, den := 1, 1
		for j, xj := range xs {
			if i == j {
				continue
			}
			num = field.Mul(num, field.Sub(0, xj))
			den = field.Mul(den, field.Sub(xi, xj))
		}
		inv, err := field.Inverse(den)
		if err != nil {
			return nil, fmt.Errorf("secretsharing: %w", err)
		}
		basis[i] = field.Mul(num, inv)
	}

	secret := make([]byte, secretLength)
	for pos := 0; pos < secretLength; pos++ {
		b := 0
		for i := range decoded {
			b = field.Add(b, field.Mul(decoded[i][pos], basis[i]))
		}
		secret[pos] = byte(b)
	}

	return secret, nil
}

// decodeShare unpacks a share payload into its field-element sequence.
func decodeShare(data []byte) ([]int, error) {
	if len(data) == 0 || len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: payload of %d bytes is not a sequence of 2-byte elements",
			ErrShareLengthMismatch, len(data))
	}
	values := make([]int, len(data)/2)
	for i := range values {
		values[i] = int(binary.BigEndian.Uint16(data[2*i:]))
	}
	return values, nil
}
