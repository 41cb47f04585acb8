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

// Package secretsharing implements Shamir's Secret Sharing Scheme over
// the prime field GF(257).
//
// A secret is divided into N shares of which any K (the threshold) can
// reconstruct the original, while K-1 or fewer shares reveal no
// information about it. Each secret byte is the constant term of an
// independent random polynomial of degree K-1; shares are the polynomial
// evaluations at x = 1..N.
//
// The prime 257 keeps every byte value a distinct field element at the
// cost of y-values that can reach 256, so share payloads encode each
// element as a fixed-width 2-byte big-endian field: a share is exactly
// twice the length of the secret. This is a deliberate simplicity
// tradeoff, not an optimization target.
//
// Example:
//
//	shares, err := secretsharing.Split(secret, 5, 3)
//	if err != nil {
//		return err
//	}
//	// Any 3 of the 5 shares recover the secret.
//	recovered, err := secretsharing.Reconstruct(shares[:3], len(secret))
package secretsharing
