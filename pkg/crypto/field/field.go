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

// Package field implements arithmetic over the prime field GF(257).
//
// 257 is the smallest prime strictly greater than 255, so every byte
// value 0-255 is a distinct field element and no byte collides with
// the reduction at p-1. Field elements are carried as plain ints in
// the range [0, 257); intermediate products stay well inside int range.
package field

import "errors"

// Prime is the field modulus. Polynomial evaluations and Lagrange
// interpolation in the secret sharing scheme are performed mod Prime.
const Prime = 257

// ErrDivisionByZero is returned when the multiplicative inverse of the
// additive identity is requested.
var ErrDivisionByZero = errors.New("field: division by zero")

// Add returns (a + b) mod Prime.
func Add(a, b int) int {
	return mod(a + b)
}

// Sub returns (a - b) mod Prime.
func Sub(a, b int) int {
	return mod(a - b)
}

// Mul returns (a * b) mod Prime.
func Mul(a, b int) int {
	return mod(mod(a) * mod(b))
}

// Inverse computes the multiplicative inverse of a mod Prime using the
// extended Euclidean algorithm. Returns ErrDivisionByZero when a is
// congruent to zero.
func Inverse(a int) (int, error) {
	a = mod(a)
	if a == 0 {
		return 0, ErrDivisionByZero
	}

	lm, hm := 1, 0
	low, high := a, Prime
	for low > 1 {
		ratio := high / low
		nm := hm - lm*ratio
		nw := high - low*ratio
		lm, low, hm, high = nm, nw, lm, low
	}
	return mod(lm), nil
}

// EvalPolynomial evaluates the polynomial with the given coefficients
// (ascending degree order, coeffs[0] is the constant term) at point x
// using Horner's method mod Prime.
func EvalPolynomial(coeffs []int, x int) int {
	result := 0
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = mod(result*x + coeffs[i])
	}
	return result
}

// mod reduces v into [0, Prime), handling negative values.
func mod(v int) int {
	v %= Prime
	if v < 0 {
		v += Prime
	}
	return v
}
