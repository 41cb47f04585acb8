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

package field

import (
	"errors"
	"testing"
)

// TestInverse verifies a * Inverse(a) == 1 for every nonzero element.
func TestInverse(t *testing.T) {
	for a := 1; a < Prime; a++ {
		inv, err := Inverse(a)
		if err != nil {
			t.Fatalf("Inverse(%d) returned error: %v", a, err)
		}
		if inv < 0 || inv >= Prime {
			t.Fatalf("Inverse(%d) = %d out of range", a, inv)
		}
		if Mul(a, inv) != 1 {
			t.Fatalf("Inverse(%d) = %d, product %d != 1", a, inv, Mul(a, inv))
		}
	}
}

func TestInverseOfZero(t *testing.T) {
	if _, err := Inverse(0); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("Inverse(0) error = %v, want ErrDivisionByZero", err)
	}
	// 257 is congruent to zero mod 257.
	if _, err := Inverse(Prime); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("Inverse(Prime) error = %v, want ErrDivisionByZero", err)
	}
}

func TestInverseNegativeInput(t *testing.T) {
	// -1 mod 257 is 256, which is its own inverse (256^2 = 1 mod 257).
	inv, err := Inverse(-1)
	if err != nil {
		t.Fatalf("Inverse(-1) returned error: %v", err)
	}
	if inv != 256 {
		t.Fatalf("Inverse(-1) = %d, want 256", inv)
	}
}

func TestAddSubMul(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"add wraps", Add(256, 1), 0},
		{"add plain", Add(100, 57), 157},
		{"sub negative", Sub(0, 1), 256},
		{"sub plain", Sub(200, 57), 143},
		{"mul wraps", Mul(256, 256), 1},
		{"mul zero", Mul(0, 123), 0},
		{"mul plain", Mul(16, 16), 256},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

// TestEvalPolynomial compares Horner's method against naive term-by-term
// evaluation for a selection of polynomials and points.
func TestEvalPolynomial(t *testing.T) {
	polys := [][]int{
		{42},
		{0, 1},
		{7, 13, 101},
		{255, 256, 1, 199, 88},
	}
	naive := func(coeffs []int, x int) int {
		result, pow := 0, 1
		for _, c := range coeffs {
			result = Add(result, Mul(c, pow))
			pow = Mul(pow, x)
		}
		return result
	}
	for _, coeffs := range polys {
		for x := 0; x < Prime; x += 17 {
			got := EvalPolynomial(coeffs, x)
			want := naive(coeffs, x)
			if got != want {
				t.Fatalf("EvalPolynomial(%v, %d) = %d, want %d", coeffs, x, got, want)
			}
		}
	}
}

func TestEvalPolynomialConstantTerm(t *testing.T) {
	// At x=0 the evaluation must recover the constant term exactly.
	coeffs := []int{123, 45, 67, 89}
	if got := EvalPolynomial(coeffs, 0); got != 123 {
		t.Fatalf("EvalPolynomial at x=0 = %d, want 123", got)
	}
}
