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

package kms

import "errors"

var (
	// ErrRecordNotFound indicates no key record exists for the object
	// reference (or record ID) requested.
	ErrRecordNotFound = errors.New("kms: key record not found")

	// ErrNotAvailable indicates the key cannot be produced: the record
	// is revoked or rotated, or too few valid shares were provided to
	// meet the threshold.
	ErrNotAvailable = errors.New("kms: key not available")

	// ErrRecordExists indicates an active record already exists for the
	// object reference.
	ErrRecordExists = errors.New("kms: active key record already exists")

	// ErrInvalidRequest indicates malformed input such as an empty
	// object reference, empty key material, or invalid topology.
	ErrInvalidRequest = errors.New("kms: invalid request")

	// ErrStorage wraps storage backend failures.
	ErrStorage = errors.New("kms: storage failure")
)
