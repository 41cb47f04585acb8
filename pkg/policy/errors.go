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

package policy

import "errors"

var (
	// ErrPolicyNotFound indicates the requested policy does not exist.
	ErrPolicyNotFound = errors.New("policy: not found")

	// ErrInvalidPolicy indicates the policy is malformed: unknown type,
	// missing type-specific parameters, or an unparseable custom rule.
	ErrInvalidPolicy = errors.New("policy: invalid policy")

	// ErrInvalidContext indicates the request context is unusable (nil,
	// or missing the principal or object reference). This is a
	// programmer error and, unlike rule-content problems, propagates to
	// the caller.
	ErrInvalidContext = errors.New("policy: invalid request context")
)
