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

package secretsharing_test

import (
	"fmt"
	"log"

	"github.com/jeremyhahn/go-threshold-kms/pkg/crypto/secretsharing"
)

// ExampleSplit demonstrates splitting a key into 5 shares where any 3
// reconstruct it.
func ExampleSplit() {
	secret := []byte("my encryption key")

	shares, err := secretsharing.Split(secret, 5, 3)
	if err != nil {
		log.Fatal(err)
	}

	// Hand shares to custodians; here we use shares 1, 3 and 5.
	subset := []secretsharing.Share{shares[0], shares[2], shares[4]}

	recovered, err := secretsharing.Reconstruct(subset, len(secret))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("shares: %d, recovered: %s\n", len(shares), recovered)
	// Output: shares: 5, recovered: my encryption key
}
