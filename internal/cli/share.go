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

package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-threshold-kms/pkg/crypto/secretsharing"
	"github.com/jeremyhahn/go-threshold-kms/pkg/kms"
	"github.com/spf13/cobra"
)

// formatShare renders a share as "index:hexpayload" for transport
// across the CLI boundary.
func formatShare(s kms.ProvidedShare) string {
	return fmt.Sprintf("%d:%s", s.Index, hex.EncodeToString(s.Payload))
}

// parseShare parses the "index:hexpayload" form.
func parseShare(text string) (kms.ProvidedShare, error) {
	idx, payload, ok := strings.Cut(text, ":")
	if !ok {
		return kms.ProvidedShare{}, fmt.Errorf("share %q is not in index:payload form", text)
	}
	index, err := strconv.Atoi(idx)
	if err != nil {
		return kms.ProvidedShare{}, fmt.Errorf("share index %q is not a number", idx)
	}
	data, err := hex.DecodeString(payload)
	if err != nil {
		return kms.ProvidedShare{}, fmt.Errorf("share payload is not valid hex: %w", err)
	}
	return kms.ProvidedShare{Index: index, Payload: data}, nil
}

func parseShares(texts []string) ([]kms.ProvidedShare, error) {
	shares := make([]kms.ProvidedShare, 0, len(texts))
	for _, text := range texts {
		share, err := parseShare(text)
		if err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}
	return shares, nil
}

// shareCmd groups the offline share operations
var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Split and combine secrets offline",
	Long: `Split a secret into Shamir shares or combine shares back into the
secret, without touching the key store.`,
}

var shareSplitCmd = &cobra.Command{
	Use:   "split <hex-secret>",
	Short: "Split a secret into n shares with threshold k",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printer := NewPrinter(outputFormat, os.Stdout)

		secret, err := hex.DecodeString(args[0])
		if err != nil {
			handleError(fmt.Errorf("secret is not valid hex: %w", err))
			return
		}
		n, _ := cmd.Flags().GetInt("shares")
		k, _ := cmd.Flags().GetInt("threshold")

		shares, err := secretsharing.Split(secret, n, k)
		if err != nil {
			handleError(err)
			return
		}

		out := make([]kms.ProvidedShare, 0, len(shares))
		for _, s := range shares {
			out = append(out, kms.ProvidedShare{Index: s.Index, Payload: s.Value})
		}
		if err := printer.PrintShares(out); err != nil {
			handleError(err)
		}
	},
}

var shareCombineCmd = &cobra.Command{
	Use:   "combine <share> [share...]",
	Short: "Reconstruct a secret from shares",
	Long:  `Reconstruct a secret from shares given as index:hexpayload arguments.`,
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		printer := NewPrinter(outputFormat, os.Stdout)

		provided, err := parseShares(args)
		if err != nil {
			handleError(err)
			return
		}

		shares := make([]secretsharing.Share, 0, len(provided))
		for _, p := range provided {
			shares = append(shares, secretsharing.Share{Index: p.Index, Value: p.Payload})
		}

		secret, err := secretsharing.Reconstruct(shares, shares[0].SecretLength())
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintSuccess(hex.EncodeToString(secret)); err != nil {
			handleError(err)
		}
	},
}

func init() {
	shareSplitCmd.Flags().IntP("shares", "n", 5, "number of shares to create")
	shareSplitCmd.Flags().IntP("threshold", "k", 3, "shares required to reconstruct")

	shareCmd.AddCommand(shareSplitCmd)
	shareCmd.AddCommand(shareCombineCmd)
}
