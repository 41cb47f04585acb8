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
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/jeremyhahn/go-threshold-kms/pkg/crypto/wrapping"
	"github.com/jeremyhahn/go-threshold-kms/pkg/kms"
	"github.com/jeremyhahn/go-threshold-kms/pkg/policy"
	"github.com/spf13/cobra"
)

// keyCmd groups the key lifecycle commands
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage object encryption keys",
	Long:  `Store, retrieve, revoke, rotate, and inspect object encryption keys`,
}

var keyStoreCmd = &cobra.Command{
	Use:   "store <object-ref>",
	Short: "Store a key, optionally split into shares",
	Long: `Store a key for an object. With --shares greater than 1 the key is
split with Shamir's Secret Sharing and the plaintext shares are printed
once for distribution; only wrapped copies are persisted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		objectRef := args[0]
		printer := NewPrinter(outputFormat, os.Stdout)

		keyHex, _ := cmd.Flags().GetString("key")
		n, _ := cmd.Flags().GetInt("shares")
		k, _ := cmd.Flags().GetInt("threshold")
		holders, _ := cmd.Flags().GetStringSlice("holders")

		var key []byte
		var err error
		if keyHex == "" {
			key, err = wrapping.GenerateKey()
			if err != nil {
				handleError(err)
				return
			}
			printVerbose("generated a fresh 256-bit key for %s", objectRef)
		} else {
			key, err = hex.DecodeString(keyHex)
			if err != nil {
				handleError(fmt.Errorf("key is not valid hex: %w", err))
				return
			}
		}

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		info, shares, err := a.keys.Store(context.Background(), objectRef, key, n, k, holders)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintKeyInfo(info); err != nil {
			handleError(err)
			return
		}
		if len(shares) > 0 {
			if err := printer.PrintShares(shares); err != nil {
				handleError(err)
			}
		}
	},
}

var keyRetrieveCmd = &cobra.Command{
	Use:   "retrieve <object-ref>",
	Short: "Retrieve a key, reconstructing from shares when split",
	Long: `Retrieve the key for an object. Split keys need --share flags
carrying at least the threshold number of shares, or none at all for the
administrative auto-collect path. When --principal is given the request
is first checked against the access policies.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		objectRef := args[0]
		printer := NewPrinter(outputFormat, os.Stdout)
		ctx := context.Background()

		shareTexts, _ := cmd.Flags().GetStringArray("share")
		principal, _ := cmd.Flags().GetString("principal")
		role, _ := cmd.Flags().GetString("role")
		owner, _ := cmd.Flags().GetString("owner")

		provided, err := parseShares(shareTexts)
		if err != nil {
			handleError(err)
			return
		}

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		if principal != "" {
			indices := make([]int, 0, len(provided))
			for _, p := range provided {
				indices = append(indices, p.Index)
			}
			allowed, reason, err := a.evaluator.CheckAccess(ctx, &policy.RequestContext{
				PrincipalID:          principal,
				Role:                 role,
				ObjectRef:            objectRef,
				OwnerID:              owner,
				Action:               "retrieve",
				ProvidedShareIndices: indices,
			})
			if err != nil {
				handleError(err)
				return
			}
			if !allowed {
				handleError(fmt.Errorf("access denied: %s", reason))
				return
			}
			printVerbose("access granted: %s", reason)
		}

		key, err := a.keys.Retrieve(ctx, objectRef, provided)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintSuccess(hex.EncodeToString(key)); err != nil {
			handleError(err)
		}
	},
}

var keyRevokeCmd = &cobra.Command{
	Use:   "revoke <object-ref>",
	Short: "Revoke the active key for an object",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		objectRef := args[0]
		printer := NewPrinter(outputFormat, os.Stdout)

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		revoked, err := a.keys.Revoke(context.Background(), objectRef)
		if err != nil {
			handleError(err)
			return
		}
		msg := fmt.Sprintf("Revoked key for %s", objectRef)
		if !revoked {
			msg = fmt.Sprintf("No active key for %s", objectRef)
		}
		if err := printer.PrintSuccess(msg); err != nil {
			handleError(err)
		}
	},
}

var keyRotateCmd = &cobra.Command{
	Use:   "rotate <object-ref>",
	Short: "Rotate the active key, preserving its share topology",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		objectRef := args[0]
		printer := NewPrinter(outputFormat, os.Stdout)

		keyHex, _ := cmd.Flags().GetString("key")
		var newKey []byte
		var err error
		if keyHex == "" {
			newKey, err = wrapping.GenerateKey()
			if err != nil {
				handleError(err)
				return
			}
		} else {
			newKey, err = hex.DecodeString(keyHex)
			if err != nil {
				handleError(fmt.Errorf("key is not valid hex: %w", err))
				return
			}
		}

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		info, shares, err := a.keys.Rotate(context.Background(), objectRef, newKey)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintKeyInfo(info); err != nil {
			handleError(err)
			return
		}
		if len(shares) > 0 {
			if err := printer.PrintShares(shares); err != nil {
				handleError(err)
			}
		}
	},
}

var keyDescribeCmd = &cobra.Command{
	Use:   "describe <object-ref>",
	Short: "Show the latest key record metadata for an object",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		objectRef := args[0]
		printer := NewPrinter(outputFormat, os.Stdout)

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		info, err := a.keys.Describe(context.Background(), objectRef)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintKeyInfo(info); err != nil {
			handleError(err)
		}
	},
}

var keyHistoryCmd = &cobra.Command{
	Use:   "history <object-ref>",
	Short: "Show every key generation for an object, newest first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		objectRef := args[0]
		printer := NewPrinter(outputFormat, os.Stdout)

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		infos, err := a.keys.History(context.Background(), objectRef)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintKeyInfoList(infos); err != nil {
			handleError(err)
		}
	},
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List key records",
	Run: func(cmd *cobra.Command, args []string) {
		printer := NewPrinter(outputFormat, os.Stdout)
		status, _ := cmd.Flags().GetString("status")

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		infos, err := a.keys.List(context.Background(), kms.Status(status))
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintKeyInfoList(infos); err != nil {
			handleError(err)
		}
	},
}

func init() {
	keyStoreCmd.Flags().String("key", "", "hex-encoded key material (generated when omitted)")
	keyStoreCmd.Flags().IntP("shares", "n", 1, "number of shares to split into (1 = no splitting)")
	keyStoreCmd.Flags().IntP("threshold", "k", 1, "shares required to reconstruct")
	keyStoreCmd.Flags().StringSlice("holders", nil, "holder IDs assigned to shares positionally")

	keyRetrieveCmd.Flags().StringArray("share", nil, "share as index:hexpayload (repeatable)")
	keyRetrieveCmd.Flags().String("principal", "", "principal requesting access (enables policy check)")
	keyRetrieveCmd.Flags().String("role", "", "role of the requesting principal")
	keyRetrieveCmd.Flags().String("owner", "", "owner of the object")

	keyRotateCmd.Flags().String("key", "", "hex-encoded replacement key (generated when omitted)")

	keyListCmd.Flags().String("status", "", "filter by status (active, revoked, rotated)")

	keyCmd.AddCommand(keyStoreCmd)
	keyCmd.AddCommand(keyRetrieveCmd)
	keyCmd.AddCommand(keyRevokeCmd)
	keyCmd.AddCommand(keyRotateCmd)
	keyCmd.AddCommand(keyDescribeCmd)
	keyCmd.AddCommand(keyHistoryCmd)
	keyCmd.AddCommand(keyListCmd)
}
