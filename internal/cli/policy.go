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
	"fmt"
	"os"
	"time"

	"github.com/jeremyhahn/go-threshold-kms/pkg/policy"
	"github.com/spf13/cobra"
)

// policyCmd groups the policy management commands
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage access policies",
	Long:  `Create, list, inspect, delete, and test access policies`,
}

var policyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an access policy",
	Long: `Create an access policy. The --type flag selects the policy kind
(owner_only, admin_override, shared, time_limited, multi_party, custom);
the remaining flags are type-specific.`,
	Run: func(cmd *cobra.Command, args []string) {
		printer := NewPrinter(outputFormat, os.Stdout)

		objectRef, _ := cmd.Flags().GetString("object")
		typ, _ := cmd.Flags().GetString("type")
		priority, _ := cmd.Flags().GetInt("priority")
		principals, _ := cmd.Flags().GetStringSlice("principals")
		expiresIn, _ := cmd.Flags().GetDuration("expires-in")
		approvals, _ := cmd.Flags().GetInt("approvals")
		rule, _ := cmd.Flags().GetString("rule")
		createdBy, _ := cmd.Flags().GetString("created-by")
		disabled, _ := cmd.Flags().GetBool("disabled")

		p := &policy.Policy{
			ObjectRef:         objectRef,
			Type:              policy.Type(typ),
			Priority:          priority,
			AllowedPrincipals: principals,
			RequiredApprovals: approvals,
			Rule:              rule,
			CreatedBy:         createdBy,
			Enabled:           !disabled,
		}
		if expiresIn > 0 {
			at := time.Now().UTC().Add(expiresIn)
			p.ExpiresAt = &at
		}

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		created, err := a.policies.CreatePolicy(context.Background(), p)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintPolicy(created); err != nil {
			handleError(err)
		}
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List policies for an object, or global policies",
	Run: func(cmd *cobra.Command, args []string) {
		printer := NewPrinter(outputFormat, os.Stdout)
		objectRef, _ := cmd.Flags().GetString("object")

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		ctx := context.Background()
		var policies []*policy.Policy
		if objectRef == "" {
			policies, err = a.policies.ListGlobal(ctx)
		} else {
			policies, err = a.policies.ListForObject(ctx, objectRef)
		}
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintPolicyList(policies); err != nil {
			handleError(err)
		}
	},
}

var policyShowCmd = &cobra.Command{
	Use:   "show <policy-id>",
	Short: "Show one policy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printer := NewPrinter(outputFormat, os.Stdout)

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		p, err := a.policies.GetPolicy(context.Background(), args[0])
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintPolicy(p); err != nil {
			handleError(err)
		}
	},
}

var policyDeleteCmd = &cobra.Command{
	Use:   "delete <policy-id>",
	Short: "Delete a policy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printer := NewPrinter(outputFormat, os.Stdout)

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		if err := a.policies.DeletePolicy(context.Background(), args[0]); err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintSuccess(fmt.Sprintf("Deleted policy %s", args[0])); err != nil {
			handleError(err)
		}
	},
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <object-ref>",
	Short: "Evaluate an access request against the policies",
	Long: `Evaluate an access request and print the full decision, including
require_shares and expired outcomes. The check is recorded in the
decision log.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printer := NewPrinter(outputFormat, os.Stdout)

		principal, _ := cmd.Flags().GetString("principal")
		role, _ := cmd.Flags().GetString("role")
		owner, _ := cmd.Flags().GetString("owner")
		action, _ := cmd.Flags().GetString("action")
		shareCount, _ := cmd.Flags().GetInt("shares-provided")

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		indices := make([]int, shareCount)
		for i := range indices {
			indices[i] = i + 1
		}

		rc := &policy.RequestContext{
			PrincipalID:          principal,
			Role:                 role,
			ObjectRef:            args[0],
			OwnerID:              owner,
			Action:               action,
			ProvidedShareIndices: indices,
		}

		// policy check records its outcome like a real access attempt.
		result, err := a.evaluator.Check(context.Background(), rc)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintDecision(result); err != nil {
			handleError(err)
		}
	},
}

func init() {
	policyCreateCmd.Flags().String("object", "", "object reference (empty = global policy)")
	policyCreateCmd.Flags().String("type", "", "policy type (owner_only, admin_override, shared, time_limited, multi_party, custom)")
	policyCreateCmd.Flags().Int("priority", 0, "evaluation priority (higher first)")
	policyCreateCmd.Flags().StringSlice("principals", nil, "allowed principals (shared, time_limited)")
	policyCreateCmd.Flags().Duration("expires-in", 0, "grant lifetime from now (time_limited)")
	policyCreateCmd.Flags().Int("approvals", 0, "required share count (multi_party)")
	policyCreateCmd.Flags().String("rule", "", "rule expression (custom)")
	policyCreateCmd.Flags().String("created-by", "", "creating principal")
	policyCreateCmd.Flags().Bool("disabled", false, "create the policy disabled")

	policyListCmd.Flags().String("object", "", "object reference (empty = global policies)")

	policyCheckCmd.Flags().String("principal", "", "principal requesting access")
	policyCheckCmd.Flags().String("role", "", "role of the principal")
	policyCheckCmd.Flags().String("owner", "", "owner of the object")
	policyCheckCmd.Flags().String("action", "retrieve", "requested action")
	policyCheckCmd.Flags().Int("shares-provided", 0, "number of shares accompanying the request")

	policyCmd.AddCommand(policyCreateCmd)
	policyCmd.AddCommand(policyListCmd)
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyDeleteCmd)
	policyCmd.AddCommand(policyCheckCmd)
}
