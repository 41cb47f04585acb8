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
	"os"

	"github.com/jeremyhahn/go-threshold-kms/pkg/audit"
	"github.com/spf13/cobra"
)

// auditCmd shows the decision log
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the access decision log",
	Long:  `List recorded access decisions, newest first, with optional filters.`,
	Run: func(cmd *cobra.Command, args []string) {
		printer := NewPrinter(outputFormat, os.Stdout)

		principal, _ := cmd.Flags().GetString("principal")
		objectRef, _ := cmd.Flags().GetString("object")
		decision, _ := cmd.Flags().GetString("decision")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			handleError(err)
			return
		}
		defer func() { _ = a.Close() }()

		events, err := a.recorder.Events(context.Background(), &audit.Query{
			PrincipalID: principal,
			ObjectRef:   objectRef,
			Decision:    decision,
			Limit:       limit,
		})
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintAuditEvents(events); err != nil {
			handleError(err)
		}
	},
}

func init() {
	auditCmd.Flags().String("principal", "", "filter by principal")
	auditCmd.Flags().String("object", "", "filter by object reference")
	auditCmd.Flags().String("decision", "", "filter by decision (allow, deny, require_shares, expired)")
	auditCmd.Flags().Int("limit", 50, "maximum number of events")
}
