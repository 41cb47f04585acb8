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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeremyhahn/go-threshold-kms/pkg/audit"
	"github.com/jeremyhahn/go-threshold-kms/pkg/kms"
	"github.com/jeremyhahn/go-threshold-kms/pkg/policy"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

func (p *Printer) printJSON(v interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(msg string) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]interface{}{"status": "ok", "message": msg})
	}
	_, err := fmt.Fprintln(p.writer, msg)
	return err
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(map[string]interface{}{"status": "error", "error": err.Error()})
	}
	_, werr := fmt.Fprintf(p.writer, "Error: %v\n", err)
	return werr
}

// PrintKeyInfo prints one key record's metadata
func (p *Printer) PrintKeyInfo(info *kms.KeyInfo) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(info)
	}
	fmt.Fprintf(p.writer, "Object:    %s\n", info.ObjectRef)
	fmt.Fprintf(p.writer, "Record:    %s\n", info.ID)
	fmt.Fprintf(p.writer, "Status:    %s\n", info.Status)
	fmt.Fprintf(p.writer, "Shares:    %d (threshold %d)\n", info.TotalShares, info.Threshold)
	fmt.Fprintf(p.writer, "Created:   %s\n", info.CreatedAt.Format(time.RFC3339))
	if info.RevokedAt != nil {
		fmt.Fprintf(p.writer, "Revoked:   %s\n", info.RevokedAt.Format(time.RFC3339))
	}
	for _, share := range info.Shares {
		holder := share.HolderID
		if holder == "" {
			holder = "-"
		}
		fmt.Fprintf(p.writer, "  share %d: holder=%s status=%s\n", share.Index, holder, share.Status)
	}
	return nil
}

// PrintKeyInfoList prints key record metadata as a listing
func (p *Printer) PrintKeyInfoList(infos []*kms.KeyInfo) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(p.writer, "No key records found")
		return nil
	}
	for i, info := range infos {
		if i > 0 {
			fmt.Fprintln(p.writer, strings.Repeat("-", 40))
		}
		if err := p.PrintKeyInfo(info); err != nil {
			return err
		}
	}
	return nil
}

// PrintShares prints distributable plaintext shares
func (p *Printer) PrintShares(shares []kms.ProvidedShare) error {
	if p.format == OutputFormatJSON {
		out := make([]map[string]interface{}, 0, len(shares))
		for _, s := range shares {
			out = append(out, map[string]interface{}{
				"share": formatShare(s),
			})
		}
		return p.printJSON(map[string]interface{}{"shares": out})
	}
	fmt.Fprintln(p.writer, "Distribute these shares to their holders; they are not stored in recoverable form:")
	for _, s := range shares {
		fmt.Fprintf(p.writer, "  %s\n", formatShare(s))
	}
	return nil
}

// PrintPolicy prints one policy
func (p *Printer) PrintPolicy(pol *policy.Policy) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(pol)
	}
	scope := pol.ObjectRef
	if scope == "" {
		scope = "(global)"
	}
	fmt.Fprintf(p.writer, "Policy:    %s\n", pol.ID)
	fmt.Fprintf(p.writer, "Scope:     %s\n", scope)
	fmt.Fprintf(p.writer, "Type:      %s\n", pol.Type)
	fmt.Fprintf(p.writer, "Priority:  %d\n", pol.Priority)
	fmt.Fprintf(p.writer, "Enabled:   %t\n", pol.Enabled)
	if len(pol.AllowedPrincipals) > 0 {
		fmt.Fprintf(p.writer, "Allowed:   %s\n", strings.Join(pol.AllowedPrincipals, ", "))
	}
	if pol.ExpiresAt != nil {
		fmt.Fprintf(p.writer, "Expires:   %s\n", pol.ExpiresAt.Format(time.RFC3339))
	}
	if pol.RequiredApprovals > 0 {
		fmt.Fprintf(p.writer, "Approvals: %d\n", pol.RequiredApprovals)
	}
	if pol.Rule != "" {
		fmt.Fprintf(p.writer, "Rule:      %s\n", pol.Rule)
	}
	return nil
}

// PrintPolicyList prints policies as a listing
func (p *Printer) PrintPolicyList(policies []*policy.Policy) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(policies)
	}
	if len(policies) == 0 {
		fmt.Fprintln(p.writer, "No policies found")
		return nil
	}
	for i, pol := range policies {
		if i > 0 {
			fmt.Fprintln(p.writer, strings.Repeat("-", 40))
		}
		if err := p.PrintPolicy(pol); err != nil {
			return err
		}
	}
	return nil
}

// PrintDecision prints an access decision
func (p *Printer) PrintDecision(result *policy.Result) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(result)
	}
	fmt.Fprintf(p.writer, "Decision: %s\n", result.Decision)
	fmt.Fprintf(p.writer, "Reason:   %s\n", result.Reason)
	if result.PolicyID != "" {
		fmt.Fprintf(p.writer, "Policy:   %s\n", result.PolicyID)
	}
	return nil
}

// PrintAuditEvents prints decision log entries
func (p *Printer) PrintAuditEvents(events []*audit.Event) error {
	if p.format == OutputFormatJSON {
		return p.printJSON(events)
	}
	if len(events) == 0 {
		fmt.Fprintln(p.writer, "No audit events found")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(p.writer, "%s  %-14s %s %s on %s: %s\n",
			e.Timestamp.Format(time.RFC3339), e.Decision, e.PrincipalID, e.Action, e.ObjectRef, e.Reason)
	}
	return nil
}
