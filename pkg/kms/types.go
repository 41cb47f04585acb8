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

// Package kms implements the threshold key management service: splitting
// object keys into Shamir shares, wrapping them at rest, and managing the
// key lifecycle (store, retrieve, revoke, rotate).
package kms

import "time"

// Status is the lifecycle state of a key record.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusRotated Status = "rotated"
)

// Share lifecycle states.
const (
	ShareActive  = "active"
	ShareUsed    = "used"
	ShareRevoked = "revoked"
)

// KeyRecord is the persisted form of a split key: the wrapped key
// material, its sharing topology, and lifecycle state. At most one
// record per object reference is active at a time.
type KeyRecord struct {
	ID          string     `json:"id"`
	ObjectRef   string     `json:"object_ref"`
	WrappedKey  string     `json:"wrapped_key"`
	TotalShares int        `json:"total_shares"`
	Threshold   int        `json:"threshold"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	Shares      []KeyShare `json:"shares"`
}

// KeyShare is one wrapped Shamir share belonging to a KeyRecord.
// Index is the field evaluation point (1-based) and identifies the
// share during reconstruction.
type KeyShare struct {
	Index        int    `json:"index"`
	WrappedShare string `json:"wrapped_share"`
	HolderID     string `json:"holder_id,omitempty"`
	Status       string `json:"status"`
}

// ActiveShares returns the record's shares still in active status.
func (r *KeyRecord) ActiveShares() []KeyShare {
	active := make([]KeyShare, 0, len(r.Shares))
	for _, s := range r.Shares {
		if s.Status == ShareActive {
			active = append(active, s)
		}
	}
	return active
}

// ShareByIndex returns the share with the given index, or nil.
func (r *KeyRecord) ShareByIndex(index int) *KeyShare {
	for i := range r.Shares {
		if r.Shares[i].Index == index {
			return &r.Shares[i]
		}
	}
	return nil
}

// KeyInfo is the metadata view of a record, safe to expose without
// revealing wrapped key material.
type KeyInfo struct {
	ID          string      `json:"id"`
	ObjectRef   string      `json:"object_ref"`
	TotalShares int         `json:"total_shares"`
	Threshold   int         `json:"threshold"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	RevokedAt   *time.Time  `json:"revoked_at,omitempty"`
	Shares      []ShareInfo `json:"shares"`
}

// ShareInfo is the metadata view of a share.
type ShareInfo struct {
	Index    int    `json:"index"`
	HolderID string `json:"holder_id,omitempty"`
	Status   string `json:"status"`
}

// Info returns the metadata view of the record.
func (r *KeyRecord) Info() *KeyInfo {
	info := &KeyInfo{
		ID:          r.ID,
		ObjectRef:   r.ObjectRef,
		TotalShares: r.TotalShares,
		Threshold:   r.Threshold,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		RevokedAt:   r.RevokedAt,
		Shares:      make([]ShareInfo, 0, len(r.Shares)),
	}
	for _, s := range r.Shares {
		info.Shares = append(info.Shares, ShareInfo{
			Index:    s.Index,
			HolderID: s.HolderID,
			Status:   s.Status,
		})
	}
	return info
}

// ProvidedShare is a caller-supplied share for reconstruction: the share
// index and the unwrapped field-encoded payload.
type ProvidedShare struct {
	Index   int
	Payload []byte
}
