/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Field order in these structs is the canonical serialization order; the
// integrity hashes are computed over exactly this layout.

type Totals struct {
	Items          int64 `json:"items"`
	Successful     int64 `json:"successful"`
	Failed         int64 `json:"failed"`
	Bytes          int64 `json:"bytes"`
	EstimatedBytes int64 `json:"estimated_bytes"`
}

type Entry struct {
	SourceItemId  string `json:"source_item_id"`
	ItemType      string `json:"item_type"`
	Subject       string `json:"subject,omitempty"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
	ItemDate      string `json:"item_date,omitempty"`
	CollectedAt   string `json:"collected_at"`
	SizeBytes     int64  `json:"size_bytes"`
	Sha256        string `json:"sha256"`
	ArtifactPath  string `json:"artifact_path,omitempty"`
	IsSuccessful  bool   `json:"is_successful"`
	Error         string `json:"error,omitempty"`
	Sequence      int64  `json:"sequence"`
	Custodian     string `json:"custodian"`
	CorrelationId string `json:"correlation_id,omitempty"`
}

type Integrity struct {
	HashAlgo              string `json:"hash_algo"`
	ItemsHash             string `json:"items_hash"`
	ManifestHash          string `json:"manifest_hash"`
	SignatureAlgo         string `json:"signature_algo,omitempty"`
	Signature             string `json:"signature,omitempty"`
	SigningCertThumbprint string `json:"signing_cert_thumbprint,omitempty"`
	ImmutablePolicyId     string `json:"immutable_policy_id,omitempty"`
	WormCompliant         bool   `json:"worm_compliant"`
}

type Manifest struct {
	ManifestId  string    `json:"manifest_id"`
	JobId       int64     `json:"job_id"`
	MatterId    int64     `json:"matter_id"`
	Custodian   string    `json:"custodian"`
	JobType     string    `json:"job_type"`
	Route       string    `json:"route"`
	StartedAt   string    `json:"started_at,omitempty"`
	EndedAt     string    `json:"ended_at,omitempty"`
	CreatedAt   string    `json:"created_at"`
	FinalizedAt string    `json:"finalized_at"`
	Totals      Totals    `json:"totals"`
	Items       []Entry   `json:"items"`
	Integrity   Integrity `json:"integrity"`
}

// verification outcomes
const (
	VerifyValid        = "Valid"
	VerifyInvalid      = "Invalid"
	VerifyInconclusive = "Inconclusive"
	VerifyError        = "Error"
)

// HashAlgo is the only digest used throughout the custody chain.
const HashAlgo = "SHA-256"

// ItemsHash digests the canonical serialization of the entry list,
// incrementally so large manifests never materialize the array twice.
func ItemsHash(items []Entry) (string, error) {
	h := sha256.New()
	h.Write([]byte{'['})
	for i := range items {
		if i > 0 {
			h.Write([]byte{','})
		}
		data, err := json.Marshal(&items[i])
		if err != nil {
			return "", err
		}
		h.Write(data)
	}
	h.Write([]byte{']'})
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ManifestHash digests the whole structure with the signature and both
// hashes zeroed, so the hash never covers itself.
func ManifestHash(m *Manifest) (string, error) {
	masked := *m
	masked.Integrity.ItemsHash = ""
	masked.Integrity.ManifestHash = ""
	masked.Integrity.Signature = ""
	data, err := json.Marshal(&masked)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
