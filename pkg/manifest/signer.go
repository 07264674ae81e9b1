/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package manifest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// SignatureAlgo identifies the detached-signature scheme.
const SignatureAlgo = "Ed25519"

// Signer produces detached signatures over manifest hashes.
type Signer struct {
	priv       ed25519.PrivateKey
	thumbprint string
}

// LoadSigner reads an Ed25519 key from path: hex, either the 32-byte seed
// or the full 64-byte private key.
func LoadSigner(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("signing key is not hex: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("signing key has %d bytes, want %d or %d",
			len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
	pubSum := sha256.Sum256(priv.Public().(ed25519.PublicKey))
	return &Signer{
		priv:       priv,
		thumbprint: hex.EncodeToString(pubSum[:]),
	}, nil
}

// NewSignerFromSeed builds a signer from a raw seed. Test hook.
func NewSignerFromSeed(seed []byte) *Signer {
	priv := ed25519.NewKeyFromSeed(seed)
	pubSum := sha256.Sum256(priv.Public().(ed25519.PublicKey))
	return &Signer{priv: priv, thumbprint: hex.EncodeToString(pubSum[:])}
}

// Thumbprint identifies the signing key in the manifest integrity block.
func (s *Signer) Thumbprint() string {
	return s.thumbprint
}

// Sign returns the hex detached signature over manifestHash.
func (s *Signer) Sign(manifestHash string) string {
	return hex.EncodeToString(ed25519.Sign(s.priv, []byte(manifestHash)))
}

// Verify checks a detached signature produced by Sign.
func (s *Signer) Verify(manifestHash, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.priv.Public().(ed25519.PublicKey), []byte(manifestHash), sig)
}
