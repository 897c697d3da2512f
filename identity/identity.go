// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package identity derives the deterministic commitments that stand in for
// agent identities inside a pool. A commitment is a domain-separated
// Poseidon2 hash of a 32-byte secret, so the same secret yields unlinkable
// values in different domains.
package identity

import (
	"encoding/hex"
	"errors"

	"github.com/zeebo/blake3"

	"github.com/luxfi/darkpool/zk"
)

// Domains used by the engine.
const (
	DomainPoolCommitment = "pool_commitment"
	DomainNullifier      = "nullifier"
	DomainDecrypt        = "decrypt"
)

const (
	CommitmentLen  = 32
	FingerprintLen = 20

	maxDomainLen = 31
)

var ErrDomainTooLong = errors.New("identity: domain tag longer than 31 bytes")

// Commitment is a 32-byte identity commitment.
type Commitment [CommitmentLen]byte

func (c Commitment) Hex() string { return hex.EncodeToString(c[:]) }

func (c Commitment) IsZero() bool { return c == Commitment{} }

// Fingerprint is a short non-reversible tag of a key.
type Fingerprint [FingerprintLen]byte

var hasher = zk.NewPoseidon2Hasher()

// Derive computes Poseidon2(tag(domain), hi(secret), lo(secret)). The secret
// is split into two 16-byte halves so each fits in a field element without
// reduction, keeping the map injective over all 32-byte secrets.
func Derive(domain string, secret [32]byte) (Commitment, error) {
	tag, err := domainTag(domain)
	if err != nil {
		return Commitment{}, err
	}
	var hi, lo [32]byte
	copy(hi[16:], secret[:16])
	copy(lo[16:], secret[16:])

	out, err := hasher.Hash(tag, hi, lo)
	if err != nil {
		return Commitment{}, err
	}
	return Commitment(out), nil
}

// MustDerive is Derive for the fixed engine domains.
func MustDerive(domain string, secret [32]byte) Commitment {
	c, err := Derive(domain, secret)
	if err != nil {
		panic(err)
	}
	return c
}

// PoolCommitment is the commitment recorded when an agent joins a pool.
func PoolCommitment(nullifier [32]byte) Commitment {
	return MustDerive(DomainPoolCommitment, nullifier)
}

// SenderCommitment is the commitment written into transfer records.
func SenderCommitment(nullifier [32]byte) Commitment {
	return MustDerive(DomainNullifier, nullifier)
}

// ClaimCommitment is the commitment a recipient must reproduce to claim.
func ClaimCommitment(key [32]byte) Commitment {
	return MustDerive(DomainDecrypt, key)
}

// FingerprintOf returns the first 20 bytes of blake3(key).
func FingerprintOf(key [32]byte) Fingerprint {
	sum := blake3.Sum256(key[:])
	var fp Fingerprint
	copy(fp[:], sum[:FingerprintLen])
	return fp
}

func domainTag(domain string) ([32]byte, error) {
	var tag [32]byte
	if len(domain) > maxDomainLen {
		return tag, ErrDomainTooLong
	}
	// left padded; the leading zero byte keeps the tag below the modulus
	copy(tag[32-len(domain):], domain)
	return tag, nil
}
