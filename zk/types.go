// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package zk verifies the zero-knowledge proofs that gate darkpool
// transfers. A transfer proof shows knowledge of the secret behind the
// sender nullifier and binds the recipient commitment and the amount
// ciphertext to that statement.
package zk

import (
	"errors"
)

const (
	// ProofSize is the fixed length of a transfer proof frame.
	ProofSize = 256

	// NumPublicInputs is the arity of the transfer statement:
	// sender nullifier, recipient commitment, amount ciphertext.
	NumPublicInputs = 3

	// frameHeader holds the big-endian length of the encoded proof.
	frameHeader = 2
)

// Proof systems
type ProofSystem uint8

const (
	ProofSystemGroth16 ProofSystem = iota
)

func (p ProofSystem) String() string {
	switch p {
	case ProofSystemGroth16:
		return "groth16"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidProofSize = errors.New("invalid proof size")
	ErrInvalidProof     = errors.New("invalid proof")
	ErrNilVerifyingKey  = errors.New("nil verifying key")
	ErrInvalidSecret    = errors.New("invalid secret")
)

// Verifier checks a proof against a verifying key and an ordered list of
// public inputs. Any failure is reported as an error; there is no partial
// acceptance.
type Verifier interface {
	Verify(vk *VerifyingKey, proof []byte, publicInputs [][]byte) error
}

// Stats counts verifier outcomes.
type Stats struct {
	TotalVerifications uint64
	TotalProofsValid   uint64
	TotalProofsFailed  uint64
	CacheHits          uint64
}
