// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zk

import (
	"errors"
	"sync/atomic"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

var poseidon2HasherFactory = poseidon2.NewMerkleDamgardHasher

const maxPoseidonInputs = 16

var (
	ErrNoInputs            = errors.New("poseidon2: no inputs")
	ErrTooManyInputs       = errors.New("poseidon2: too many inputs, maximum 16 field elements")
	ErrProofLengthMismatch = errors.New("merkle: path and direction length mismatch")
)

// Poseidon2Hasher hashes BN254 field elements with Poseidon2 in
// Merkle-Damgard mode. Inputs are 32-byte big-endian words reduced into the
// scalar field.
type Poseidon2Hasher struct {
	TotalHashes atomic.Uint64
}

// NewPoseidon2Hasher creates a new Poseidon2 hasher
func NewPoseidon2Hasher() *Poseidon2Hasher {
	return &Poseidon2Hasher{}
}

// Hash computes Poseidon2 over 1 to 16 field elements.
func (p *Poseidon2Hasher) Hash(inputs ...[32]byte) ([32]byte, error) {
	if len(inputs) == 0 {
		return [32]byte{}, ErrNoInputs
	}
	if len(inputs) > maxPoseidonInputs {
		return [32]byte{}, ErrTooManyInputs
	}

	h := poseidon2HasherFactory()
	for _, in := range inputs {
		var elem fr.Element
		elem.SetBytes(in[:])
		b := elem.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return [32]byte{}, err
		}
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	p.TotalHashes.Add(1)
	return out, nil
}

// HashPair computes Poseidon2(left, right).
func (p *Poseidon2Hasher) HashPair(left, right [32]byte) ([32]byte, error) {
	return p.Hash(left, right)
}

// ZeroHashes returns the roots of empty subtrees for levels 0..depth.
func (p *Poseidon2Hasher) ZeroHashes(depth int) ([][32]byte, error) {
	zeros := make([][32]byte, depth+1)
	for i := 1; i <= depth; i++ {
		h, err := p.HashPair(zeros[i-1], zeros[i-1])
		if err != nil {
			return nil, err
		}
		zeros[i] = h
	}
	return zeros, nil
}

// VerifyMerkleProof folds leaf up the path and compares against root.
// isLeft[i] reports whether the running node is the left child at level i.
func (p *Poseidon2Hasher) VerifyMerkleProof(
	leaf [32]byte,
	path [][32]byte,
	isLeft []bool,
	root [32]byte,
) (bool, error) {
	if len(path) != len(isLeft) {
		return false, ErrProofLengthMismatch
	}

	current := leaf
	for i := range path {
		var (
			h   [32]byte
			err error
		)
		if isLeft[i] {
			h, err = p.HashPair(current, path[i])
		} else {
			h, err = p.HashPair(path[i], current)
		}
		if err != nil {
			return false, err
		}
		current = h
	}
	return current == root, nil
}
