// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	gmimc "github.com/consensys/gnark/std/hash/mimc"
	"github.com/zeebo/blake3"
)

// TransferCircuit proves knowledge of Secret with MiMC(Secret) == Nullifier.
// Recipient and Ciphertext are folded into a second hash so that a proof is
// only valid for the exact public inputs it was produced for.
type TransferCircuit struct {
	Nullifier  frontend.Variable `gnark:",public"`
	Recipient  frontend.Variable `gnark:",public"`
	Ciphertext frontend.Variable `gnark:",public"`

	Secret frontend.Variable
}

func (c *TransferCircuit) Define(api frontend.API) error {
	h, err := gmimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Secret)
	api.AssertIsEqual(h.Sum(), c.Nullifier)

	h.Reset()
	h.Write(c.Secret, c.Recipient, c.Ciphertext)
	api.AssertIsDifferent(h.Sum(), 0)
	return nil
}

// DeriveNullifier computes MiMC(secret) natively. The secret is reduced into
// the BN254 scalar field first.
func DeriveNullifier(secret [32]byte) ([32]byte, error) {
	var s fr.Element
	s.SetBytes(secret[:])
	if s.IsZero() {
		return [32]byte{}, ErrInvalidSecret
	}
	sb := s.Bytes()

	h := mimc.NewMiMC()
	if _, err := h.Write(sb[:]); err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// nullifierElement requires the nullifier to be a canonical scalar, which
// every MiMC output is.
func nullifierElement(b []byte) (fr.Element, error) {
	var e fr.Element
	if len(b) != fr.Bytes {
		return e, fmt.Errorf("%w: nullifier length %d", ErrInvalidProof, len(b))
	}
	if err := e.SetBytesCanonical(b); err != nil {
		return e, fmt.Errorf("%w: nullifier not canonical", ErrInvalidProof)
	}
	return e, nil
}

// bindElement maps arbitrary bytes into the scalar field by hashing.
func bindElement(b []byte) fr.Element {
	sum := blake3.Sum256(b)
	var e fr.Element
	e.SetBytes(sum[:])
	return e
}

func assignment(publicInputs [][]byte) (*TransferCircuit, error) {
	if len(publicInputs) != NumPublicInputs {
		return nil, fmt.Errorf("%w: expected %d public inputs, got %d", ErrInvalidProof, NumPublicInputs, len(publicInputs))
	}
	for i, in := range publicInputs {
		if len(in) == 0 {
			return nil, fmt.Errorf("%w: empty public input %d", ErrInvalidProof, i)
		}
	}
	n, err := nullifierElement(publicInputs[0])
	if err != nil {
		return nil, err
	}
	r := bindElement(publicInputs[1])
	c := bindElement(publicInputs[2])
	return &TransferCircuit{
		Nullifier:  n.BigInt(new(big.Int)),
		Recipient:  r.BigInt(new(big.Int)),
		Ciphertext: c.BigInt(new(big.Int)),
	}, nil
}

// encodeFrame writes a gnark proof into the fixed-size frame:
// 2-byte length, compressed proof, zero padding.
func encodeFrame(proof groth16.Proof) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, err
	}
	if buf.Len() > ProofSize-frameHeader {
		return nil, fmt.Errorf("encoded proof is %d bytes, frame holds %d", buf.Len(), ProofSize-frameHeader)
	}
	frame := make([]byte, ProofSize)
	binary.BigEndian.PutUint16(frame, uint16(buf.Len()))
	copy(frame[frameHeader:], buf.Bytes())
	return frame, nil
}

func decodeFrame(frame []byte) (groth16.Proof, error) {
	if len(frame) != ProofSize {
		return nil, ErrInvalidProofSize
	}
	n := int(binary.BigEndian.Uint16(frame))
	if n == 0 || n > ProofSize-frameHeader {
		return nil, fmt.Errorf("%w: bad frame length %d", ErrInvalidProof, n)
	}
	for _, b := range frame[frameHeader+n:] {
		if b != 0 {
			return nil, fmt.Errorf("%w: non-zero frame padding", ErrInvalidProof)
		}
	}
	proof := groth16.NewProof(ecc.BN254)
	read, err := proof.ReadFrom(bytes.NewReader(frame[frameHeader : frameHeader+n]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if int(read) != n {
		return nil, fmt.Errorf("%w: trailing proof bytes", ErrInvalidProof)
	}
	return proof, nil
}

// Prover produces transfer proofs. Agents hold one; the engine only ever
// needs the matching VerifyingKey.
type Prover struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
}

// Setup compiles the transfer circuit and runs a Groth16 setup.
func Setup() (*Prover, *VerifyingKey, error) {
	var circuit TransferCircuit
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, nil, fmt.Errorf("compile transfer circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, fmt.Errorf("groth16 setup: %w", err)
	}
	key, err := newVerifyingKey(vk)
	if err != nil {
		return nil, nil, err
	}
	return &Prover{ccs: ccs, pk: pk}, key, nil
}

// Prove returns a framed proof for the statement
// (DeriveNullifier(secret), recipient, ciphertext).
func (p *Prover) Prove(secret [32]byte, recipient, ciphertext []byte) ([]byte, error) {
	nullifier, err := DeriveNullifier(secret)
	if err != nil {
		return nil, err
	}
	assign, err := assignment([][]byte{nullifier[:], recipient, ciphertext})
	if err != nil {
		return nil, err
	}
	var s fr.Element
	s.SetBytes(secret[:])
	assign.Secret = s.BigInt(new(big.Int))

	w, err := frontend.NewWitness(assign, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}
	proof, err := groth16.Prove(p.ccs, p.pk, w)
	if err != nil {
		return nil, fmt.Errorf("prove: %w", err)
	}
	return encodeFrame(proof)
}
