// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/luxfi/log"
	"github.com/zeebo/blake3"
)

// DefaultCacheSize bounds the number of remembered successful verifications.
const DefaultCacheSize = 4096

// VerifyingKey is a Groth16 BN254 verifying key for the transfer circuit.
type VerifyingKey struct {
	KeyID       [32]byte
	ProofSystem ProofSystem

	key groth16.VerifyingKey
}

func newVerifyingKey(vk groth16.VerifyingKey) (*VerifyingKey, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize verifying key: %w", err)
	}
	return &VerifyingKey{
		KeyID:       blake3.Sum256(buf.Bytes()),
		ProofSystem: ProofSystemGroth16,
		key:         vk,
	}, nil
}

// LoadVerifyingKey parses a serialized verifying key.
func LoadVerifyingKey(raw []byte) (*VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("parse verifying key: %w", err)
	}
	return newVerifyingKey(vk)
}

// Bytes serializes the key.
func (vk *VerifyingKey) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := vk.key.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Groth16Verifier verifies framed transfer proofs. Successful verifications
// are remembered in an LRU keyed by (key, proof, inputs).
type Groth16Verifier struct {
	log   log.Logger
	cache *lru.Cache[[32]byte, struct{}]

	totalVerifications atomic.Uint64
	totalValid         atomic.Uint64
	totalFailed        atomic.Uint64
	cacheHits          atomic.Uint64
}

// NewGroth16Verifier creates a verifier. cacheSize <= 0 uses DefaultCacheSize.
func NewGroth16Verifier(logger log.Logger, cacheSize int) (*Groth16Verifier, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[[32]byte, struct{}](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof cache: %w", err)
	}
	return &Groth16Verifier{
		log:   logger,
		cache: cache,
	}, nil
}

// Verify checks proof against vk and publicInputs. It fails closed: a wrong
// frame size is ErrInvalidProofSize, everything else that does not verify is
// ErrInvalidProof.
func (v *Groth16Verifier) Verify(vk *VerifyingKey, proof []byte, publicInputs [][]byte) error {
	v.totalVerifications.Add(1)
	if err := v.verify(vk, proof, publicInputs); err != nil {
		v.totalFailed.Add(1)
		v.log.Debug("transfer proof rejected",
			log.String("reason", err.Error()),
		)
		return err
	}
	v.totalValid.Add(1)
	return nil
}

func (v *Groth16Verifier) verify(vk *VerifyingKey, proof []byte, publicInputs [][]byte) error {
	if len(proof) != ProofSize {
		return ErrInvalidProofSize
	}
	if vk == nil || vk.key == nil {
		return ErrNilVerifyingKey
	}

	cacheKey := verificationKey(vk, proof, publicInputs)
	if _, ok := v.cache.Get(cacheKey); ok {
		v.cacheHits.Add(1)
		return nil
	}

	assign, err := assignment(publicInputs)
	if err != nil {
		return err
	}
	p, err := decodeFrame(proof)
	if err != nil {
		return err
	}
	pub, err := frontend.NewWitness(assign, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if err := groth16.Verify(p, vk.key, pub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	v.cache.Add(cacheKey, struct{}{})
	v.log.Debug("Groth16 transfer proof verified",
		log.String("keyID", fmt.Sprintf("%x", vk.KeyID[:8])),
		log.Int("inputs", len(publicInputs)),
	)
	return nil
}

// Stats returns verifier counters.
func (v *Groth16Verifier) Stats() Stats {
	return Stats{
		TotalVerifications: v.totalVerifications.Load(),
		TotalProofsValid:   v.totalValid.Load(),
		TotalProofsFailed:  v.totalFailed.Load(),
		CacheHits:          v.cacheHits.Load(),
	}
}

// ClearCache drops all remembered verifications.
func (v *Groth16Verifier) ClearCache() {
	v.cache.Purge()
	v.log.Info("Cleared proof verification cache")
}

func verificationKey(vk *VerifyingKey, proof []byte, publicInputs [][]byte) [32]byte {
	h := blake3.New()
	h.Write(vk.KeyID[:])
	h.Write(proof)
	var n [4]byte
	for _, in := range publicInputs {
		binary.BigEndian.PutUint32(n[:], uint32(len(in)))
		h.Write(n[:])
		h.Write(in)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
