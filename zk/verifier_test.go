// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package zk

import (
	"sync"
	"testing"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

var (
	setupOnce  sync.Once
	testProver *Prover
	testVK     *VerifyingKey
	setupErr   error
)

func testKeys(t *testing.T) (*Prover, *VerifyingKey) {
	t.Helper()
	setupOnce.Do(func() {
		testProver, testVK, setupErr = Setup()
	})
	require.NoError(t, setupErr)
	return testProver, testVK
}

func newTestVerifier(t *testing.T) *Groth16Verifier {
	t.Helper()
	v, err := NewGroth16Verifier(log.NewTestLogger(log.InfoLevel), 16)
	require.NoError(t, err)
	return v
}

func testSecret(b byte) [32]byte {
	var s [32]byte
	s[31] = b
	s[0] = 0x01
	return s
}

func TestDeriveNullifierDeterministic(t *testing.T) {
	a, err := DeriveNullifier(testSecret(1))
	require.NoError(t, err)
	b, err := DeriveNullifier(testSecret(1))
	require.NoError(t, err)
	c, err := DeriveNullifier(testSecret(2))
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)

	_, err = DeriveNullifier([32]byte{})
	require.ErrorIs(t, err, ErrInvalidSecret)
}

func TestVerifyValidProof(t *testing.T) {
	prover, vk := testKeys(t)
	v := newTestVerifier(t)

	secret := testSecret(7)
	nullifier, err := DeriveNullifier(secret)
	require.NoError(t, err)
	recipient := []byte("recipient-commitment")
	ciphertext := []byte("amount-ciphertext")

	proof, err := prover.Prove(secret, recipient, ciphertext)
	require.NoError(t, err)
	require.Len(t, proof, ProofSize)

	inputs := [][]byte{nullifier[:], recipient, ciphertext}
	require.NoError(t, v.Verify(vk, proof, inputs))

	// second call is served from the cache
	require.NoError(t, v.Verify(vk, proof, inputs))
	stats := v.Stats()
	require.Equal(t, uint64(2), stats.TotalVerifications)
	require.Equal(t, uint64(2), stats.TotalProofsValid)
	require.Equal(t, uint64(1), stats.CacheHits)
}

func TestVerifyRejectsWrongInputs(t *testing.T) {
	prover, vk := testKeys(t)
	v := newTestVerifier(t)

	secret := testSecret(9)
	nullifier, err := DeriveNullifier(secret)
	require.NoError(t, err)
	proof, err := prover.Prove(secret, []byte("alice"), []byte("ct"))
	require.NoError(t, err)

	other, err := DeriveNullifier(testSecret(10))
	require.NoError(t, err)

	tests := []struct {
		name   string
		inputs [][]byte
	}{
		{"other recipient", [][]byte{nullifier[:], []byte("bob"), []byte("ct")}},
		{"other ciphertext", [][]byte{nullifier[:], []byte("alice"), []byte("ct2")}},
		{"other nullifier", [][]byte{other[:], []byte("alice"), []byte("ct")}},
		{"missing input", [][]byte{nullifier[:], []byte("alice")}},
		{"empty input", [][]byte{nullifier[:], {}, []byte("ct")}},
		{"no inputs", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, v.Verify(vk, proof, tt.inputs), ErrInvalidProof)
		})
	}
	require.Equal(t, uint64(0), v.Stats().TotalProofsValid)
}

func TestVerifyRejectsMalformedFrames(t *testing.T) {
	prover, vk := testKeys(t)
	v := newTestVerifier(t)

	secret := testSecret(11)
	nullifier, err := DeriveNullifier(secret)
	require.NoError(t, err)
	inputs := [][]byte{nullifier[:], []byte("r"), []byte("c")}
	proof, err := prover.Prove(secret, []byte("r"), []byte("c"))
	require.NoError(t, err)

	require.ErrorIs(t, v.Verify(vk, proof[:255], inputs), ErrInvalidProofSize)
	require.ErrorIs(t, v.Verify(vk, append(proof, 0), inputs), ErrInvalidProofSize)
	require.ErrorIs(t, v.Verify(vk, nil, inputs), ErrInvalidProofSize)

	zeros := make([]byte, ProofSize)
	require.ErrorIs(t, v.Verify(vk, zeros, inputs), ErrInvalidProof)

	padded := append([]byte(nil), proof...)
	padded[ProofSize-1] = 0xff
	require.ErrorIs(t, v.Verify(vk, padded, inputs), ErrInvalidProof)

	require.ErrorIs(t, v.Verify(nil, proof, inputs), ErrNilVerifyingKey)
}

func TestVerifyingKeyRoundTrip(t *testing.T) {
	_, vk := testKeys(t)
	raw, err := vk.Bytes()
	require.NoError(t, err)

	loaded, err := LoadVerifyingKey(raw)
	require.NoError(t, err)
	require.Equal(t, vk.KeyID, loaded.KeyID)
	require.Equal(t, ProofSystemGroth16, loaded.ProofSystem)

	_, err = LoadVerifyingKey([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestPoseidonMerkleProof(t *testing.T) {
	p := NewPoseidon2Hasher()

	var leaf, sibling [32]byte
	leaf[31] = 1
	sibling[31] = 2
	root, err := p.HashPair(leaf, sibling)
	require.NoError(t, err)

	ok, err := p.VerifyMerkleProof(leaf, [][32]byte{sibling}, []bool{true}, root)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.VerifyMerkleProof(leaf, [][32]byte{sibling}, []bool{false}, root)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = p.VerifyMerkleProof(leaf, [][32]byte{sibling}, nil, root)
	require.ErrorIs(t, err, ErrProofLengthMismatch)

	zeros, err := p.ZeroHashes(3)
	require.NoError(t, err)
	require.Len(t, zeros, 4)
	require.Equal(t, [32]byte{}, zeros[0])
	require.NotEqual(t, zeros[1], zeros[2])

	_, err = p.Hash()
	require.ErrorIs(t, err, ErrNoInputs)
}
