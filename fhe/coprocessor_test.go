// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"sync"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/fhe"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

var (
	coprocOnce sync.Once
	coproc     *Coprocessor
	coprocErr  error
)

// testCoprocessor shares one set of TFHE keys across tests; key generation
// dominates the runtime.
func testCoprocessor(t *testing.T) *Coprocessor {
	t.Helper()
	if testing.Short() {
		t.Skip("TFHE tests skipped in short mode")
	}
	coprocOnce.Do(func() {
		coproc, coprocErr = NewCoprocessor(log.NewTestLogger(log.InfoLevel), memdb.New())
	})
	require.NoError(t, coprocErr)
	return coproc
}

var signer = Operation{Signer: common.HexToAddress("0x0000000000000000000000000000000000000001")}

func TestFheTypeMapping(t *testing.T) {
	tests := []struct {
		name     string
		fheType  uint8
		expected fhe.FheUintType
	}{
		{"bool", TypeEbool, fhe.FheBool},
		{"uint8", TypeEuint8, fhe.FheUint8},
		{"uint16", TypeEuint16, fhe.FheUint16},
		{"uint32", TypeEuint32, fhe.FheUint32},
		{"uint64", TypeEuint64, fhe.FheUint64},
		{"uint128", TypeEuint128, fhe.FheUint128},
		{"uint160", TypeEuint160, fhe.FheUint160},
		{"uint256", TypeEuint256, fhe.FheUint256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := fheTypeToTFHEType(tt.fheType)
			require.NoError(t, err)
			require.Equal(t, tt.expected, result)
		})
	}

	_, err := fheTypeToTFHEType(42)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCoprocessorEncryptDecrypt(t *testing.T) {
	c := testCoprocessor(t)

	for _, v := range []uint64{0, 1, 42, 255} {
		h, err := c.EncryptConstant(signer, v, TypeEuint8)
		require.NoError(t, err)
		got, err := c.Decrypt(signer, h)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}

	_, err := c.EncryptConstant(signer, 256, TypeEuint8)
	require.ErrorIs(t, err, ErrValueOutOfRange)
}

func TestCoprocessorDecode(t *testing.T) {
	c := testCoprocessor(t)

	raw, err := c.Encrypt(77, TypeEuint8)
	require.NoError(t, err)
	h, err := c.Decode(signer, raw, TypeEuint8)
	require.NoError(t, err)
	require.Equal(t, contentHandle(TypeEuint8, raw), h)

	got, err := c.Decrypt(signer, h)
	require.NoError(t, err)
	require.Equal(t, uint64(77), got)

	stored, typ, err := c.Ciphertext(h)
	require.NoError(t, err)
	require.Equal(t, raw, stored)
	require.Equal(t, TypeEuint8, typ)

	_, err = c.Decode(signer, raw, TypeEuint16)
	require.ErrorIs(t, err, ErrTypeMismatch)
	_, err = c.Decode(signer, []byte{1, 2, 3}, TypeEuint8)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.Decode(signer, nil, TypeEuint8)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCoprocessorClamp(t *testing.T) {
	c := testCoprocessor(t)
	acc := NewAccumulator(c, signer, TypeEuint8)

	tests := []struct {
		amount   uint64
		expected uint64
	}{
		{5, 0},
		{10, 10},
		{99, 99},
		{100, 100},
		{200, 0},
	}
	for _, tt := range tests {
		amount, err := acc.EncryptConstant(tt.amount)
		require.NoError(t, err)
		got, err := acc.Clamp(amount, 10, 100)
		require.NoError(t, err)
		v, err := c.Decrypt(signer, got)
		require.NoError(t, err)
		require.Equal(t, tt.expected, v, "amount %d", tt.amount)
	}
}

func TestCoprocessorAdd(t *testing.T) {
	c := testCoprocessor(t)

	a, err := c.EncryptConstant(signer, 20, TypeEuint8)
	require.NoError(t, err)
	b, err := c.EncryptConstant(signer, 22, TypeEuint8)
	require.NoError(t, err)
	sum, err := c.Add(signer, a, b)
	require.NoError(t, err)
	v, err := c.Decrypt(signer, sum)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)
}

func TestCoprocessorACL(t *testing.T) {
	c := testCoprocessor(t)
	other := Operation{Signer: common.HexToAddress("0x0000000000000000000000000000000000000002")}

	a, err := c.EncryptConstant(signer, 1, TypeEuint8)
	require.NoError(t, err)

	_, err = c.Decrypt(other, a)
	require.ErrorIs(t, err, ErrUnauthorizedHandle)
	require.ErrorIs(t, c.Allow(other, a, other.Signer), ErrUnauthorizedHandle)

	require.NoError(t, c.Allow(signer, a, other.Signer))
	v, err := c.Decrypt(other, a)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	_, err = c.Add(signer, a, Handle{})
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestCiphertextStoreDiscard(t *testing.T) {
	db := memdb.New()
	defer db.Close()
	s := newCiphertextStore(db)
	other := common.HexToAddress("0x0000000000000000000000000000000000000002")

	h, err := s.put([]byte{1, 2, 3}, TypeEuint8, signer.Signer)
	require.NoError(t, err)
	require.NoError(t, s.allow(h, other))
	keep, err := s.put([]byte{4, 5, 6}, TypeEuint8, signer.Signer)
	require.NoError(t, err)

	require.NoError(t, s.discard(h))
	_, _, err = s.get(h)
	require.ErrorIs(t, err, ErrInvalidCiphertext)
	for _, addr := range []common.Address{signer.Signer, other} {
		ok, err := s.allowed(h, addr)
		require.NoError(t, err)
		require.False(t, ok)
	}

	data, _, err := s.load(signer, keep)
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5, 6}, data)
}

func TestCoprocessorDiscard(t *testing.T) {
	c := testCoprocessor(t)
	other := Operation{Signer: common.HexToAddress("0x0000000000000000000000000000000000000002")}

	a, err := c.EncryptConstant(signer, 1, TypeEuint8)
	require.NoError(t, err)
	require.ErrorIs(t, c.Discard(other, a), ErrUnauthorizedHandle)
	require.NoError(t, c.Discard(signer, a))
	_, _, err = c.Ciphertext(a)
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}
