// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe provides the homomorphic-encryption service the darkpool
// engine computes on, and the encrypted accumulator built on top of it.
// Ciphertexts are referenced by content-addressed handles; every handle
// carries an access list of the signers allowed to compute on it.
package fhe

import (
	"errors"

	"github.com/luxfi/geth/common"
)

// Ciphertext type constants - must match github.com/luxfi/fhe FheUintType
const (
	TypeEbool    uint8 = 0 // FheBool - 1 bit
	TypeEuint4   uint8 = 1 // FheUint4 - 4 bits
	TypeEuint8   uint8 = 2 // FheUint8 - 8 bits
	TypeEuint16  uint8 = 3 // FheUint16 - 16 bits
	TypeEuint32  uint8 = 4 // FheUint32 - 32 bits
	TypeEuint64  uint8 = 5 // FheUint64 - 64 bits
	TypeEuint128 uint8 = 6 // FheUint128 - 128 bits
	TypeEuint160 uint8 = 7 // FheUint160 - 160 bits
	TypeEuint256 uint8 = 8 // FheUint256 - 256 bits
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrTypeMismatch       = errors.New("ciphertext type mismatch")
	ErrOperationFailed    = errors.New("FHE operation failed")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext handle")
	ErrUnauthorizedHandle = errors.New("signer not allowed on ciphertext handle")
	ErrValueOutOfRange    = errors.New("plaintext does not fit ciphertext type")
	ErrUnsupportedType    = errors.New("unsupported ciphertext type")
)

// Handle references a stored ciphertext. It is the hash of the ciphertext
// type and bytes.
type Handle = common.Hash

// Operation is the authorization context of a service call. Inputs must be
// accessible to Signer; outputs are granted to Signer.
type Operation struct {
	Signer common.Address
}

// Service is the homomorphic-encryption contract the engine depends on.
type Service interface {
	// EncryptConstant encrypts a public plaintext.
	EncryptConstant(op Operation, value uint64, typ uint8) (Handle, error)
	// Decode admits client-supplied ciphertext bytes of the given type.
	Decode(op Operation, ciphertext []byte, typ uint8) (Handle, error)

	Add(op Operation, a, b Handle) (Handle, error)
	Ge(op Operation, a, b Handle) (Handle, error)
	Le(op Operation, a, b Handle) (Handle, error)
	And(op Operation, a, b Handle) (Handle, error)
	// Select returns ifTrue where cond is set and ifFalse otherwise,
	// without revealing cond.
	Select(op Operation, cond, ifTrue, ifFalse Handle) (Handle, error)

	// Allow grants addr access to h. op.Signer must already hold it.
	Allow(op Operation, h Handle, addr common.Address) error
	// Discard deletes h and its access list. op.Signer must hold it.
	// Handles are stored as soon as they are produced, so abandoned work
	// is discarded explicitly.
	Discard(op Operation, h Handle) error
	// Ciphertext returns the stored bytes and type of h.
	Ciphertext(h Handle) ([]byte, uint8, error)
}

// TypeBits returns the plaintext width of a ciphertext type.
func TypeBits(typ uint8) (int, error) {
	switch typ {
	case TypeEbool:
		return 1, nil
	case TypeEuint4:
		return 4, nil
	case TypeEuint8:
		return 8, nil
	case TypeEuint16:
		return 16, nil
	case TypeEuint32:
		return 32, nil
	case TypeEuint64:
		return 64, nil
	case TypeEuint128:
		return 128, nil
	case TypeEuint160:
		return 160, nil
	case TypeEuint256:
		return 256, nil
	default:
		return 0, ErrUnsupportedType
	}
}

// Fits reports whether value is representable in typ.
func Fits(value uint64, typ uint8) bool {
	bits, err := TypeBits(typ)
	if err != nil {
		return false
	}
	if bits >= 64 {
		return true
	}
	return value < uint64(1)<<uint(bits)
}
