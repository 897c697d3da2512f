// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/fhe"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ Service = (*Coprocessor)(nil)

// Coprocessor is a TFHE-backed Service. It holds the secret key, so it is
// the only party able to decrypt; the engine never calls Decrypt.
type Coprocessor struct {
	log   log.Logger
	store *ciphertextStore

	params    fhe.Parameters
	secretKey *fhe.SecretKey
	publicKey *fhe.PublicKey
	encryptor *fhe.BitwiseEncryptor
	decryptor *fhe.BitwiseDecryptor
	evaluator *fhe.BitwiseEvaluator
}

// NewCoprocessor generates fresh TFHE keys and stores ciphertexts in db.
func NewCoprocessor(logger log.Logger, db database.Database) (*Coprocessor, error) {
	params, err := fhe.NewParametersFromLiteral(fhe.PN10QP27)
	if err != nil {
		return nil, fmt.Errorf("tfhe parameters: %w", err)
	}

	kg := fhe.NewKeyGenerator(params)
	sk, pk := kg.GenKeyPair()
	bsk := kg.GenBootstrapKey(sk)

	logger.Info("TFHE coprocessor initialized",
		log.String("parameters", "PN10QP27"),
	)
	return &Coprocessor{
		log:       logger,
		store:     newCiphertextStore(db),
		params:    params,
		secretKey: sk,
		publicKey: pk,
		encryptor: fhe.NewBitwiseEncryptor(params, sk),
		decryptor: fhe.NewBitwiseDecryptor(params, sk),
		evaluator: fhe.NewBitwiseEvaluator(params, bsk, sk),
	}, nil
}

// fheTypeToTFHEType converts FHE type constant to TFHE FheUintType
func fheTypeToTFHEType(fheType uint8) (fhe.FheUintType, error) {
	switch fheType {
	case TypeEbool:
		return fhe.FheBool, nil
	case TypeEuint8:
		return fhe.FheUint8, nil
	case TypeEuint16:
		return fhe.FheUint16, nil
	case TypeEuint32:
		return fhe.FheUint32, nil
	case TypeEuint64:
		return fhe.FheUint64, nil
	case TypeEuint128:
		return fhe.FheUint128, nil
	case TypeEuint160:
		return fhe.FheUint160, nil
	case TypeEuint256:
		return fhe.FheUint256, nil
	default:
		return fhe.FheUint32, fmt.Errorf("%w: %d", ErrUnsupportedType, fheType)
	}
}

func decodeBits(data []byte) (*fhe.BitCiphertext, error) {
	if len(data) == 0 {
		return nil, ErrInvalidInput
	}
	ct := new(fhe.BitCiphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return ct, nil
}

func (c *Coprocessor) save(op Operation, ct *fhe.BitCiphertext, typ uint8) (Handle, error) {
	data, err := ct.MarshalBinary()
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return c.store.put(data, typ, op.Signer)
}

func (c *Coprocessor) loadBits(op Operation, h Handle) (*fhe.BitCiphertext, uint8, error) {
	data, typ, err := c.store.load(op, h)
	if err != nil {
		return nil, 0, err
	}
	ct, err := decodeBits(data)
	if err != nil {
		return nil, 0, err
	}
	return ct, typ, nil
}

func (c *Coprocessor) loadPair(op Operation, a, b Handle) (*fhe.BitCiphertext, *fhe.BitCiphertext, uint8, error) {
	ctA, typA, err := c.loadBits(op, a)
	if err != nil {
		return nil, nil, 0, err
	}
	ctB, typB, err := c.loadBits(op, b)
	if err != nil {
		return nil, nil, 0, err
	}
	if typA != typB {
		return nil, nil, 0, fmt.Errorf("%w: %d != %d", ErrTypeMismatch, typA, typB)
	}
	return ctA, ctB, typA, nil
}

// Encrypt returns ciphertext bytes for a plaintext, as a client would submit
// them to Decode.
func (c *Coprocessor) Encrypt(value uint64, typ uint8) ([]byte, error) {
	tt, err := fheTypeToTFHEType(typ)
	if err != nil {
		return nil, err
	}
	if !Fits(value, typ) {
		return nil, ErrValueOutOfRange
	}
	return c.encryptor.EncryptUint64(value, tt).MarshalBinary()
}

func (c *Coprocessor) EncryptConstant(op Operation, value uint64, typ uint8) (Handle, error) {
	data, err := c.Encrypt(value, typ)
	if err != nil {
		return Handle{}, err
	}
	return c.store.put(data, typ, op.Signer)
}

func (c *Coprocessor) Decode(op Operation, ciphertext []byte, typ uint8) (Handle, error) {
	bits, err := TypeBits(typ)
	if err != nil {
		return Handle{}, err
	}
	ct, err := decodeBits(ciphertext)
	if err != nil {
		return Handle{}, err
	}
	if n := int(ct.NumBits()); n != bits {
		return Handle{}, fmt.Errorf("%w: %d bits for type %d", ErrTypeMismatch, n, typ)
	}
	return c.store.put(ciphertext, typ, op.Signer)
}

func (c *Coprocessor) Add(op Operation, a, b Handle) (Handle, error) {
	ctA, ctB, typ, err := c.loadPair(op, a, b)
	if err != nil {
		return Handle{}, err
	}
	result, err := c.evaluator.Add(ctA, ctB)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: add: %v", ErrOperationFailed, err)
	}
	return c.save(op, result, typ)
}

func (c *Coprocessor) Ge(op Operation, a, b Handle) (Handle, error) {
	ctA, ctB, _, err := c.loadPair(op, a, b)
	if err != nil {
		return Handle{}, err
	}
	result, err := c.evaluator.Ge(ctA, ctB)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: ge: %v", ErrOperationFailed, err)
	}
	return c.save(op, fhe.WrapBoolCiphertext(result), TypeEbool)
}

func (c *Coprocessor) Le(op Operation, a, b Handle) (Handle, error) {
	ctA, ctB, _, err := c.loadPair(op, a, b)
	if err != nil {
		return Handle{}, err
	}
	result, err := c.evaluator.Le(ctA, ctB)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: le: %v", ErrOperationFailed, err)
	}
	return c.save(op, fhe.WrapBoolCiphertext(result), TypeEbool)
}

func (c *Coprocessor) And(op Operation, a, b Handle) (Handle, error) {
	ctA, ctB, typ, err := c.loadPair(op, a, b)
	if err != nil {
		return Handle{}, err
	}
	result, err := c.evaluator.And(ctA, ctB)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: and: %v", ErrOperationFailed, err)
	}
	return c.save(op, result, typ)
}

// Select computes (ifTrue AND mask) OR (ifFalse AND NOT mask) where mask is
// cond widened and negated to all-zeros or all-ones. Both branches are
// always evaluated.
func (c *Coprocessor) Select(op Operation, cond, ifTrue, ifFalse Handle) (Handle, error) {
	ctCond, condTyp, err := c.loadBits(op, cond)
	if err != nil {
		return Handle{}, err
	}
	if condTyp != TypeEbool {
		return Handle{}, fmt.Errorf("%w: select condition must be ebool", ErrTypeMismatch)
	}
	ctTrue, ctFalse, typ, err := c.loadPair(op, ifTrue, ifFalse)
	if err != nil {
		return Handle{}, err
	}
	tt, err := fheTypeToTFHEType(typ)
	if err != nil {
		return Handle{}, err
	}

	mask, err := c.evaluator.Neg(c.evaluator.CastTo(ctCond, tt))
	if err != nil {
		return Handle{}, fmt.Errorf("%w: select mask: %v", ErrOperationFailed, err)
	}
	keep, err := c.evaluator.And(ctTrue, mask)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: select: %v", ErrOperationFailed, err)
	}
	other, err := c.evaluator.And(ctFalse, c.evaluator.Not(mask))
	if err != nil {
		return Handle{}, fmt.Errorf("%w: select: %v", ErrOperationFailed, err)
	}
	result, err := c.evaluator.Or(keep, other)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: select: %v", ErrOperationFailed, err)
	}
	return c.save(op, result, typ)
}

func (c *Coprocessor) Allow(op Operation, h Handle, addr common.Address) error {
	if _, _, err := c.store.load(op, h); err != nil {
		return err
	}
	return c.store.allow(h, addr)
}

func (c *Coprocessor) Discard(op Operation, h Handle) error {
	if _, _, err := c.store.load(op, h); err != nil {
		return err
	}
	return c.store.discard(h)
}

func (c *Coprocessor) Ciphertext(h Handle) ([]byte, uint8, error) {
	return c.store.get(h)
}

// Decrypt reveals the plaintext behind h. The signer must hold the handle.
func (c *Coprocessor) Decrypt(op Operation, h Handle) (uint64, error) {
	ct, _, err := c.loadBits(op, h)
	if err != nil {
		return 0, err
	}
	return c.decryptor.DecryptUint64(ct), nil
}
