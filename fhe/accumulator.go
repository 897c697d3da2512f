// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"errors"
	"fmt"
)

// DefaultType is the ciphertext width used for amounts and volumes.
const DefaultType = TypeEuint32

// Accumulator performs the encrypted arithmetic of a pool under one
// authorization context and one ciphertext type.
type Accumulator struct {
	svc Service
	op  Operation
	typ uint8
}

func NewAccumulator(svc Service, op Operation, typ uint8) *Accumulator {
	return &Accumulator{svc: svc, op: op, typ: typ}
}

func (a *Accumulator) Type() uint8 { return a.typ }

func (a *Accumulator) EncryptConstant(v uint64) (Handle, error) {
	if !Fits(v, a.typ) {
		return Handle{}, fmt.Errorf("%w: %d", ErrValueOutOfRange, v)
	}
	return a.svc.EncryptConstant(a.op, v, a.typ)
}

func (a *Accumulator) Decode(ciphertext []byte) (Handle, error) {
	return a.svc.Decode(a.op, ciphertext, a.typ)
}

func (a *Accumulator) Add(x, y Handle) (Handle, error) {
	return a.svc.Add(a.op, x, y)
}

func (a *Accumulator) GreaterOrEqual(x, y Handle) (Handle, error) {
	return a.svc.Ge(a.op, x, y)
}

func (a *Accumulator) LessOrEqual(x, y Handle) (Handle, error) {
	return a.svc.Le(a.op, x, y)
}

func (a *Accumulator) And(x, y Handle) (Handle, error) {
	return a.svc.And(a.op, x, y)
}

func (a *Accumulator) Select(cond, ifTrue, ifFalse Handle) (Handle, error) {
	return a.svc.Select(a.op, cond, ifTrue, ifFalse)
}

// Discard drops handles that are no longer referenced. Zero handles are
// skipped.
func (a *Accumulator) Discard(handles ...Handle) error {
	var errs []error
	for _, h := range handles {
		if h == (Handle{}) {
			continue
		}
		if err := a.svc.Discard(a.op, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clamp returns amount when min <= amount <= max and an encryption of zero
// otherwise. The same sequence of operations runs for every input; the
// validity bit is never decrypted. Intermediate ciphertexts are discarded
// before returning.
func (a *Accumulator) Clamp(amount Handle, min, max uint64) (out Handle, err error) {
	var lo, hi, zero, ge, le, valid Handle
	defer func() {
		if derr := a.Discard(lo, hi, zero, ge, le, valid); derr != nil && err == nil {
			err = fmt.Errorf("discard intermediates: %w", derr)
		}
	}()

	lo, err = a.EncryptConstant(min)
	if err != nil {
		return Handle{}, fmt.Errorf("encrypt lower bound: %w", err)
	}
	hi, err = a.EncryptConstant(max)
	if err != nil {
		return Handle{}, fmt.Errorf("encrypt upper bound: %w", err)
	}
	zero, err = a.EncryptConstant(0)
	if err != nil {
		return Handle{}, fmt.Errorf("encrypt zero: %w", err)
	}

	ge, err = a.GreaterOrEqual(amount, lo)
	if err != nil {
		return Handle{}, err
	}
	le, err = a.LessOrEqual(amount, hi)
	if err != nil {
		return Handle{}, err
	}
	valid, err = a.And(ge, le)
	if err != nil {
		return Handle{}, err
	}
	return a.Select(valid, amount, zero)
}
