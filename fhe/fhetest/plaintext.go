// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhetest provides a plaintext fhe.Service for tests. It keeps the
// handle, type and access-list semantics of the real coprocessor but stores
// values in the clear.
package fhetest

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/darkpool/fhe"
)

var _ fhe.Service = (*Service)(nil)

type entry struct {
	value uint64
	typ   uint8
	data  []byte
}

// Service is an in-memory plaintext fhe.Service.
type Service struct {
	mu      sync.Mutex
	values  map[fhe.Handle]entry
	acl     map[fhe.Handle]map[common.Address]struct{}
	ops     []string
	failOn  string
	failErr error
}

func New() *Service {
	return &Service{
		values: make(map[fhe.Handle]entry),
		acl:    make(map[fhe.Handle]map[common.Address]struct{}),
	}
}

// FailOn makes the named operation return err until cleared with an empty name.
func (s *Service) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn, s.failErr = op, err
}

// Ops returns the operations executed so far.
func (s *Service) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// ResetOps clears the operation log.
func (s *Service) ResetOps() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
}

// Encrypt returns client ciphertext bytes: type, value and a random nonce.
func Encrypt(value uint64, typ uint8) []byte {
	data := make([]byte, 1+8+16)
	data[0] = typ
	binary.BigEndian.PutUint64(data[1:9], value)
	_, _ = rand.Read(data[9:])
	return data
}

// Plaintext reveals the value behind h.
func (s *Service) Plaintext(h fhe.Handle) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.values[h]
	return e.value, ok
}

func mask(typ uint8) uint64 {
	bits, _ := fhe.TypeBits(typ)
	if bits >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<uint(bits) - 1
}

func (s *Service) record(name string) error {
	s.ops = append(s.ops, name)
	if s.failOn == name {
		return s.failErr
	}
	return nil
}

func (s *Service) put(op fhe.Operation, value uint64, typ uint8, data []byte) fhe.Handle {
	value &= mask(typ)
	if data == nil {
		data = Encrypt(value, typ)
	}
	var h fhe.Handle
	sum := blake3.Sum256(data)
	copy(h[:], sum[:])
	s.values[h] = entry{value: value, typ: typ, data: data}
	if s.acl[h] == nil {
		s.acl[h] = make(map[common.Address]struct{})
	}
	s.acl[h][op.Signer] = struct{}{}
	return h
}

func (s *Service) load(op fhe.Operation, h fhe.Handle) (entry, error) {
	e, ok := s.values[h]
	if !ok {
		return entry{}, fmt.Errorf("%w: %s", fhe.ErrInvalidCiphertext, h.Hex())
	}
	if _, ok := s.acl[h][op.Signer]; !ok {
		return entry{}, fmt.Errorf("%w: %s", fhe.ErrUnauthorizedHandle, h.Hex())
	}
	return e, nil
}

func (s *Service) pair(op fhe.Operation, a, b fhe.Handle) (entry, entry, error) {
	ea, err := s.load(op, a)
	if err != nil {
		return entry{}, entry{}, err
	}
	eb, err := s.load(op, b)
	if err != nil {
		return entry{}, entry{}, err
	}
	if ea.typ != eb.typ {
		return entry{}, entry{}, fhe.ErrTypeMismatch
	}
	return ea, eb, nil
}

func (s *Service) EncryptConstant(op fhe.Operation, value uint64, typ uint8) (fhe.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("encrypt"); err != nil {
		return fhe.Handle{}, err
	}
	if !fhe.Fits(value, typ) {
		return fhe.Handle{}, fhe.ErrValueOutOfRange
	}
	return s.put(op, value, typ, nil), nil
}

func (s *Service) Decode(op fhe.Operation, ciphertext []byte, typ uint8) (fhe.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("decode"); err != nil {
		return fhe.Handle{}, err
	}
	if len(ciphertext) != 25 {
		return fhe.Handle{}, fhe.ErrInvalidInput
	}
	if ciphertext[0] != typ {
		return fhe.Handle{}, fhe.ErrTypeMismatch
	}
	value := binary.BigEndian.Uint64(ciphertext[1:9])
	if !fhe.Fits(value, typ) {
		return fhe.Handle{}, fhe.ErrValueOutOfRange
	}
	return s.put(op, value, typ, append([]byte(nil), ciphertext...)), nil
}

func (s *Service) Add(op fhe.Operation, a, b fhe.Handle) (fhe.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("add"); err != nil {
		return fhe.Handle{}, err
	}
	ea, eb, err := s.pair(op, a, b)
	if err != nil {
		return fhe.Handle{}, err
	}
	return s.put(op, ea.value+eb.value, ea.typ, nil), nil
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (s *Service) Ge(op fhe.Operation, a, b fhe.Handle) (fhe.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("ge"); err != nil {
		return fhe.Handle{}, err
	}
	ea, eb, err := s.pair(op, a, b)
	if err != nil {
		return fhe.Handle{}, err
	}
	return s.put(op, boolValue(ea.value >= eb.value), fhe.TypeEbool, nil), nil
}

func (s *Service) Le(op fhe.Operation, a, b fhe.Handle) (fhe.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("le"); err != nil {
		return fhe.Handle{}, err
	}
	ea, eb, err := s.pair(op, a, b)
	if err != nil {
		return fhe.Handle{}, err
	}
	return s.put(op, boolValue(ea.value <= eb.value), fhe.TypeEbool, nil), nil
}

func (s *Service) And(op fhe.Operation, a, b fhe.Handle) (fhe.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("and"); err != nil {
		return fhe.Handle{}, err
	}
	ea, eb, err := s.pair(op, a, b)
	if err != nil {
		return fhe.Handle{}, err
	}
	return s.put(op, ea.value&eb.value, ea.typ, nil), nil
}

func (s *Service) Select(op fhe.Operation, cond, ifTrue, ifFalse fhe.Handle) (fhe.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("select"); err != nil {
		return fhe.Handle{}, err
	}
	ec, err := s.load(op, cond)
	if err != nil {
		return fhe.Handle{}, err
	}
	if ec.typ != fhe.TypeEbool {
		return fhe.Handle{}, fhe.ErrTypeMismatch
	}
	et, ef, err := s.pair(op, ifTrue, ifFalse)
	if err != nil {
		return fhe.Handle{}, err
	}
	m := -ec.value & mask(et.typ)
	return s.put(op, (et.value&m)|(ef.value&^m), et.typ, nil), nil
}

func (s *Service) Allow(op fhe.Operation, h fhe.Handle, addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.load(op, h); err != nil {
		return err
	}
	s.acl[h][addr] = struct{}{}
	return nil
}

func (s *Service) Discard(op fhe.Operation, h fhe.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("discard"); err != nil {
		return err
	}
	if _, err := s.load(op, h); err != nil {
		return err
	}
	delete(s.values, h)
	delete(s.acl, h)
	return nil
}

// Len returns the number of stored handles.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

func (s *Service) Ciphertext(h fhe.Handle) ([]byte, uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.values[h]
	if !ok {
		return nil, 0, fhe.ErrInvalidCiphertext
	}
	return e.data, e.typ, nil
}
