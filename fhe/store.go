// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/darkpool/store"
)

type storedCiphertext struct {
	Type uint8
	Data []byte
}

// ciphertextStore persists ciphertexts by content hash together with their
// access lists. Rows are written as soon as an operation produces them and
// live outside any engine transaction; callers discard the handles of work
// they abandon.
type ciphertextStore struct {
	ciphertexts database.Database // handle -> storedCiphertext
	acl         database.Database // handle ‖ address -> 1
}

func newCiphertextStore(db database.Database) *ciphertextStore {
	return &ciphertextStore{
		ciphertexts: store.Table(db, store.PrefixCiphertext),
		acl:         store.Table(db, store.PrefixACL),
	}
}

func contentHandle(typ uint8, data []byte) Handle {
	h := blake3.New()
	h.Write([]byte{typ})
	h.Write(data)
	var out Handle
	copy(out[:], h.Sum(nil))
	return out
}

func aclKey(handle Handle, addr common.Address) []byte {
	return append(handle.Bytes(), addr.Bytes()...)
}

func (s *ciphertextStore) put(data []byte, typ uint8, owner common.Address) (Handle, error) {
	handle := contentHandle(typ, data)
	if err := store.PutRLP(s.ciphertexts, handle[:], &storedCiphertext{Type: typ, Data: data}); err != nil {
		return Handle{}, err
	}
	if err := s.allow(handle, owner); err != nil {
		return Handle{}, err
	}
	return handle, nil
}

func (s *ciphertextStore) get(handle Handle) ([]byte, uint8, error) {
	var ct storedCiphertext
	err := store.GetRLP(s.ciphertexts, handle[:], &ct)
	if errors.Is(err, database.ErrNotFound) {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidCiphertext, handle.Hex())
	}
	if err != nil {
		return nil, 0, err
	}
	return ct.Data, ct.Type, nil
}

func (s *ciphertextStore) allow(handle Handle, addr common.Address) error {
	return database.PutBool(s.acl, aclKey(handle, addr), true)
}

func (s *ciphertextStore) allowed(handle Handle, addr common.Address) (bool, error) {
	return s.acl.Has(aclKey(handle, addr))
}

// discard removes handle and every grant on it.
func (s *ciphertextStore) discard(handle Handle) error {
	it := s.acl.NewIteratorWithPrefix(handle[:])
	var keys [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return err
	}

	batch := s.acl.NewBatch()
	for _, k := range keys {
		if err := batch.Delete(k); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	return s.ciphertexts.Delete(handle[:])
}

// load fetches a ciphertext the signer may use.
func (s *ciphertextStore) load(op Operation, handle Handle) ([]byte, uint8, error) {
	data, typ, err := s.get(handle)
	if err != nil {
		return nil, 0, err
	}
	ok, err := s.allowed(handle, op.Signer)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnauthorizedHandle, handle.Hex())
	}
	return data, typ, nil
}
