// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store holds the table layout and RLP record helpers shared by the
// darkpool components on top of a luxfi/database key/value store.
package store

import (
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/geth/rlp"
)

// Table prefixes. Every component owns one or more tables.
const (
	PrefixPool         byte = 0x01
	PrefixRegistration byte = 0x02
	PrefixRecord       byte = 0x03
	PrefixTransferID   byte = 0x04
	PrefixTreeNode     byte = 0x05
	PrefixClaim        byte = 0x06
	PrefixCiphertext   byte = 0x07
	PrefixACL          byte = 0x08
	PrefixMeta         byte = 0x09
)

// Table returns the partition of db under prefix.
func Table(db database.Database, prefix byte) database.Database {
	return prefixdb.New([]byte{prefix}, db)
}

// GetRLP decodes the RLP value at key into v. A missing key yields
// database.ErrNotFound.
func GetRLP(r database.KeyValueReader, key []byte, v interface{}) error {
	raw, err := r.Get(key)
	if err != nil {
		return err
	}
	if err := rlp.DecodeBytes(raw, v); err != nil {
		return fmt.Errorf("decode %x: %w", key, err)
	}
	return nil
}

// PutRLP encodes v with RLP and stores it at key.
func PutRLP(w database.KeyValueWriter, key []byte, v interface{}) error {
	raw, err := rlp.EncodeToBytes(v)
	if err != nil {
		return fmt.Errorf("encode %x: %w", key, err)
	}
	return w.Put(key, raw)
}
