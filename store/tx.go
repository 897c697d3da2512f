// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/database/versiondb"
)

// Tx stages writes in a versioned overlay of the base database, so a
// multi-step update sees its own pending writes. Nothing reaches the base
// database until Commit.
type Tx struct {
	*versiondb.Database
}

// NewTx opens a transaction over db.
func NewTx(db database.Database) *Tx {
	return &Tx{Database: versiondb.New(db)}
}

// Table returns the partition of the transaction under prefix. Writes to
// it commit with the rest of the transaction.
func (tx *Tx) Table(prefix byte) database.Database {
	return Table(tx.Database, prefix)
}

// Update runs fn inside a transaction and commits it when fn succeeds.
// mu, when non-nil, is held for the whole call.
func Update(db database.Database, mu sync.Locker, fn func(tx *Tx) error) error {
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	tx := NewTx(db)
	if err := fn(tx); err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit()
}
