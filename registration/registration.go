// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registration records which nullifiers have joined which pool.
// Registrations are keyed by (pool, nullifier), so a nullifier holds at
// most one active registration per pool.
package registration

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/darkpool/identity"
	"github.com/luxfi/darkpool/pool"
	"github.com/luxfi/darkpool/store"
)

var (
	ErrAlreadyRegistered = errors.New("nullifier already registered in pool")
	ErrNotRegistered     = errors.New("agent not registered in pool")
	ErrUnauthorized      = errors.New("caller does not own registration")
)

type Registration struct {
	PoolID       string
	Agent        common.Address
	Owner        common.Address
	Nullifier    [32]byte
	Commitment   identity.Commitment
	Active       bool
	RegisteredAt uint64
}

type Ledger struct {
	log   log.Logger
	db    database.Database
	pools *pool.Registry

	mu sync.Mutex
}

func New(logger log.Logger, db database.Database, pools *pool.Registry) *Ledger {
	return &Ledger{
		log:   logger,
		db:    store.Table(db, store.PrefixRegistration),
		pools: pools,
	}
}

func registrationKey(poolID string, nullifier [32]byte) []byte {
	return slices.Concat([]byte{byte(len(poolID))}, []byte(poolID), nullifier[:])
}

// Register joins nullifier to an active pool on behalf of agent.
func (l *Ledger) Register(poolID string, agent, owner common.Address, nullifier [32]byte, now uint64) (*Registration, error) {
	p, err := l.pools.Get(poolID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: %s", pool.ErrPoolInactive, poolID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.lookup(poolID, nullifier)
	switch {
	case err == nil && existing.Active:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, poolID)
	case err != nil && !errors.Is(err, ErrNotRegistered):
		return nil, err
	}

	reg := &Registration{
		PoolID:       poolID,
		Agent:        agent,
		Owner:        owner,
		Nullifier:    nullifier,
		Commitment:   identity.PoolCommitment(nullifier),
		Active:       true,
		RegisteredAt: now,
	}
	if err := store.PutRLP(l.db, registrationKey(poolID, nullifier), reg); err != nil {
		return nil, err
	}
	l.log.Debug("agent registered",
		log.String("pool", poolID),
		log.String("commitment", reg.Commitment.Hex()),
	)
	return reg, nil
}

// Deactivate ends a registration. The nullifier may register again later.
func (l *Ledger) Deactivate(owner common.Address, poolID string, nullifier [32]byte) (*Registration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	reg, err := l.lookup(poolID, nullifier)
	if err != nil {
		return nil, err
	}
	if !reg.Active {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, poolID)
	}
	if reg.Owner != owner {
		return nil, ErrUnauthorized
	}
	reg.Active = false
	if err := store.PutRLP(l.db, registrationKey(poolID, nullifier), reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Lookup returns the registration for (poolID, nullifier), active or not.
func (l *Ledger) Lookup(poolID string, nullifier [32]byte) (*Registration, error) {
	return l.lookup(poolID, nullifier)
}

func (l *Ledger) lookup(poolID string, nullifier [32]byte) (*Registration, error) {
	var reg Registration
	err := store.GetRLP(l.db, registrationKey(poolID, nullifier), &reg)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, poolID)
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// IsMember reports whether nullifier holds an active registration in poolID.
func (l *Ledger) IsMember(poolID string, nullifier [32]byte) (bool, error) {
	reg, err := l.lookup(poolID, nullifier)
	if errors.Is(err, ErrNotRegistered) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return reg.Active, nil
}
