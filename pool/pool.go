// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pool keeps the configuration and encrypted running state of
// darkpools: the amount bounds fixed at creation, the active flag, the
// encrypted total volume and the transfer counter.
package pool

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/darkpool/fhe"
	"github.com/luxfi/darkpool/store"
)

const MaxIDLen = 64

var (
	ErrPoolNotFound    = errors.New("pool not found")
	ErrPoolExists      = errors.New("pool already exists")
	ErrPoolInactive    = errors.New("pool is inactive")
	ErrInvalidBounds   = errors.New("invalid bounds: min exceeds max")
	ErrInvalidPoolID   = errors.New("invalid pool id")
	ErrCounterOverflow = errors.New("transfer counter overflow")
	ErrConflict        = errors.New("pool modified concurrently")
	ErrUnauthorized    = errors.New("unauthorized")
)

// Pool is the persisted state of one darkpool.
type Pool struct {
	ID        string
	Asset     common.Address
	Authority common.Address
	MinAmount uint64
	MaxAmount uint64
	Active    bool
	Volume    common.Hash // encrypted total volume
	Transfers uint64      // accepted transfer attempts
	Version   uint64
	CreatedAt uint64
}

func (p *Pool) clone() *Pool {
	c := *p
	return &c
}

// Registry creates and updates pools.
type Registry struct {
	log   log.Logger
	pools database.Database
	he    fhe.Service
	typ   uint8

	createMu sync.Mutex
	locks    sync.Map // pool id -> *sync.Mutex
}

func NewRegistry(logger log.Logger, db database.Database, he fhe.Service, typ uint8) *Registry {
	return &Registry{
		log:   logger,
		pools: store.Table(db, store.PrefixPool),
		he:    he,
		typ:   typ,
	}
}

// Lock serializes updates to one pool. Distinct pools do not contend.
func (r *Registry) Lock(id string) func() {
	v, _ := r.locks.LoadOrStore(id, new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Initialize creates an active pool with an encrypted zero volume computed
// under op. authority may toggle the pool and read its volume.
func (r *Registry) Initialize(op fhe.Operation, authority common.Address, id string, asset common.Address, min, max uint64, now uint64) (*Pool, error) {
	if id == "" || len(id) > MaxIDLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPoolID, id)
	}
	if min > max {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidBounds, min, max)
	}
	if !fhe.Fits(max, r.typ) {
		return nil, fmt.Errorf("%w: max %d exceeds ciphertext width", ErrInvalidBounds, max)
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	exists, err := r.pools.Has([]byte(id))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrPoolExists, id)
	}

	volume, err := r.he.EncryptConstant(op, 0, r.typ)
	if err != nil {
		return nil, fmt.Errorf("encrypt initial volume: %w", err)
	}
	if authority != op.Signer {
		if err := r.he.Allow(op, volume, authority); err != nil {
			return nil, err
		}
	}

	p := &Pool{
		ID:        id,
		Asset:     asset,
		Authority: authority,
		MinAmount: min,
		MaxAmount: max,
		Active:    true,
		Volume:    volume,
		Version:   1,
		CreatedAt: now,
	}
	if err := store.PutRLP(r.pools, []byte(id), p); err != nil {
		return nil, err
	}
	r.log.Info("pool initialized",
		log.String("pool", id),
		log.String("asset", asset.Hex()),
	)
	return p, nil
}

// Get returns a copy of the stored pool.
func (r *Registry) Get(id string) (*Pool, error) {
	return r.get(r.pools, id)
}

func (r *Registry) get(pools database.KeyValueReader, id string) (*Pool, error) {
	var p Pool
	err := store.GetRLP(pools, []byte(id), &p)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Accumulate computes the pool state after adding delta to the volume and
// counting one more transfer. Nothing is written; pass the result to Put.
func (r *Registry) Accumulate(op fhe.Operation, p *Pool, delta fhe.Handle) (*Pool, error) {
	if !p.Active {
		return nil, fmt.Errorf("%w: %s", ErrPoolInactive, p.ID)
	}
	if p.Transfers == math.MaxUint64 {
		return nil, fmt.Errorf("%w: %s", ErrCounterOverflow, p.ID)
	}
	volume, err := r.he.Add(op, p.Volume, delta)
	if err != nil {
		return nil, fmt.Errorf("accumulate volume: %w", err)
	}
	if p.Authority != op.Signer {
		if err := r.he.Allow(op, volume, p.Authority); err != nil {
			_ = r.he.Discard(op, volume)
			return nil, err
		}
	}

	next := p.clone()
	next.Volume = volume
	next.Transfers++
	next.Version++
	return next, nil
}

// Put stages next in tx if the stored pool is still at prev's version.
func (r *Registry) Put(tx *store.Tx, prev, next *Pool) error {
	return r.put(tx.Table(store.PrefixPool), prev, next)
}

func (r *Registry) put(pools database.KeyValueReaderWriter, prev, next *Pool) error {
	cur, err := r.get(pools, prev.ID)
	if err != nil {
		return err
	}
	if cur.Version != prev.Version {
		return fmt.Errorf("%w: %s at version %d, expected %d", ErrConflict, prev.ID, cur.Version, prev.Version)
	}
	return store.PutRLP(pools, []byte(next.ID), next)
}

// SetActive toggles whether a pool accepts registrations and transfers.
// Only the pool authority may call it.
func (r *Registry) SetActive(caller common.Address, id string, active bool) (*Pool, error) {
	unlock := r.Lock(id)
	defer unlock()

	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if p.Authority != caller {
		return nil, fmt.Errorf("%w: %s is not the authority of %s", ErrUnauthorized, caller.Hex(), id)
	}
	if p.Active == active {
		return p, nil
	}
	next := p.clone()
	next.Active = active
	next.Version++
	if err := r.put(r.pools, p, next); err != nil {
		return nil, err
	}
	r.log.Info("pool active flag changed",
		log.String("pool", id),
		log.Bool("active", active),
	)
	return next, nil
}
