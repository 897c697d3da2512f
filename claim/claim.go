// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package claim lets a recipient prove, by reproducing the recipient
// commitment of a transfer record, that the transfer is addressed to them,
// and records the claim so each slot is claimed at most once.
package claim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/darkpool/identity"
	"github.com/luxfi/darkpool/ledger"
	"github.com/luxfi/darkpool/store"
)

var (
	ErrUnauthorized   = errors.New("caller does not own agent")
	ErrInvalidClaim   = errors.New("claim key does not match recipient commitment")
	ErrDuplicateClaim = errors.New("transfer already claimed")
	ErrSettlement     = errors.New("settlement failed")
)

// Directory resolves the owner of an agent.
type Directory interface {
	Owner(agent common.Address) (common.Address, bool)
}

// Settlement moves value once a claim is recorded. Implementations must
// tolerate being called again for the same slot.
type Settlement interface {
	Settle(ctx context.Context, claim *Record, transfer *ledger.TransferRecord) error
}

// Record is the persisted claim of one transfer slot.
type Record struct {
	Slot        uint64
	Recipient   common.Address
	Fingerprint identity.Fingerprint
	Claimed     bool
	ClaimedAt   uint64
}

type Resolver struct {
	log    log.Logger
	db     database.Database
	ledger *ledger.Ledger
	dir    Directory
	settle Settlement

	mu sync.Mutex
}

// NewResolver creates a resolver. settle may be nil.
func NewResolver(logger log.Logger, db database.Database, l *ledger.Ledger, dir Directory, settle Settlement) *Resolver {
	return &Resolver{
		log:    logger,
		db:     store.Table(db, store.PrefixClaim),
		ledger: l,
		dir:    dir,
		settle: settle,
	}
}

func claimKey(slot uint64) []byte {
	return database.PackUInt64(slot)
}

// Claim resolves slot for agent. caller must own agent and key must derive
// the recipient commitment stored in the record.
func (r *Resolver) Claim(ctx context.Context, caller, agent common.Address, slot uint64, key [32]byte, now uint64) (*Record, *ledger.TransferRecord, error) {
	owner, ok := r.dir.Owner(agent)
	if !ok || owner != caller {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnauthorized, agent.Hex())
	}

	expected := identity.ClaimCommitment(key)
	transfer, _, err := r.ledger.Fetch(slot)
	if err != nil {
		return nil, nil, err
	}
	if transfer.Recipient != expected {
		return nil, nil, fmt.Errorf("%w: slot %d", ErrInvalidClaim, slot)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	claimed, err := r.db.Has(claimKey(slot))
	if err != nil {
		return nil, nil, err
	}
	if claimed {
		return nil, nil, fmt.Errorf("%w: slot %d", ErrDuplicateClaim, slot)
	}

	rec := &Record{
		Slot:        slot,
		Recipient:   agent,
		Fingerprint: identity.FingerprintOf(key),
		Claimed:     true,
		ClaimedAt:   now,
	}
	if err := store.PutRLP(r.db, claimKey(slot), rec); err != nil {
		return nil, nil, err
	}
	r.log.Debug("transfer claimed",
		log.Int("slot", int(slot)),
	)

	if r.settle != nil {
		if err := r.settle.Settle(ctx, rec, transfer); err != nil {
			r.log.Warn("settlement failed",
				log.Int("slot", int(slot)),
				log.String("error", err.Error()),
			)
			return rec, transfer, fmt.Errorf("%w: %w", ErrSettlement, err)
		}
	}
	return rec, transfer, nil
}

// Get returns the claim of slot, ErrNotFound-wrapped when unclaimed.
func (r *Resolver) Get(slot uint64) (*Record, error) {
	var rec Record
	err := store.GetRLP(r.db, claimKey(slot), &rec)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: no claim for slot %d", ledger.ErrNotFound, slot)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
