// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package darkpool

import (
	"errors"
	"fmt"

	"github.com/luxfi/darkpool/claim"
	"github.com/luxfi/darkpool/ledger"
	"github.com/luxfi/darkpool/pool"
	"github.com/luxfi/darkpool/registration"
	"github.com/luxfi/darkpool/zk"
)

// Errors returned by the engine. They alias the sentinels of the packages
// that detect them so callers need only import darkpool.
var (
	ErrPoolInactive      = pool.ErrPoolInactive
	ErrInvalidBounds     = pool.ErrInvalidBounds
	ErrCounterOverflow   = pool.ErrCounterOverflow
	ErrPoolNotFound      = pool.ErrPoolNotFound
	ErrPoolExists        = pool.ErrPoolExists
	ErrUnauthorized      = pool.ErrUnauthorized
	ErrInvalidProofSize  = zk.ErrInvalidProofSize
	ErrInvalidProof      = zk.ErrInvalidProof
	ErrInvalidClaim      = claim.ErrInvalidClaim
	ErrDuplicateClaim    = claim.ErrDuplicateClaim
	ErrSettlement        = claim.ErrSettlement
	ErrNotFound          = ledger.ErrNotFound
	ErrDuplicateTransfer = ledger.ErrDuplicateTransfer
	ErrAlreadyRegistered = registration.ErrAlreadyRegistered
	ErrNotRegistered     = registration.ErrNotRegistered

	ErrAgentUnknown  = errors.New("agent not in directory")
	ErrNilDependency = errors.New("missing engine dependency")
)

// unauthorized folds the per-package authorization failures into
// ErrUnauthorized while keeping the original error in the chain.
func unauthorized(err error) error {
	if errors.Is(err, claim.ErrUnauthorized) || errors.Is(err, registration.ErrUnauthorized) {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return err
}

// reason maps an error to the label of the rejections metric.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidProofSize):
		return "invalid_proof_size"
	case errors.Is(err, ErrInvalidProof):
		return "invalid_proof"
	case errors.Is(err, ErrPoolNotFound):
		return "pool_not_found"
	case errors.Is(err, ErrPoolInactive):
		return "pool_inactive"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, ErrDuplicateTransfer):
		return "duplicate_transfer"
	case errors.Is(err, ErrCounterOverflow):
		return "counter_overflow"
	case errors.Is(err, ErrInvalidClaim):
		return "invalid_claim"
	case errors.Is(err, ErrDuplicateClaim):
		return "duplicate_claim"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSettlement):
		return "settlement"
	default:
		return "internal"
	}
}
