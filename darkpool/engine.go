// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package darkpool is an anonymous transfer engine. Registered agents move
// encrypted amounts inside pools by presenting a zero-knowledge proof of
// membership. Amounts are clamped to the pool bounds and summed without
// ever being decrypted, and recipients claim transfers with a secret key.
package darkpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeebo/blake3"

	"github.com/luxfi/darkpool/claim"
	"github.com/luxfi/darkpool/events"
	"github.com/luxfi/darkpool/fhe"
	"github.com/luxfi/darkpool/identity"
	"github.com/luxfi/darkpool/ledger"
	"github.com/luxfi/darkpool/pool"
	"github.com/luxfi/darkpool/registration"
	"github.com/luxfi/darkpool/zk"
)

// Directory is the external registry of agents.
type Directory interface {
	claim.Directory
	IsRegistered(agent common.Address) bool
}

// Deps are the collaborators of an Engine. Verifier, VerifyingKey,
// Settlement, Bus, Registerer and Clock are optional.
type Deps struct {
	Log          log.Logger
	DB           database.Database
	HE           fhe.Service
	Directory    Directory
	Verifier     zk.Verifier
	VerifyingKey *zk.VerifyingKey
	Settlement   claim.Settlement
	Bus          *events.Bus
	Registerer   prometheus.Registerer
	Clock        func() time.Time
}

// TransferRequest is a sender's submission. Nullifier, Recipient and
// Ciphertext are the public inputs of Proof.
type TransferRequest struct {
	PoolID     string
	Nullifier  [32]byte
	Recipient  identity.Commitment
	Ciphertext []byte
	Proof      []byte
}

// Receipt describes a recorded transfer. It reveals nothing about the
// amount or whether it was within bounds.
type Receipt struct {
	Slot           uint64
	TransferID     common.Hash
	CiphertextHash common.Hash
	Amount         fhe.Handle
}

type Engine struct {
	cfg      Config
	log      log.Logger
	op       fhe.Operation
	acc      *fhe.Accumulator
	verifier zk.Verifier
	vk       *zk.VerifyingKey
	dir      Directory
	bus      *events.Bus
	metrics  *metrics
	now      func() time.Time

	pools  *pool.Registry
	regs   *registration.Ledger
	ledger *ledger.Ledger
	claims *claim.Resolver
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Verify(); err != nil {
		return nil, fmt.Errorf("invalid darkpool config: %w", err)
	}
	switch {
	case deps.Log == nil:
		return nil, fmt.Errorf("%w: logger", ErrNilDependency)
	case deps.DB == nil:
		return nil, fmt.Errorf("%w: database", ErrNilDependency)
	case deps.HE == nil:
		return nil, fmt.Errorf("%w: fhe service", ErrNilDependency)
	case deps.Directory == nil:
		return nil, fmt.Errorf("%w: agent directory", ErrNilDependency)
	}

	vk := deps.VerifyingKey
	if vk == nil {
		if len(cfg.VerifyingKey) == 0 {
			return nil, fmt.Errorf("%w: verifying key", ErrNilDependency)
		}
		var err error
		vk, err = zk.LoadVerifyingKey(cfg.VerifyingKey)
		if err != nil {
			return nil, fmt.Errorf("load verifying key: %w", err)
		}
	}
	verifier := deps.Verifier
	if verifier == nil {
		v, err := zk.NewGroth16Verifier(deps.Log, cfg.ProofCacheSize)
		if err != nil {
			return nil, err
		}
		verifier = v
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	reg := deps.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := newMetrics(cfg.MetricsNamespace, reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	l, err := ledger.New(deps.Log, deps.DB, cfg.IndexerKey)
	if err != nil {
		return nil, err
	}
	op := fhe.Operation{Signer: cfg.Operator}
	pools := pool.NewRegistry(deps.Log, deps.DB, deps.HE, cfg.CiphertextType)

	return &Engine{
		cfg:      cfg,
		log:      deps.Log,
		op:       op,
		acc:      fhe.NewAccumulator(deps.HE, op, cfg.CiphertextType),
		verifier: verifier,
		vk:       vk,
		dir:      deps.Directory,
		bus:      bus,
		metrics:  m,
		now:      clock,
		pools:    pools,
		regs:     registration.New(deps.Log, deps.DB, pools),
		ledger:   l,
		claims:   claim.NewResolver(deps.Log, deps.DB, l, deps.Directory, deps.Settlement),
	}, nil
}

func (e *Engine) timestamp() uint64 {
	return uint64(e.now().Unix())
}

// Events returns the bus engine events are published on.
func (e *Engine) Events() *events.Bus { return e.bus }

// InitializePool creates pool id with inclusive amount bounds [min, max].
// caller becomes the pool authority.
func (e *Engine) InitializePool(caller common.Address, id string, asset common.Address, min, max uint64) (*pool.Pool, error) {
	p, err := e.pools.Initialize(e.op, caller, id, asset, min, max, e.timestamp())
	if err != nil {
		return nil, err
	}
	e.bus.PoolInitialized(events.PoolInitialized{
		PoolID:    p.ID,
		Asset:     p.Asset,
		MinAmount: p.MinAmount,
		MaxAmount: p.MaxAmount,
		Timestamp: p.CreatedAt,
	})
	return p, nil
}

// SetPoolActive pauses or resumes a pool. Only its authority may call it.
func (e *Engine) SetPoolActive(caller common.Address, id string, active bool) (*pool.Pool, error) {
	p, err := e.pools.SetActive(caller, id, active)
	if err != nil {
		return nil, err
	}
	e.bus.PoolActiveChanged(events.PoolActiveChanged{
		PoolID:    id,
		Active:    p.Active,
		Timestamp: e.timestamp(),
	})
	return p, nil
}

// Register joins agent to poolID under nullifier. caller must own agent
// in the directory.
func (e *Engine) Register(caller, agent common.Address, poolID string, nullifier [32]byte) (*registration.Registration, error) {
	if !e.dir.IsRegistered(agent) {
		return nil, fmt.Errorf("%w: %s", ErrAgentUnknown, agent.Hex())
	}
	owner, ok := e.dir.Owner(agent)
	if !ok || owner != caller {
		return nil, fmt.Errorf("%w: %s does not own %s", ErrUnauthorized, caller.Hex(), agent.Hex())
	}
	reg, err := e.regs.Register(poolID, agent, caller, nullifier, e.timestamp())
	if err != nil {
		return nil, err
	}
	e.bus.RegistrationCreated(events.RegistrationCreated{
		PoolID:     poolID,
		Agent:      agent,
		Commitment: reg.Commitment,
		Timestamp:  reg.RegisteredAt,
	})
	return reg, nil
}

// Deregister deactivates a registration so its nullifier can no longer
// transfer. The nullifier may be registered again later.
func (e *Engine) Deregister(caller common.Address, poolID string, nullifier [32]byte) (*registration.Registration, error) {
	reg, err := e.regs.Deactivate(caller, poolID, nullifier)
	if err != nil {
		return nil, unauthorized(err)
	}
	return reg, nil
}

// Transfer executes req. On success the clamped amount has been added to
// the pool volume and a record is appended to the ledger. On failure
// nothing has changed.
func (e *Engine) Transfer(ctx context.Context, req *TransferRequest) (*Receipt, error) {
	start := time.Now()
	defer func() {
		e.metrics.transferDuration.Observe(time.Since(start).Seconds())
	}()

	receipt, err := e.transfer(ctx, req)
	if err != nil {
		e.metrics.rejections.WithLabelValues(reason(err)).Inc()
		e.log.Debug("transfer rejected",
			log.String("pool", req.PoolID),
			log.String("state", StateRejected.String()),
			log.String("error", err.Error()),
		)
		return nil, err
	}
	e.metrics.transfers.Inc()
	return receipt, nil
}

func (e *Engine) transfer(ctx context.Context, req *TransferRequest) (*Receipt, error) {
	e.trace(req.PoolID, StateRequested)

	if len(req.Proof) != zk.ProofSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidProofSize, len(req.Proof), zk.ProofSize)
	}
	p, err := e.pools.Get(req.PoolID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: %s", ErrPoolInactive, req.PoolID)
	}
	member, err := e.regs.IsMember(req.PoolID, req.Nullifier)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, req.PoolID)
	}

	transferID := TransferID(req)
	switch _, err := e.ledger.SlotOf(transferID); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransfer, transferID.Hex())
	case !errors.Is(err, ledger.ErrNotFound):
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputs := [][]byte{req.Nullifier[:], req.Recipient[:], req.Ciphertext}
	if err := e.verifier.Verify(e.vk, req.Proof, inputs); err != nil {
		if !errors.Is(err, ErrInvalidProof) && !errors.Is(err, ErrInvalidProofSize) {
			err = fmt.Errorf("%w: %w", ErrInvalidProof, err)
		}
		return nil, err
	}
	e.metrics.transferAttempts.Inc()
	e.trace(req.PoolID, StateProofVerified)

	unlock := e.pools.Lock(req.PoolID)
	defer unlock()

	// The pool may have been paused while the proof was checked.
	p, err = e.pools.Get(req.PoolID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: %s", ErrPoolInactive, req.PoolID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	amount, err := e.acc.Decode(req.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("load amount: %w", err)
	}
	// only the clamped copy of the amount outlives the transfer
	defer e.discard(amount)
	e.trace(req.PoolID, StateAmountLoaded)

	effective, err := e.acc.Clamp(amount, p.MinAmount, p.MaxAmount)
	if err != nil {
		e.discard(effective)
		return nil, fmt.Errorf("check bounds: %w", err)
	}
	e.trace(req.PoolID, StateBoundsChecked)

	next, err := e.pools.Accumulate(e.op, p, effective)
	if err != nil {
		e.discard(effective)
		return nil, err
	}
	e.trace(req.PoolID, StateAccumulated)

	rec := &ledger.TransferRecord{
		PoolID:     req.PoolID,
		Sender:     identity.SenderCommitment(req.Nullifier),
		Recipient:  req.Recipient,
		Ciphertext: common.Hash(blake3.Sum256(req.Ciphertext)),
		Amount:     effective,
		IsValid:    true,
		TransferID: transferID,
		Timestamp:  e.timestamp(),
	}
	err = e.ledger.Update(func(tx *ledger.Tx) error {
		if err := e.pools.Put(tx.Tx, p, next); err != nil {
			return err
		}
		_, err := tx.Append(rec)
		return err
	})
	if err != nil {
		e.discard(effective, next.Volume)
		return nil, err
	}
	e.trace(req.PoolID, StateRecorded)

	e.bus.TransferExecuted(events.TransferExecuted{
		PoolID:         rec.PoolID,
		Slot:           rec.Slot,
		CiphertextHash: rec.Ciphertext,
		Timestamp:      rec.Timestamp,
	})
	return &Receipt{
		Slot:           rec.Slot,
		TransferID:     transferID,
		CiphertextHash: rec.Ciphertext,
		Amount:         effective,
	}, nil
}

// TransferID identifies the statement of req. Every proof of the same
// nullifier, recipient and ciphertext maps to the same id, so a retried or
// re-randomized submission is recognized as a duplicate.
func TransferID(req *TransferRequest) common.Hash {
	h := blake3.New()
	h.Write(req.Nullifier[:])
	h.Write(req.Recipient[:])
	h.Write(req.Ciphertext)
	var id common.Hash
	copy(id[:], h.Sum(nil))
	return id
}

// discard drops ciphertexts of an abandoned or finished transfer.
func (e *Engine) discard(handles ...fhe.Handle) {
	if err := e.acc.Discard(handles...); err != nil {
		e.log.Warn("discard ciphertexts failed",
			log.String("error", err.Error()),
		)
	}
}

// Claim resolves the transfer at slot for agent. caller must own agent
// and key must open the recipient commitment of the record. If the claim
// is recorded but settlement fails, the record is returned together with
// an ErrSettlement error.
func (e *Engine) Claim(ctx context.Context, caller, agent common.Address, slot uint64, key [32]byte) (*claim.Record, error) {
	rec, transfer, err := e.claims.Claim(ctx, caller, agent, slot, key, e.timestamp())
	if rec == nil {
		err = unauthorized(err)
		e.metrics.rejections.WithLabelValues(reason(err)).Inc()
		return nil, err
	}
	e.metrics.claims.Inc()
	e.bus.ClaimResolved(events.ClaimResolved{
		PoolID:    transfer.PoolID,
		Recipient: agent,
		Slot:      slot,
		Timestamp: rec.ClaimedAt,
	})
	if err != nil {
		e.metrics.rejections.WithLabelValues(reason(err)).Inc()
		return rec, err
	}
	return rec, nil
}

func (e *Engine) Pool(id string) (*pool.Pool, error) {
	return e.pools.Get(id)
}

func (e *Engine) Registration(poolID string, nullifier [32]byte) (*registration.Registration, error) {
	return e.regs.Lookup(poolID, nullifier)
}

func (e *Engine) ClaimRecord(slot uint64) (*claim.Record, error) {
	return e.claims.Get(slot)
}

// Record returns the ledger record at slot with its inclusion proof.
func (e *Engine) Record(slot uint64) (*ledger.TransferRecord, *ledger.InclusionProof, error) {
	return e.ledger.Fetch(slot)
}

// Root returns the current ledger root.
func (e *Engine) Root() ([32]byte, error) {
	return e.ledger.Root()
}
