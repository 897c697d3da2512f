// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registration

import (
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/darkpool/fhe"
	"github.com/luxfi/darkpool/fhe/fhetest"
	"github.com/luxfi/darkpool/identity"
	"github.com/luxfi/darkpool/pool"
)

var (
	operator = fhe.Operation{Signer: common.HexToAddress("0x0e01")}
	agent    = common.HexToAddress("0x0a01")
	owner    = common.HexToAddress("0x0b01")
)

func newTestLedger(t *testing.T) (*Ledger, *pool.Registry) {
	t.Helper()
	db := memdb.New()
	t.Cleanup(func() { _ = db.Close() })
	logger := log.NewTestLogger(log.InfoLevel)
	pools := pool.NewRegistry(logger, db, fhetest.New(), fhe.TypeEuint32)
	_, err := pools.Initialize(operator, operator.Signer, "p1", common.Address{}, 10, 1000, 0)
	require.NoError(t, err)
	return New(logger, db, pools), pools
}

func TestRegister(t *testing.T) {
	l, _ := newTestLedger(t)
	n := [32]byte{1}

	reg, err := l.Register("p1", agent, owner, n, 100)
	require.NoError(t, err)
	require.Equal(t, identity.PoolCommitment(n), reg.Commitment)
	require.True(t, reg.Active)

	got, err := l.Lookup("p1", n)
	require.NoError(t, err)
	require.Equal(t, reg, got)

	ok, err := l.IsMember("p1", n)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.IsMember("p1", [32]byte{2})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	l, _ := newTestLedger(t)
	n := [32]byte{1}

	_, err := l.Register("p1", agent, owner, n, 0)
	require.NoError(t, err)
	_, err = l.Register("p1", agent, owner, n, 0)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	// different agent, same nullifier
	_, err = l.Register("p1", common.HexToAddress("0x0a02"), owner, n, 0)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterSameNullifierDifferentPools(t *testing.T) {
	l, pools := newTestLedger(t)
	_, err := pools.Initialize(operator, operator.Signer, "p2", common.Address{}, 0, 10, 0)
	require.NoError(t, err)

	n := [32]byte{1}
	_, err = l.Register("p1", agent, owner, n, 0)
	require.NoError(t, err)
	_, err = l.Register("p2", agent, owner, n, 0)
	require.NoError(t, err)
}

func TestRegisterInactivePool(t *testing.T) {
	l, pools := newTestLedger(t)
	_, err := pools.SetActive(operator.Signer, "p1", false)
	require.NoError(t, err)

	_, err = l.Register("p1", agent, owner, [32]byte{1}, 0)
	require.ErrorIs(t, err, pool.ErrPoolInactive)

	_, err = l.Register("nope", agent, owner, [32]byte{1}, 0)
	require.ErrorIs(t, err, pool.ErrPoolNotFound)
}

func TestDeactivateAndReregister(t *testing.T) {
	l, _ := newTestLedger(t)
	n := [32]byte{3}

	_, err := l.Register("p1", agent, owner, n, 0)
	require.NoError(t, err)

	_, err = l.Deactivate(agent, "p1", n)
	require.ErrorIs(t, err, ErrUnauthorized)

	reg, err := l.Deactivate(owner, "p1", n)
	require.NoError(t, err)
	require.False(t, reg.Active)

	ok, err := l.IsMember("p1", n)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = l.Deactivate(owner, "p1", n)
	require.ErrorIs(t, err, ErrNotRegistered)

	_, err = l.Register("p1", agent, owner, n, 1)
	require.NoError(t, err)
	ok, err = l.IsMember("p1", n)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLookupMissing(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Lookup("p1", [32]byte{9})
	require.ErrorIs(t, err, ErrNotRegistered)
}
