// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package claim

import (
	"context"
	"errors"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/darkpool/identity"
	"github.com/luxfi/darkpool/ledger"
)

var (
	agent  = common.HexToAddress("0x0a01")
	owner  = common.HexToAddress("0x0b01")
	other  = common.HexToAddress("0x0b02")
	recKey = [32]byte{0xde, 0xad}
)

type staticDirectory map[common.Address]common.Address

func (d staticDirectory) Owner(a common.Address) (common.Address, bool) {
	o, ok := d[a]
	return o, ok
}

type recordingSettlement struct {
	calls []uint64
	err   error
}

func (s *recordingSettlement) Settle(_ context.Context, c *Record, _ *ledger.TransferRecord) error {
	s.calls = append(s.calls, c.Slot)
	return s.err
}

func setup(t *testing.T, settle Settlement) (*Resolver, uint64) {
	t.Helper()
	db := memdb.New()
	t.Cleanup(func() { _ = db.Close() })
	logger := log.NewTestLogger(log.InfoLevel)

	l, err := ledger.New(logger, db, make([]byte, 32))
	require.NoError(t, err)

	var slot uint64
	require.NoError(t, l.Update(func(tx *ledger.Tx) error {
		slot, err = tx.Append(&ledger.TransferRecord{
			PoolID:     "p1",
			Recipient:  identity.ClaimCommitment(recKey),
			IsValid:    true,
			TransferID: common.Hash{1},
		})
		return err
	}))

	dir := staticDirectory{agent: owner}
	return NewResolver(logger, db, l, dir, settle), slot
}

func TestClaim(t *testing.T) {
	settle := &recordingSettlement{}
	r, slot := setup(t, settle)

	rec, transfer, err := r.Claim(context.Background(), owner, agent, slot, recKey, 99)
	require.NoError(t, err)
	require.True(t, rec.Claimed)
	require.Equal(t, agent, rec.Recipient)
	require.Equal(t, identity.FingerprintOf(recKey), rec.Fingerprint)
	require.Equal(t, uint64(99), rec.ClaimedAt)
	require.Equal(t, slot, transfer.Slot)
	require.Equal(t, []uint64{slot}, settle.calls)

	got, err := r.Get(slot)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestClaimTwiceRejected(t *testing.T) {
	settle := &recordingSettlement{}
	r, slot := setup(t, settle)

	_, _, err := r.Claim(context.Background(), owner, agent, slot, recKey, 0)
	require.NoError(t, err)
	_, _, err = r.Claim(context.Background(), owner, agent, slot, recKey, 0)
	require.ErrorIs(t, err, ErrDuplicateClaim)
	require.Len(t, settle.calls, 1)
}

func TestClaimWrongKey(t *testing.T) {
	r, slot := setup(t, nil)
	_, _, err := r.Claim(context.Background(), owner, agent, slot, [32]byte{1}, 0)
	require.ErrorIs(t, err, ErrInvalidClaim)

	_, err = r.Get(slot)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestClaimUnauthorized(t *testing.T) {
	r, slot := setup(t, nil)

	_, _, err := r.Claim(context.Background(), other, agent, slot, recKey, 0)
	require.ErrorIs(t, err, ErrUnauthorized)

	// unknown agent
	_, _, err = r.Claim(context.Background(), owner, common.HexToAddress("0x0a99"), slot, recKey, 0)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestClaimUnknownSlot(t *testing.T) {
	r, _ := setup(t, nil)
	_, _, err := r.Claim(context.Background(), owner, agent, 42, recKey, 0)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestClaimSettlementFailureKeepsClaim(t *testing.T) {
	boom := errors.New("boom")
	settle := &recordingSettlement{err: boom}
	r, slot := setup(t, settle)

	rec, _, err := r.Claim(context.Background(), owner, agent, slot, recKey, 0)
	require.ErrorIs(t, err, ErrSettlement)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, rec)

	_, _, err = r.Claim(context.Background(), owner, agent, slot, recKey, 0)
	require.ErrorIs(t, err, ErrDuplicateClaim)
}
