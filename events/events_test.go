// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBus()

	var got []TransferExecuted
	handler := func(e TransferExecuted) { got = append(got, e) }
	require.NoError(t, b.Subscribe(TopicTransferExecuted, handler))

	b.TransferExecuted(TransferExecuted{PoolID: "p1", Slot: 1, CiphertextHash: common.Hash{1}})
	b.TransferExecuted(TransferExecuted{PoolID: "p1", Slot: 2})
	// other topics are not delivered
	b.ClaimResolved(ClaimResolved{PoolID: "p1", Slot: 1})

	require.Len(t, got, 2)
	require.Equal(t, uint64(1), got[0].Slot)
	require.Equal(t, common.Hash{1}, got[0].CiphertextHash)

	require.NoError(t, b.Unsubscribe(TopicTransferExecuted, handler))
	b.TransferExecuted(TransferExecuted{PoolID: "p1", Slot: 3})
	require.Len(t, got, 2)
}

func TestSubscribeRejectsNonFunc(t *testing.T) {
	b := NewBus()
	require.Error(t, b.Subscribe(TopicClaimResolved, 42))
}
