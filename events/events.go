// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events publishes darkpool lifecycle events. Events never carry
// plaintext amounts, keys or nullifiers.
package events

import (
	evbus "github.com/asaskevich/EventBus"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/darkpool/identity"
)

// Topics
const (
	TopicPoolInitialized     = "darkpool:pool_initialized"
	TopicPoolActiveChanged   = "darkpool:pool_active_changed"
	TopicRegistrationCreated = "darkpool:registration_created"
	TopicTransferExecuted    = "darkpool:transfer_executed"
	TopicClaimResolved       = "darkpool:claim_resolved"
)

type PoolInitialized struct {
	PoolID    string
	Asset     common.Address
	MinAmount uint64
	MaxAmount uint64
	Timestamp uint64
}

type PoolActiveChanged struct {
	PoolID    string
	Active    bool
	Timestamp uint64
}

type RegistrationCreated struct {
	PoolID     string
	Agent      common.Address
	Commitment identity.Commitment
	Timestamp  uint64
}

// TransferExecuted identifies the amount only by a hash of its ciphertext.
type TransferExecuted struct {
	PoolID         string
	Slot           uint64
	CiphertextHash common.Hash
	Timestamp      uint64
}

// ClaimResolved always reports ClaimedAmount 0; amounts stay encrypted.
type ClaimResolved struct {
	PoolID        string
	Recipient     common.Address
	Slot          uint64
	ClaimedAmount uint64
	Timestamp     uint64
}

// Bus is a typed wrapper around an EventBus instance.
type Bus struct {
	bus evbus.Bus
}

func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

// Subscribe registers fn for topic. fn must take the event value of that
// topic as its only argument.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

func (b *Bus) PoolInitialized(e PoolInitialized) {
	b.bus.Publish(TopicPoolInitialized, e)
}

func (b *Bus) PoolActiveChanged(e PoolActiveChanged) {
	b.bus.Publish(TopicPoolActiveChanged, e)
}

func (b *Bus) RegistrationCreated(e RegistrationCreated) {
	b.bus.Publish(TopicRegistrationCreated, e)
}

func (b *Bus) TransferExecuted(e TransferExecuted) {
	b.bus.Publish(TopicTransferExecuted, e)
}

func (b *Bus) ClaimResolved(e ClaimResolved) {
	b.bus.Publish(TopicClaimResolved, e)
}
