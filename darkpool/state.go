// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package darkpool

import (
	"github.com/luxfi/log"
)

// State is a step of the transfer state machine. A transfer moves through
// the states in order and ends either Recorded or Rejected.
type State uint8

const (
	StateRequested State = iota
	StateProofVerified
	StateAmountLoaded
	StateBoundsChecked
	StateAccumulated
	StateRecorded
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateProofVerified:
		return "proof_verified"
	case StateAmountLoaded:
		return "amount_loaded"
	case StateBoundsChecked:
		return "bounds_checked"
	case StateAccumulated:
		return "accumulated"
	case StateRecorded:
		return "recorded"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func (e *Engine) trace(poolID string, s State) {
	e.log.Debug("transfer state",
		log.String("pool", poolID),
		log.String("state", s.String()),
	)
}
