package domain

import "errors"

var (
	// ErrUnsupportedChain is returned when a chain id outside the supported set is used
	ErrUnsupportedChain = errors.New("unsupported chain id")

	// ErrDuplicateEvent is returned when a ledger insert collides with an already
	// ingested transaction hash; expected under at-least-once event delivery
	ErrDuplicateEvent = errors.New("duplicate event")
)
