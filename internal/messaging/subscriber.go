package messaging

import (
	"context"

	"github.com/plexlabs/vault-indexer/internal/domain"
)

// EventHandler is called for each decoded chain event
type EventHandler func(event *domain.ChainEvent) error

// Subscriber defines the interface for subscribing to on-chain vault events
type Subscriber interface {
	// SubscribeEvents subscribes to vault contract events starting at
	// fromBlock (0 for latest) and invokes handler for each decoded event
	SubscribeEvents(ctx context.Context, fromBlock uint64, handler EventHandler) error

	// GetLatestBlock returns the latest block number
	GetLatestBlock(ctx context.Context) (uint64, error)

	// Close closes the connection and cleans up resources
	Close()
}
