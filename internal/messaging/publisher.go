package messaging

import (
	"context"

	"github.com/plexlabs/vault-indexer/internal/domain"
)

// Publisher defines the interface for publishing chain events to the
// message broker
type Publisher interface {
	// PublishEvent publishes a chain event to the message broker
	PublishEvent(ctx context.Context, event *domain.ChainEvent) error
	// Close closes the connection
	Close()
}
