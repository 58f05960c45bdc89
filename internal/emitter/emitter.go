// Package emitter pumps decoded vault events from the chain subscription into
// the message broker, checkpointing its position so restarts resume where the
// previous run stopped.
package emitter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/plexlabs/vault-indexer/internal/adapter"
	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/logger"
	"github.com/plexlabs/vault-indexer/internal/messaging"
	"github.com/plexlabs/vault-indexer/internal/store"
)

// Config holds the configuration for the event emitter
type Config struct {
	ChainID         domain.ChainID
	StartBlock      uint64
	CursorSaveFreq  uint64        // Save cursor every N blocks
	CursorSaveDelay time.Duration // Or save cursor every N seconds
}

// Emitter defines the interface for the event emitter
type Emitter interface {
	// Run starts the event emitter
	Run(ctx context.Context) error
	// Close closes the emitter and cleans up resources
	Close()
}

type emitter struct {
	subscriber messaging.Subscriber
	publisher  messaging.Publisher
	cursors    store.CursorStore
	config     Config
	clock      adapter.Clock
}

// NewEmitter creates a new event emitter
func NewEmitter(
	sub messaging.Subscriber,
	pub messaging.Publisher,
	cursors store.CursorStore,
	cfg Config,
	clock adapter.Clock,
) Emitter {
	return &emitter{
		subscriber: sub,
		publisher:  pub,
		cursors:    cursors,
		config:     cfg,
		clock:      clock,
	}
}

// Run starts the event emitter
func (e *emitter) Run(ctx context.Context) error {
	startBlock, err := e.resolveStartBlock(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("Starting event subscription", zap.Int("chain_id", int(e.config.ChainID)))

		lastSavedBlock := uint64(0)
		lastSaveTime := e.clock.Now()

		handler := func(event *domain.ChainEvent) error {
			if err := e.publisher.PublishEvent(ctx, event); err != nil {
				return fmt.Errorf("failed to publish event: %w", err)
			}

			blockNumber := eventBlock(event)
			if blockNumber == 0 {
				return nil
			}

			// Save cursor every N blocks or N seconds
			shouldSave := blockNumber-lastSavedBlock >= e.config.CursorSaveFreq ||
				e.clock.Since(lastSaveTime) >= e.config.CursorSaveDelay

			if shouldSave {
				if err := e.cursors.SetBlockCursor(ctx, e.config.ChainID, blockNumber); err != nil {
					logger.ErrorCtx(ctx, err, zap.String("message", "Failed to save block cursor"))
				} else {
					lastSavedBlock = blockNumber
					lastSaveTime = e.clock.Now()
				}
			}

			return nil
		}

		if err := e.subscriber.SubscribeEvents(ctx, startBlock, handler); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveStartBlock picks the subscription starting point: the configured
// block, the saved cursor, or the chain head, in that order
func (e *emitter) resolveStartBlock(ctx context.Context) (uint64, error) {
	if e.config.StartBlock != 0 {
		logger.Info("Starting from configured block",
			zap.Int("chain_id", int(e.config.ChainID)),
			zap.Uint64("block", e.config.StartBlock))
		return e.config.StartBlock, nil
	}

	lastBlock, err := e.cursors.GetBlockCursor(ctx, e.config.ChainID)
	if err != nil {
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}

	if lastBlock > 0 {
		startBlock := lastBlock + 1
		logger.Info("Resuming from last processed block",
			zap.Int("chain_id", int(e.config.ChainID)),
			zap.Uint64("block", startBlock))
		return startBlock, nil
	}

	latestBlock, err := e.subscriber.GetLatestBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}

	logger.Info("Starting from latest block",
		zap.Int("chain_id", int(e.config.ChainID)),
		zap.Uint64("block", latestBlock))
	return latestBlock, nil
}

// eventBlock extracts the block number carried by the event payload, 0 when
// the payload has none
func eventBlock(event *domain.ChainEvent) uint64 {
	switch {
	case event.Vault != nil:
		return event.Vault.BlockNumber
	case event.ProductCreated != nil:
		return event.ProductCreated.BlockNumber
	default:
		return 0
	}
}

// Close closes the emitter and cleans up resources
func (e *emitter) Close() {
	e.subscriber.Close()
}
