// Package bridge consumes chain events from the message broker and applies
// them to the off-chain mirror through the product service.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/plexlabs/vault-indexer/internal/adapter"
	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/logger"
	"github.com/plexlabs/vault-indexer/internal/messaging"
	"github.com/plexlabs/vault-indexer/internal/product"
	"github.com/plexlabs/vault-indexer/internal/store"
)

// Config holds the configuration for the event bridge
type Config struct {
	JetStream      messaging.JetStreamConfig
	ConsumerName   string
	AckWaitTimeout time.Duration
	MaxDeliver     int
}

// Bridge defines the interface for the event bridge
type Bridge interface {
	// Run starts the event bridge
	Run(ctx context.Context) error
	// Close closes the bridge and cleans up resources
	Close()
}

type bridge struct {
	nc       adapter.NatsConn
	js       adapter.JetStream
	store    store.Store
	products product.Service
	json     adapter.JSON
	config   Config
}

// NewBridge creates a new event bridge. The NATS connection is retried with
// exponential backoff so the bridge survives broker restarts during deploys.
func NewBridge(
	ctx context.Context,
	cfg Config,
	natsJS adapter.NatsJetStream,
	st store.Store,
	products product.Service,
	jsonAdapter adapter.JSON,
) (Bridge, error) {
	opts := messaging.ConnectOptions(cfg.JetStream)

	var nc adapter.NatsConn
	var js adapter.JetStream
	connect := func() error {
		var err error
		nc, js, err = natsJS.Connect(cfg.JetStream.URL, opts...)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &bridge{
		nc:       nc,
		js:       js,
		store:    st,
		products: products,
		json:     jsonAdapter,
		config:   cfg,
	}, nil
}

// Run starts the event bridge
func (b *bridge) Run(ctx context.Context) error {
	logger.Info("Starting event bridge",
		zap.String("stream", b.config.JetStream.StreamName),
		zap.String("consumer", b.config.ConsumerName))

	consumerConfig := jetstream.ConsumerConfig{
		Durable:       b.config.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.config.AckWaitTimeout,
		MaxDeliver:    b.config.MaxDeliver,
		FilterSubject: messaging.EventSubjectWildcard,
	}

	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.config.JetStream.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create/update consumer: %w", err)
	}

	consumerInfo, err := consumer.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get consumer info: %w", err)
	}
	logger.Info("Consumer created/retrieved", zap.String("consumer", consumerInfo.Name))

	msgChan := make(chan adapter.Message, 100)
	sub, err := consumer.Consume(func(msg adapter.Message) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	defer sub.Stop()

	logger.Info("Started consuming messages")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down event bridge")
			return ctx.Err()
		case msg := <-msgChan:
			// Ledger ordering is enforced per event by the transaction hash
			// guard, so messages can be handled concurrently
			go b.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes a single broker message
func (b *bridge) handleMessage(ctx context.Context, msg adapter.Message) {
	metadata, _ := msg.Metadata()

	var event domain.ChainEvent
	if err := b.json.Unmarshal(msg.Data(), &event); err != nil {
		logger.Error(err, zap.String("message", "Failed to unmarshal event"))
		// Terminate message for unparseable data
		if err := msg.Term(); err != nil {
			logger.Error(err, zap.String("message", "Failed to terminate message"))
		}
		return
	}

	if !event.Valid() {
		logger.Warn("Dropping structurally invalid event",
			zap.Int("chain_id", int(event.ChainID)),
			zap.String("kind", string(event.Kind)),
			zap.String("product", event.ProductAddress),
		)
		if err := msg.Term(); err != nil {
			logger.Error(err, zap.String("message", "Failed to terminate message"))
		}
		return
	}

	var deliveryCount uint64
	if metadata != nil {
		deliveryCount = metadata.NumDelivered
	}
	logger.Info("Received event",
		zap.Int("chain_id", int(event.ChainID)),
		zap.String("kind", string(event.Kind)),
		zap.String("product", event.ProductAddress),
		zap.Uint64("deliveryCount", deliveryCount),
	)

	if err := b.applyEvent(ctx, &event); err != nil {
		logger.Error(err, zap.String("message", "Failed to apply event"))
		// NAK to retry
		if err := msg.Nak(); err != nil {
			logger.Error(err, zap.String("message", "Failed to NAK message"))
		}
		return
	}

	if err := msg.Ack(); err != nil {
		logger.Error(err, zap.String("message", "Failed to ACK message"))
	}
}

// applyEvent routes an event to the matching product service operation
func (b *bridge) applyEvent(ctx context.Context, event *domain.ChainEvent) error {
	switch event.Kind {
	case domain.EventKindProductCreated:
		return b.products.SyncProducts(ctx, event.ChainID, []domain.ProductCreatedEvent{*event.ProductCreated})

	case domain.EventKindProductUpdated:
		return b.applyProductUpdate(ctx, event)

	case domain.EventKindPauseChanged:
		_, err := b.products.UpdateProductPauseStatus(ctx, event.ChainID, event.Pause.Address, event.Pause.IsPaused)
		return err

	case domain.EventKindDeposit, domain.EventKindWeeklyCoupon, domain.EventKindWithdraw:
		return b.applyLedgerEvent(ctx, event)

	default:
		return fmt.Errorf("unknown event kind: %s", event.Kind)
	}
}

// applyProductUpdate refreshes the mutable product fields, falling back to a
// full sync when the product has not been indexed yet
func (b *bridge) applyProductUpdate(ctx context.Context, event *domain.ChainEvent) error {
	stats := domain.ProductStatsEvent{
		Address:         event.ProductCreated.Address,
		Status:          event.ProductCreated.Status,
		CurrentCapacity: event.ProductCreated.CurrentCapacity,
		IssuanceCycle:   event.ProductCreated.IssuanceCycle,
	}
	if event.Stats != nil {
		stats = *event.Stats
	}

	rows, err := b.products.UpdateProduct(ctx, event.ChainID, event.ProductAddress, stats)
	if err != nil {
		return err
	}
	if rows == 0 {
		return b.products.SyncProducts(ctx, event.ChainID, []domain.ProductCreatedEvent{*event.ProductCreated})
	}

	return nil
}

// applyLedgerEvent appends a vault event to the product's ledger
func (b *bridge) applyLedgerEvent(ctx context.Context, event *domain.ChainEvent) error {
	historyType, ok := event.HistoryType()
	if !ok {
		return fmt.Errorf("event kind %s has no ledger classification", event.Kind)
	}

	prod, err := b.store.FindProduct(ctx, event.ChainID, domain.NormalizeAddress(event.ProductAddress))
	if err != nil {
		return err
	}
	if prod == nil {
		// Creation event may still be in flight; NAK redelivers until MaxDeliver
		return fmt.Errorf("product %s not indexed on chain %d", event.ProductAddress, event.ChainID)
	}

	withdrawType := domain.WithdrawTypeNone
	if event.Kind == domain.EventKindWithdraw {
		withdrawType = domain.WithdrawTypePrincipal
	}

	return b.products.SyncHistories(ctx, event.ChainID, prod.ID, historyType, []domain.VaultEvent{*event.Vault}, withdrawType)
}

// Close closes the bridge and cleans up resources
func (b *bridge) Close() {
	if b.nc == nil {
		return
	}

	b.nc.Close()
}
