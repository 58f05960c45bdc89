package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/plexlabs/vault-indexer/internal/adapter"
	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/logger"
)

// JetStreamConfig holds the configuration for the NATS JetStream connection
type JetStreamConfig struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
}

type jetStreamPublisher struct {
	nc         adapter.NatsConn
	js         adapter.JetStream
	streamName string
	json       adapter.JSON
}

// ConnectOptions builds the shared NATS connection options used by both the
// publisher and the bridge consumer
func ConnectOptions(cfg JetStreamConfig) []nats.Option {
	return []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}
}

// NewJetStreamPublisher creates a new NATS JetStream publisher
func NewJetStreamPublisher(cfg JetStreamConfig, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (Publisher, error) {
	nc, js, err := natsJS.Connect(cfg.URL, ConnectOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &jetStreamPublisher{
		nc:         nc,
		js:         js,
		streamName: cfg.StreamName,
		json:       jsonAdapter,
	}, nil
}

// PublishEvent publishes a chain event to NATS JetStream
func (p *jetStreamPublisher) PublishEvent(ctx context.Context, event *domain.ChainEvent) error {
	logger.Debug("Publishing chain event", zap.Any("event", event))

	data, err := p.json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, EventSubject(event), data)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// EventSubject constructs the NATS subject for a chain event.
// Format: vault.events.{chain_id}.{kind}, e.g. vault.events.1.deposit
func EventSubject(event *domain.ChainEvent) string {
	return fmt.Sprintf("vault.events.%d.%s", event.ChainID, event.Kind)
}

// EventSubjectWildcard matches every event subject across chains and kinds
const EventSubjectWildcard = "vault.events.>"

// Close closes the NATS connection
func (p *jetStreamPublisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}
