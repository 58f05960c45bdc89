package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/plexlabs/vault-indexer/internal/adapter"
	"github.com/plexlabs/vault-indexer/internal/bridge"
	"github.com/plexlabs/vault-indexer/internal/config"
	"github.com/plexlabs/vault-indexer/internal/logger"
	"github.com/plexlabs/vault-indexer/internal/messaging"
	"github.com/plexlabs/vault-indexer/internal/product"
	"github.com/plexlabs/vault-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadBridgeConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags: map[string]string{
			"service": "event-bridge",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Vault Event Bridge")

	// TranslateError lets unique violations surface as gorm.ErrDuplicatedKey,
	// which the ledger relies on for replay detection
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	if err := store.Migrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
	}

	dataStore := store.NewPGStore(db)
	products := product.NewService(dataStore, cfg.Sync.Workers)

	jsonAdapter := adapter.NewJSON()
	natsJS := adapter.NewNatsJetStream()

	bridgeCfg := bridge.Config{
		JetStream: messaging.JetStreamConfig{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		},
		ConsumerName:   cfg.NATS.ConsumerName,
		AckWaitTimeout: cfg.NATS.AckWait,
		MaxDeliver:     cfg.NATS.MaxDeliver,
	}

	eventBridge, err := bridge.NewBridge(ctx, bridgeCfg, natsJS, dataStore, products, jsonAdapter)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create event bridge", zap.Error(err), zap.String("url", cfg.NATS.URL))
	}
	defer eventBridge.Close()
	logger.InfoCtx(ctx, "Connected to NATS JetStream")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := eventBridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "bridge"))
		cancel()
	}

	// Give some time for graceful shutdown
	time.Sleep(time.Second)

	logger.Info("Vault Event Bridge stopped")
}
