package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/plexlabs/vault-indexer/internal/domain"
	"github.com/plexlabs/vault-indexer/internal/store/schema"
)

// CursorStore tracks the last processed block per chain so the emitter can
// resume after a restart
type CursorStore interface {
	// GetBlockCursor retrieves the last processed block number for a chain
	GetBlockCursor(ctx context.Context, chain domain.ChainID) (uint64, error)
	// SetBlockCursor stores the last processed block number for a chain
	SetBlockCursor(ctx context.Context, chain domain.ChainID, blockNumber uint64) error
}

type cursorStore struct {
	db *gorm.DB
}

// NewCursorStore creates a new cursor store
func NewCursorStore(db *gorm.DB) CursorStore {
	return &cursorStore{db: db}
}

func cursorKey(chain domain.ChainID) string {
	return fmt.Sprintf("block_cursor:%d", chain)
}

// GetBlockCursor retrieves the last processed block number for a chain
func (s *cursorStore) GetBlockCursor(ctx context.Context, chain domain.ChainID) (uint64, error) {
	var kv schema.KeyValue
	err := s.db.WithContext(ctx).Where("key = ?", cursorKey(chain)).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get block cursor: %w", err)
	}

	blockNumber, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse block cursor: %w", err)
	}

	return blockNumber, nil
}

// SetBlockCursor stores the last processed block number for a chain
func (s *cursorStore) SetBlockCursor(ctx context.Context, chain domain.ChainID, blockNumber uint64) error {
	kv := schema.KeyValue{
		Key:   cursorKey(chain),
		Value: strconv.FormatUint(blockNumber, 10),
	}

	if err := s.db.WithContext(ctx).Save(&kv).Error; err != nil {
		return fmt.Errorf("failed to set block cursor: %w", err)
	}

	return nil
}
