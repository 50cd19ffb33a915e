// Package storage selects and constructs the configured StorageManager.
package storage

import (
	"context"
	"fmt"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/interfaces"
	"github.com/bobmcallan/mfdesk/internal/storage/memory"
	"github.com/bobmcallan/mfdesk/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendMemory    = "memory"
	BackendSurrealDB = "surrealdb"
)

// NewStorageManager creates a storage manager based on the configuration.
// Supported backends: "memory" (default), "surrealdb".
func NewStorageManager(ctx context.Context, logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	backend := config.Storage.Backend
	if backend == "" {
		backend = BackendMemory
	}

	switch backend {
	case BackendMemory:
		logger.Info().Msg("Using in-memory storage; data resets on restart")
		return memory.NewStore(logger), nil

	case BackendSurrealDB:
		m, err := surrealdb.NewManager(ctx, logger, config)
		if err != nil {
			return nil, err
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, surrealdb)", backend)
	}
}
