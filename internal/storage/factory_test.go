package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/mfdesk/internal/common"
	"github.com/bobmcallan/mfdesk/internal/storage/memory"
)

func TestNewStorageManager_DefaultsToMemory(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = ""

	mgr, err := NewStorageManager(context.Background(), common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer mgr.Close()

	_, ok := mgr.(*memory.Store)
	assert.True(t, ok)
}

func TestNewStorageManager_UnknownBackend(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = "postgres"

	_, err := NewStorageManager(context.Background(), common.NewSilentLogger(), cfg)
	assert.ErrorContains(t, err, "unknown storage backend")
}
