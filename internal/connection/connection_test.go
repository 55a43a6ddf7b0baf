package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/connsync/internal/config"
	"github.com/stacklok/connsync/internal/replication"
	"github.com/stacklok/connsync/internal/schedule"
	"github.com/stacklok/connsync/internal/status"
)

func TestDefinitionFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.ConnectionConfig{
		ID:       "pg-to-s3",
		Name:     "Postgres to S3",
		Status:   "inactive",
		Schedule: schedule.Descriptor{Type: schedule.TypeManual},
		Source:   config.EndpointConfig{Type: "faker", Config: map[string]any{"records": 10}},
		Destination: config.EndpointConfig{
			Type: "devnull",
		},
		Streams: []config.StreamConfig{
			{Name: "users"},
			{Name: "orders", Namespace: "shop", SyncMode: "full_refresh"},
		},
		NamespacePrefix: "raw_",
	}

	def := DefinitionFromConfig(cfg)
	assert.Equal(t, "pg-to-s3", def.ID)
	assert.False(t, def.Active)
	assert.Equal(t, status.ConnectionStatusInactive, def.Status())
	assert.Equal(t, "raw_", def.NamespacePrefix)
	require.Len(t, def.Streams, 2)
	assert.Equal(t, replication.SyncModeIncremental, def.Streams[0].SyncMode)
	assert.Equal(t, replication.DestinationSyncModeAppend, def.Streams[0].DestinationSyncMode)
	assert.Equal(t, replication.StreamDescriptor{Name: "orders", Namespace: "shop"}, def.Streams[1].Stream)
	assert.Equal(t, replication.SyncModeFullRefresh, def.Streams[1].SyncMode)
	assert.Equal(t, replication.DestinationSyncModeOverwrite, def.Streams[1].DestinationSyncMode)
}

func TestDefinitionFromConfig_DerivedID(t *testing.T) {
	t.Parallel()

	a := DefinitionFromConfig(&config.ConnectionConfig{Name: "Orders Sync"})
	b := DefinitionFromConfig(&config.ConnectionConfig{Name: "Orders Sync"})
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, a.ID, b.ID)
	assert.True(t, a.Active)
}

func TestJobInfoRunning(t *testing.T) {
	t.Parallel()

	assert.False(t, JobInfo{JobID: -1, AttemptNumber: -1}.Running())
	assert.True(t, JobInfo{JobID: 0, AttemptNumber: 1}.Running())
}
