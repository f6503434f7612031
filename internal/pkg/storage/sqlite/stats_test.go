package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpcgate/internal/pkg/config"
	"rpcgate/internal/pkg/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(context.Background(), config.StatsConfig{
		SqlitePath:     filepath.Join(t.TempDir(), "stats.db"),
		MigrationsPath: "../../../../migrations/sqlite",
	})
	require.NoError(t, err)
	require.NotNil(t, s)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestNewWithoutPath(t *testing.T) {
	s, err := New(context.Background(), config.StatsConfig{})
	require.NoError(t, err)
	require.Nil(t, s)
	require.NoError(t, s.Close())
}

func TestBatchInsertAndSummaries(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	stats := []storage.Stat{
		{Timestamp: now, RequestID: "1", Status: 200, ExecutionTimeMs: 10, RpcMethod: "eth_blockNumber", RpcUsed: "a"},
		{Timestamp: now, RequestID: "2", Status: 200, ExecutionTimeMs: 0, RpcMethod: "eth_blockNumber", RpcUsed: "cache", Cached: true},
		{Timestamp: now, RequestID: "3", Status: 200, ExecutionTimeMs: 20, RpcMethod: "eth_blockNumber", RpcUsed: "b", Retries: 1},
		{Timestamp: now, RequestID: "4", Status: 503, ExecutionTimeMs: 40, RpcMethod: "eth_call", Retries: 2, RpcErrorCode: "-32000"},
		{Timestamp: now.Add(-2 * time.Hour), RequestID: "5", Status: 200, RpcMethod: "net_version"},
	}
	require.NoError(t, s.BatchInsertStats(ctx, stats))
	require.NoError(t, s.BatchInsertStats(ctx, nil))

	res, err := s.MethodSummaries(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, "eth_blockNumber", res[0].RpcMethod)
	assert.EqualValues(t, 3, res[0].Total)
	assert.EqualValues(t, 1, res[0].Cached)
	assert.EqualValues(t, 0, res[0].Failed)
	assert.InDelta(t, 1.0/3, res[0].AvgRetries, 0.001)
	assert.InDelta(t, 10, res[0].AvgExecTimeMs, 0.001)

	assert.Equal(t, "eth_call", res[1].RpcMethod)
	assert.EqualValues(t, 1, res[1].Failed)
	assert.InDelta(t, 2, res[1].AvgRetries, 0.001)
}

func TestBatchInsertLargerThanChunk(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	stats := make([]storage.Stat, insertChunkSize*2+3)
	for i := range stats {
		stats[i] = storage.Stat{Timestamp: now, Status: 200, RpcMethod: "eth_chainId"}
	}
	require.NoError(t, s.BatchInsertStats(ctx, stats))

	res, err := s.MethodSummaries(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.EqualValues(t, len(stats), res[0].Total)
}

func TestNewClosesDbOnMigrationError(t *testing.T) {
	dir := t.TempDir()
	migrationsDir := filepath.Join(dir, "migrations")
	require.NoError(t, os.Mkdir(migrationsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(migrationsDir, "001_broken.sql"),
		[]byte("-- +migrate Up\nCREATE TABLE (;\n"), 0o644))

	dbPath := filepath.Join(dir, "stats.db")
	s, err := New(context.Background(), config.StatsConfig{SqlitePath: dbPath, MigrationsPath: migrationsDir})
	require.Error(t, err)
	require.Nil(t, s)

	// the WAL file is removed when the last connection closes
	assert.NoFileExists(t, dbPath+"-wal")
}
