package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/config"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/tl?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "tl"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	assert.Equal(t, "postgres://u:p%40ss@db:6543/tl?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p@ss", Database: "tl", SSLMode: "require"}))
}

func TestFromConfig(t *testing.T) {
	cc := FromConfig(config.PostgresConfig{Host: "h", Port: 6543, PoolMaxConns: 7, SSLMode: "require"})
	assert.Equal(t, "h", cc.Host)
	assert.Equal(t, 6543, cc.Port)
	assert.Equal(t, 7, cc.MaxConns)
	assert.Equal(t, "require", cc.SSLMode)
}

func TestQueryBuilders(t *testing.T) {
	since := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	q, args := withTimeRange("SELECT 1 WHERE run_id = $1", "ts", domain.ListOpts{Since: &since}, "r")
	q, args = withPage(q, args, domain.ListOpts{Limit: 10, Offset: 5})

	assert.Equal(t, "SELECT 1 WHERE run_id = $1 AND ts >= $2 LIMIT $3 OFFSET $4", q)
	assert.Equal(t, []any{"r", since, 10, 5}, args)
}

func TestMigrationFilesSorted(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_init.sql", files[0])
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	for _, table := range []string{"tick_records", "backtest_summaries", "audit_log"} {
		assert.True(t, strings.Contains(string(data), table), table)
	}
}
