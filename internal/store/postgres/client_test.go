package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

func TestConnString(t *testing.T) {
	cfg := ClientConfig{Host: "db", User: "app", Password: "p@ss/word", Database: "market"}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/market?sslmode=disable", cfg.ConnString())

	cfg.DSN = " postgres://override "
	assert.Equal(t, "postgres://override", cfg.ConnString())
}

func TestMigrationFiles(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_market.sql", files[0])
}

func TestAuditStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("NFTMARKET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NFTMARKET_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Migrate(ctx))
	require.NoError(t, c.Migrate(ctx), "migrations are idempotent")

	_, err = c.Pool().Exec(ctx, `TRUNCATE audit_log`)
	require.NoError(t, err)

	audit := NewAuditStore(c.Pool())
	require.NoError(t, audit.Log(ctx, "snapshot.export", map[string]any{"height": 4}))
	require.NoError(t, audit.Log(ctx, "indexer.skip", nil))

	entries, err := audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "indexer.skip", entries[0].Event)
	assert.Nil(t, entries[0].Detail)
	assert.Equal(t, float64(4), entries[1].Detail["height"])

	page, err := audit.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "snapshot.export", page[0].Event)
}
