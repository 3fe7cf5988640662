package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_AreGooseFiles(t *testing.T) {
	files, err := fs.Glob(Migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.Len(t, files, 3)

	for _, f := range files {
		data, err := fs.ReadFile(Migrations, f)
		require.NoError(t, err)
		assert.Contains(t, string(data), "-- +goose Up", f)
		assert.Contains(t, string(data), "-- +goose Down", f)
	}
}

func TestMigrations_StockConstraints(t *testing.T) {
	var all strings.Builder
	files, err := fs.Glob(Migrations, "migrations/*.sql")
	require.NoError(t, err)
	for _, f := range files {
		data, err := fs.ReadFile(Migrations, f)
		require.NoError(t, err)
		all.Write(data)
	}
	content := all.String()

	for _, sub := range []string{
		"CHECK (stock >= 0)",
		"CHECK (sold_quantity >= 0)",
		"CHECK (price > 0)",
		"CHECK (quantity > 0)",
		"CHECK (total_amount >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_user",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_product",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestRun_RequiresDB(t *testing.T) {
	assert.Error(t, Run(t.Context(), nil, "up"))
}
