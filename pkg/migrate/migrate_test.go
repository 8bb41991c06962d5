package migrate

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSourceServesMigrationsAtRoot(t *testing.T) {
	src := Embedded()
	names, err := fs.Glob(src.fsys, "*.sql")
	require.NoError(t, err)

	versions, err := EmbeddedVersions()
	require.NoError(t, err)
	assert.Len(t, names, len(versions))
	assert.Equal(t, "embedded", src.String())
}

func TestRunRequiresDatabaseAndSource(t *testing.T) {
	ctx := context.Background()
	_, err := Run(ctx, nil, Embedded(), "up")
	assert.EqualError(t, err, "db is required")

	_, err = Dir("").provider(nil)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "no migrations to apply", summarize(nil))

	out := summarize([]*goose.MigrationResult{{
		Source:    &goose.Source{Path: "20260105120000_create_orders.sql", Version: 20260105120000},
		Direction: "up",
		Duration:  1234567 * time.Nanosecond,
	}})
	assert.Equal(t, "up   20260105120000_create_orders.sql (1ms)", out)
}
