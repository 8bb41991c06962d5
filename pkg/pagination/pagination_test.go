package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultLimit, Params{}.PageSize())
	assert.Equal(t, DefaultLimit, Params{Limit: -3}.PageSize())
	assert.Equal(t, 10, Params{Limit: 10}.PageSize())
	assert.Equal(t, MaxLimit, Params{Limit: 5000}.PageSize())
}

func TestKeysetRoundTrip(t *testing.T) {
	key := Keyset{
		CreatedAt: time.Date(2026, 3, 1, 8, 30, 0, 123456789, time.UTC),
		ID:        uuid.MustParse("0b5a3c4e-6d1f-4f8a-9b7c-2e1d3f4a5b6c"),
	}
	encoded := key.String()
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "/")

	parsed, err := Params{Cursor: encoded}.Keyset()
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.True(t, key.CreatedAt.Equal(parsed.CreatedAt))
	assert.Equal(t, key.ID, parsed.ID)
}

func TestParseKeysetRejectsGarbage(t *testing.T) {
	parsed, err := ParseKeyset("  ")
	require.NoError(t, err)
	assert.Nil(t, parsed)

	for _, raw := range []string{"not-a-cursor", "%%%", "MTIz"} {
		_, err := ParseKeyset(raw)
		assert.ErrorIs(t, err, ErrInvalidCursor, raw)
	}
}

func TestSplit(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	keyOf := func(i int) Keyset { return Keyset{CreatedAt: base.Add(-time.Duration(i) * time.Minute), ID: ids[i]} }

	page, next := Split([]int{0, 1, 2}, 2, keyOf)
	assert.Equal(t, []int{0, 1}, page)
	parsed, err := ParseKeyset(next)
	require.NoError(t, err)
	assert.Equal(t, ids[1], parsed.ID)

	page, next = Split([]int{0, 1}, 2, keyOf)
	assert.Equal(t, []int{0, 1}, page)
	assert.Empty(t, next)
}
