package tracking

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fakeLookup struct {
	taken map[string]bool
	calls []string
	err   error
}

func (f *fakeLookup) TrackingIDExists(_ context.Context, id string) (bool, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return false, f.err
	}
	return f.taken[id], nil
}

func sequence(values ...byte) *bytes.Reader {
	return bytes.NewReader(values)
}

func TestCandidateIsAlphanumeric(t *testing.T) {
	gen := NewGenerator(3)
	for i := 0; i < 50; i++ {
		id, err := gen.Candidate()
		require.NoError(t, err)
		assert.True(t, Valid(id), "candidate %q", id)
	}
}

func TestCandidateSkipsBiasedBytes(t *testing.T) {
	src := sequence(
		255, 0, 1, 2, 3, 4, 5, 6, 7, 8,
		9, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	)
	gen := NewGeneratorWithSource(src, 1)

	id, err := gen.Candidate()
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHIJ", id)
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	src := sequence(
		0, 1, 2, 3, 4, 5, 6, 7, 8, 9,
		26, 27, 28, 29, 30, 31, 32, 33, 34, 35,
	)
	lookup := &fakeLookup{taken: map[string]bool{"ABCDEFGHIJ": true}}
	gen := NewGeneratorWithSource(src, 5)

	id, err := gen.Generate(context.Background(), lookup)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", id)
	assert.Equal(t, []string{"ABCDEFGHIJ", "abcdefghij"}, lookup.calls)
}

func TestGenerateGivesUpAfterMaxAttempts(t *testing.T) {
	src := sequence(bytes.Repeat([]byte{0}, 30)...)
	lookup := &fakeLookup{taken: map[string]bool{"AAAAAAAAAA": true}}
	gen := NewGeneratorWithSource(src, 3)

	_, err := gen.Generate(context.Background(), lookup)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	assert.Len(t, lookup.calls, 3)
}

func TestGenerateSurfacesLookupErrors(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("db down")}
	gen := NewGenerator(2)

	_, err := gen.Generate(context.Background(), lookup)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("Ab3dE6gH9j"))
	assert.False(t, Valid("short"))
	assert.False(t, Valid("Ab3dE6gH9-"))
}
