package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTripAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	ctx := context.Background()

	first := NewFileStore(path)
	_, err := first.Get(ctx, "cli")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	tokens := domain.Tokens{AccessToken: "access", RefreshToken: "refresh"}
	require.NoError(t, first.Save(ctx, "cli", tokens, 0))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second := NewFileStore(path)
	got, err := second.Get(ctx, "cli")
	require.NoError(t, err)
	assert.Equal(t, tokens, got)

	require.NoError(t, second.Delete(ctx, "cli"))
	_, err = first.Get(ctx, "cli")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFileStore_Expiry(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "s", domain.Tokens{AccessToken: "a"}, time.Hour))
	_, err := store.Get(ctx, "s")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = store.Get(ctx, "s")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Get(context.Background(), "s")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := NewFileStore(path).Get(context.Background(), "s")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
