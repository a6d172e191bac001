package kvstore_test

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-client/kvstore"
)

func newBoltStore(t *testing.T) *kvstore.BoltStore {
	t.Helper()
	store, err := kvstore.NewBoltStore(kvstore.BoltConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStoreRoundTrip(t *testing.T) {
	store := newBoltStore(t)

	_, found, err := store.Get(kvstore.KeyAccessToken)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(kvstore.KeyAccessToken, "token-1"))

	value, found, err := store.Get(kvstore.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "token-1", value)

	require.NoError(t, store.Remove(kvstore.KeyAccessToken))
	_, found, err = store.Get(kvstore.KeyAccessToken)
	require.NoError(t, err)
	require.False(t, found)
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := kvstore.NewBoltStore(kvstore.BoltConfig{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Set(kvstore.KeyRefreshToken, "refresh-1"))
	require.NoError(t, store.Close())

	reopened, err := kvstore.NewBoltStore(kvstore.BoltConfig{Path: path}, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	value, found, err := reopened.Get(kvstore.KeyRefreshToken)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "refresh-1", value)
}

func TestMemStoreRoundTrip(t *testing.T) {
	store := kvstore.NewMemStore()

	require.NoError(t, store.Set("k", "v"))
	value, found, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", value)

	require.NoError(t, store.Remove("k"))
	_, found, err = store.Get("k")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Remove("never-set"))
}

func TestFallbackReadsSecondary(t *testing.T) {
	authoritative := kvstore.NewMemStore()
	secondary := kvstore.NewMemStore()
	require.NoError(t, secondary.Set("k", "from-secondary"))

	fallback := kvstore.NewFallback(authoritative, secondary)

	value, found, err := fallback.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "from-secondary", value)
}

func TestFallbackWritesOnlyAuthoritative(t *testing.T) {
	authoritative := kvstore.NewMemStore()
	secondary := kvstore.NewMemStore()
	require.NoError(t, secondary.Set("k", "stale"))

	fallback := kvstore.NewFallback(authoritative, secondary)
	require.NoError(t, fallback.Set("k", "fresh"))

	value, found, err := authoritative.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "fresh", value)

	// The shadow copy is cleared so the key lives in exactly one store.
	_, found, err = secondary.Get("k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestFallbackRemoveHitsBothStores(t *testing.T) {
	authoritative := kvstore.NewMemStore()
	secondary := kvstore.NewMemStore()
	require.NoError(t, authoritative.Set("k", "a"))
	require.NoError(t, secondary.Set("k", "b"))

	fallback := kvstore.NewFallback(authoritative, secondary)
	require.NoError(t, fallback.Remove("k"))

	_, found, _ := authoritative.Get("k")
	require.False(t, found)
	_, found, _ = secondary.Get("k")
	require.False(t, found)
}
