package session_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-client/internal/errors"
	"github.com/jrsteele09/go-tenant-client/kvstore"
	"github.com/jrsteele09/go-tenant-client/session"
)

const (
	testUserID   = "user-1"
	testTenantID = "tenant-1"
)

type testFixture struct {
	durable *kvstore.MemStore
	scoped  *kvstore.MemStore
	manager *session.Manager
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	durable := kvstore.NewMemStore()
	scoped := kvstore.NewMemStore()
	manager, err := session.NewManager(durable, scoped, zerolog.Nop())
	require.NoError(t, err)

	return &testFixture{durable: durable, scoped: scoped, manager: manager}
}

func testSession() session.Session {
	return session.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Identity: session.Identity{
			ID:       testUserID,
			Role:     session.RoleUser,
			TenantID: testTenantID,
		},
	}
}

func TestEstablishPersistsToDurableWhenRemembered(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Establish(testSession(), true))

	value, found, err := f.durable.Get(kvstore.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "access-1", value)

	_, found, err = f.scoped.Get(kvstore.KeyAccessToken)
	require.NoError(t, err)
	require.False(t, found)
}

func TestEstablishPersistsToScopedWhenNotRemembered(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Establish(testSession(), false))

	_, found, err := f.durable.Get(kvstore.KeyAccessToken)
	require.NoError(t, err)
	require.False(t, found)

	value, found, err := f.scoped.Get(kvstore.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "access-1", value)
}

func TestEstablishNeverSplitsKeysAcrossStores(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Establish(testSession(), false))

	// A second login with the other remember choice moves every key.
	require.NoError(t, f.manager.Establish(testSession(), true))

	for _, key := range []string{kvstore.KeyAccessToken, kvstore.KeyRefreshToken, kvstore.KeyIdentity} {
		_, found, err := f.scoped.Get(key)
		require.NoError(t, err)
		require.False(t, found, "key %s should have left the scoped store", key)

		_, found, err = f.durable.Get(key)
		require.NoError(t, err)
		require.True(t, found, "key %s should be in the durable store", key)
	}
}

func TestCurrentReturnsErrNoSessionBeforeLogin(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.Current()
	require.ErrorIs(t, err, errors.ErrNoSession)
	require.Empty(t, f.manager.AccessToken())

	_, err = f.manager.RefreshToken()
	require.ErrorIs(t, err, errors.ErrNoRefreshCredential)
}

func TestReplaceCredentialsRotatesBoth(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Establish(testSession(), true))

	require.NoError(t, f.manager.ReplaceCredentials("access-2", "refresh-2"))

	require.Equal(t, "access-2", f.manager.AccessToken())
	refresh, err := f.manager.RefreshToken()
	require.NoError(t, err)
	require.Equal(t, "refresh-2", refresh)

	value, found, err := f.durable.Get(kvstore.KeyRefreshToken)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "refresh-2", value)

	// Identity survives rotation.
	current, err := f.manager.Current()
	require.NoError(t, err)
	require.Equal(t, testUserID, current.Identity.ID)
}

func TestClearRemovesKeysFromBothStores(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Establish(testSession(), true))
	require.NoError(t, f.manager.Clear())

	_, err := f.manager.Current()
	require.ErrorIs(t, err, errors.ErrNoSession)

	for _, key := range []string{kvstore.KeyAccessToken, kvstore.KeyRefreshToken, kvstore.KeyIdentity} {
		_, found, _ := f.durable.Get(key)
		require.False(t, found)
		_, found, _ = f.scoped.Get(key)
		require.False(t, found)
	}
}

func TestRestorePrefersDurableStore(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Establish(testSession(), true))

	restored, err := session.NewManager(f.durable, kvstore.NewMemStore(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, restored.Restore())

	current, err := restored.Current()
	require.NoError(t, err)
	require.Equal(t, "access-1", current.AccessToken)
	require.Equal(t, "refresh-1", current.RefreshToken)
	require.Equal(t, testTenantID, current.Identity.TenantID)
}

func TestRestoreFallsBackToScopedStore(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Establish(testSession(), false))

	restored, err := session.NewManager(f.durable, f.scoped, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, restored.Restore())

	current, err := restored.Current()
	require.NoError(t, err)
	require.Equal(t, testUserID, current.Identity.ID)
}

func TestRestoreWithNothingPersisted(t *testing.T) {
	f := setupTestFixture(t)
	require.ErrorIs(t, f.manager.Restore(), errors.ErrNoSession)
}

func TestRestoreRederivesCorruptIdentityFromToken(t *testing.T) {
	f := setupTestFixture(t)

	accessToken := signedTestToken(t)
	require.NoError(t, f.durable.Set(kvstore.KeyAccessToken, accessToken))
	require.NoError(t, f.durable.Set(kvstore.KeyRefreshToken, "refresh-1"))
	require.NoError(t, f.durable.Set(kvstore.KeyIdentity, "{not json"))

	require.NoError(t, f.manager.Restore())

	identity, err := f.manager.CurrentIdentity()
	require.NoError(t, err)
	require.Equal(t, testUserID, identity.ID)
	require.Equal(t, session.RoleAdministrator, identity.Role)
}

func TestIdentityFromToken(t *testing.T) {
	identity, err := session.IdentityFromToken(signedTestToken(t))
	require.NoError(t, err)
	require.Equal(t, testUserID, identity.ID)
	require.Equal(t, session.RoleAdministrator, identity.Role)
	require.Empty(t, identity.TenantID)
}

func TestIdentityFromTokenRejectsGarbage(t *testing.T) {
	_, err := session.IdentityFromToken("not-a-jwt")
	require.Error(t, err)
}

func signedTestToken(t *testing.T) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  testUserID,
		"role": string(session.RoleAdministrator),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}
