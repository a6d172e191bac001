package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-tenant-client/internal/errors"
	"github.com/jrsteele09/go-tenant-client/kvstore"
)

// Manager owns the live Session and its persistence. All credential
// reads and writes go through it; nothing else touches the session keys
// directly. Which of the two stores holds the keys is decided by the
// "remember me" choice passed to Establish and never changes until the
// next login.
type Manager struct {
	durable kvstore.Store
	scoped  kvstore.Store
	logger  zerolog.Logger

	lock     sync.RWMutex
	current  *Session
	remember bool
}

// NewManager creates a session manager over the durable and
// session-scoped stores.
func NewManager(durable, scoped kvstore.Store, logger zerolog.Logger) (*Manager, error) {
	if durable == nil {
		return nil, fmt.Errorf("[NewManager] durable store is required")
	}
	if scoped == nil {
		return nil, fmt.Errorf("[NewManager] scoped store is required")
	}
	return &Manager{durable: durable, scoped: scoped, logger: logger}, nil
}

// Establish installs a freshly logged-in session. remember selects the
// durable store; otherwise the session-scoped store is authoritative.
func (m *Manager) Establish(sess Session, remember bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.current = &sess
	m.remember = remember

	if err := m.persistLocked(); err != nil {
		return errors.Wrapf(err, "[Establish] failed to persist session")
	}

	m.logger.Info().
		Str("user_id", sess.Identity.ID).
		Str("role", string(sess.Identity.Role)).
		Bool("remember", remember).
		Msg("session established")
	return nil
}

// Current returns a copy of the live session, or ErrNoSession.
func (m *Manager) Current() (Session, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.current == nil {
		return Session{}, errors.ErrNoSession
	}
	return *m.current, nil
}

// CurrentIdentity returns the identity of the live session, or
// ErrNoSession.
func (m *Manager) CurrentIdentity() (Identity, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.current == nil {
		return Identity{}, errors.ErrNoSession
	}
	return m.current.Identity, nil
}

// AccessToken returns the current access credential, or "" when no
// session is live. Request attachment treats "" as "attach nothing".
func (m *Manager) AccessToken() string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.AccessToken
}

// RefreshToken returns the current refresh credential, or
// ErrNoRefreshCredential.
func (m *Manager) RefreshToken() (string, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.current == nil || m.current.RefreshToken == "" {
		return "", errors.ErrNoRefreshCredential
	}
	return m.current.RefreshToken, nil
}

// ReplaceCredentials installs a renewed credential pair, keeping the
// identity. Both credentials rotate together.
func (m *Manager) ReplaceCredentials(accessToken, refreshToken string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.current == nil {
		return errors.ErrNoSession
	}
	m.current.AccessToken = accessToken
	m.current.RefreshToken = refreshToken

	if err := m.persistLocked(); err != nil {
		return errors.Wrapf(err, "[ReplaceCredentials] failed to persist session")
	}

	m.logger.Debug().Str("user_id", m.current.Identity.ID).Msg("credentials rotated")
	return nil
}

// Clear destroys the live session and removes its keys from both
// stores. Safe to call with no session live.
func (m *Manager) Clear() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.current = nil
	for _, key := range []string{kvstore.KeyAccessToken, kvstore.KeyRefreshToken, kvstore.KeyIdentity} {
		if err := m.durable.Remove(key); err != nil {
			return errors.Wrapf(err, "[Clear] failed to remove %s", key)
		}
		if err := m.scoped.Remove(key); err != nil {
			return errors.Wrapf(err, "[Clear] failed to remove %s", key)
		}
	}

	m.logger.Info().Msg("session cleared")
	return nil
}

// Restore loads a persisted session, preferring the durable store. A
// missing or corrupt identity is re-derived from the access token's
// claims. Returns ErrNoSession when neither store holds credentials.
func (m *Manager) Restore() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	store, remember := m.durable, true
	access, found, err := store.Get(kvstore.KeyAccessToken)
	if err != nil {
		return errors.Wrapf(err, "[Restore] durable read failed")
	}
	if !found {
		store, remember = m.scoped, false
		if access, found, err = store.Get(kvstore.KeyAccessToken); err != nil {
			return errors.Wrapf(err, "[Restore] scoped read failed")
		}
		if !found {
			return errors.ErrNoSession
		}
	}

	refresh, _, err := store.Get(kvstore.KeyRefreshToken)
	if err != nil {
		return errors.Wrapf(err, "[Restore] failed to read refresh credential")
	}

	identity, err := m.restoreIdentity(store, access)
	if err != nil {
		return err
	}

	m.current = &Session{AccessToken: access, RefreshToken: refresh, Identity: *identity}
	m.remember = remember

	m.logger.Info().
		Str("user_id", identity.ID).
		Bool("remember", remember).
		Msg("session restored")
	return nil
}

func (m *Manager) restoreIdentity(store kvstore.Store, accessToken string) (*Identity, error) {
	raw, found, err := store.Get(kvstore.KeyIdentity)
	if err != nil {
		return nil, errors.Wrapf(err, "[Restore] failed to read identity")
	}
	if found {
		var identity Identity
		if err := json.Unmarshal([]byte(raw), &identity); err == nil && identity.ID != "" {
			return &identity, nil
		}
		m.logger.Warn().Msg("stored identity corrupt, re-deriving from access token")
	}
	identity, err := IdentityFromToken(accessToken)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCorruptValue, "[Restore] identity unrecoverable")
	}
	return identity, nil
}

// Store returns the persistence surface matching the current session's
// "remember me" choice, with read fallback to the other surface. Other
// components (tenant selection) persist their own keys through it so
// everything lives in the same surface as the credentials.
func (m *Manager) Store() kvstore.Store {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.remember {
		return kvstore.NewFallback(m.durable, m.scoped)
	}
	return kvstore.NewFallback(m.scoped, m.durable)
}

// persistLocked writes the session keys to the store selected by the
// remember choice. Callers hold the write lock.
func (m *Manager) persistLocked() error {
	store := m.scoped
	if m.remember {
		store = m.durable
	}
	other := m.durable
	if m.remember {
		other = m.scoped
	}

	identityJSON, err := json.Marshal(m.current.Identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	entries := map[string]string{
		kvstore.KeyAccessToken:  m.current.AccessToken,
		kvstore.KeyRefreshToken: m.current.RefreshToken,
		kvstore.KeyIdentity:     string(identityJSON),
	}
	for key, value := range entries {
		if err := other.Remove(key); err != nil {
			return fmt.Errorf("failed to clear %s from shadowed store: %w", key, err)
		}
		if err := store.Set(key, value); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
	}
	return nil
}
