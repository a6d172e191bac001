// Package tenants resolves which tenant's data a screen operates on.
// A non-privileged operator is pinned to its own tenant no matter what
// was selected or stored earlier; an administrator switches tenant
// context explicitly and has it synchronized when navigating straight
// into a tenant-scoped resource.
package tenants

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-tenant-client/kvstore"
	"github.com/jrsteele09/go-tenant-client/session"
)

// SessionInfo is the slice of the session manager the resolver needs:
// the live identity and the persistence surface matching the session's
// "remember me" choice.
type SessionInfo interface {
	CurrentIdentity() (session.Identity, error)
	Store() kvstore.Store
}

// ContextResolver owns the selected-tenant state. The stored selection
// is treated as untrusted input: resolution is conditioned on the live
// identity at every read, so a hand-edited stored value can never widen
// what a non-privileged operator sees.
type ContextResolver struct {
	sessions    SessionInfo
	broadcaster *Broadcaster
	logger      zerolog.Logger

	lock     sync.RWMutex
	selected string // administrator's manual selection, "" = none
	loaded   bool   // selection read from storage at least once
}

// NewContextResolver creates a resolver over the given session info.
func NewContextResolver(sessions SessionInfo, broadcaster *Broadcaster, logger zerolog.Logger) (*ContextResolver, error) {
	if sessions == nil {
		return nil, fmt.Errorf("[NewContextResolver] session info is required")
	}
	if broadcaster == nil {
		broadcaster = NewBroadcaster()
	}
	return &ContextResolver{sessions: sessions, broadcaster: broadcaster, logger: logger}, nil
}

// Subscribe registers fn for tenant-context changes and returns an
// unsubscribe function.
func (r *ContextResolver) Subscribe(fn ChangeFunc) func() {
	return r.broadcaster.Subscribe(fn)
}

// Resolve returns the tenant scoping the next request. ok is false when
// no tenant applies (no session, or an administrator with nothing
// selected yet). For a non-privileged identity the result is always the
// identity's own tenant, regardless of any stored selection.
func (r *ContextResolver) Resolve() (tenantID string, ok bool) {
	identity, err := r.sessions.CurrentIdentity()
	if err != nil {
		return "", false
	}
	if !identity.IsPrivileged() {
		return identity.TenantID, identity.TenantID != ""
	}

	selected := r.loadSelection()
	return selected, selected != ""
}

// Select sets the administrator's manual tenant selection and persists
// it. For a non-privileged identity the call is silently ignored — the
// attempt is logged for audit but is not an error, since the resolved
// policy is that such operators cannot leave their tenant.
func (r *ContextResolver) Select(tenantID string) error {
	identity, err := r.sessions.CurrentIdentity()
	if err != nil {
		return err
	}
	if !identity.IsPrivileged() {
		r.logger.Debug().
			Str("user_id", identity.ID).
			Str("attempted_tenant", tenantID).
			Msg("tenant selection ignored for non-privileged identity")
		return nil
	}

	r.lock.Lock()
	changed := !r.loaded || r.selected != tenantID
	r.selected = tenantID
	r.loaded = true
	r.lock.Unlock()

	if err := r.sessions.Store().Set(kvstore.KeySelectedTenantID, tenantID); err != nil {
		return fmt.Errorf("[Select] failed to persist selection: %w", err)
	}

	if changed {
		r.logger.Info().Str("tenant_id", tenantID).Msg("tenant context selected")
		r.broadcaster.publish(tenantID, true)
	}
	return nil
}

// SyncFromResource aligns the context with a tenant-scoped resource the
// operator just loaded directly (e.g. via a deep link). It selects the
// resource's tenant only when it differs from the resolved one, so a
// second resource in the same tenant causes no redundant persistence
// write or broadcast. No-op for non-privileged identities.
func (r *ContextResolver) SyncFromResource(tenantID string) error {
	identity, err := r.sessions.CurrentIdentity()
	if err != nil {
		return err
	}
	if !identity.IsPrivileged() || tenantID == "" {
		return nil
	}
	if current, _ := r.Resolve(); current == tenantID {
		return nil
	}
	return r.Select(tenantID)
}

// Clear removes the manual selection and resets the context to "none
// selected". Called on logout so a later privileged session cannot
// inherit a stale selection.
func (r *ContextResolver) Clear() error {
	r.lock.Lock()
	hadSelection := r.selected != ""
	r.selected = ""
	r.loaded = true
	r.lock.Unlock()

	if err := r.sessions.Store().Remove(kvstore.KeySelectedTenantID); err != nil {
		return fmt.Errorf("[Clear] failed to remove selection: %w", err)
	}

	if hadSelection {
		r.broadcaster.publish("", false)
	}
	return nil
}

// loadSelection returns the cached selection, reading it from storage
// on first use so an administrator's choice survives reloads.
func (r *ContextResolver) loadSelection() string {
	r.lock.RLock()
	if r.loaded {
		defer r.lock.RUnlock()
		return r.selected
	}
	r.lock.RUnlock()

	r.lock.Lock()
	defer r.lock.Unlock()
	if r.loaded {
		return r.selected
	}
	if value, found, err := r.sessions.Store().Get(kvstore.KeySelectedTenantID); err == nil && found {
		r.selected = value
	} else if err != nil {
		r.logger.Warn().Err(err).Msg("failed to load stored tenant selection")
		return ""
	}
	r.loaded = true
	return r.selected
}
