// Package session holds the client's authenticated session: the access
// and refresh credentials plus the identity they were issued to.
// Exactly one session is live per process; it is created on login,
// replaced on renewal, and destroyed on logout or unrecoverable renewal
// failure.
package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// RoleType identifies what an operator is permitted to do.
type RoleType string

const (
	// RoleAdministrator may act across tenants and switch tenant
	// context explicitly.
	RoleAdministrator RoleType = "ADMINISTRATOR"

	// RoleUser is confined to its own tenant.
	RoleUser RoleType = "USER"
)

// Identity describes the operator a session was issued to.
type Identity struct {
	ID       string   `json:"id"`
	Role     RoleType `json:"role"`
	TenantID string   `json:"tenantId,omitempty"` // Home tenant; empty for administrators
}

// IsPrivileged reports whether the identity may act outside its own tenant.
func (i Identity) IsPrivileged() bool {
	return i.Role == RoleAdministrator
}

// Session is the live authenticated state.
type Session struct {
	AccessToken  string
	RefreshToken string
	Identity     Identity
}

// IdentityFromToken re-derives an Identity from the access token's
// claims. Used when the stored identity copy is missing or corrupt; the
// token is not signature-verified here — the server remains the
// authority on every request it receives.
func IdentityFromToken(accessToken string) (*Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("[IdentityFromToken] failed to parse token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("[IdentityFromToken] token has no subject: %w", err)
	}

	identity := &Identity{ID: sub, Role: RoleUser}
	if role, ok := claims["role"].(string); ok {
		identity.Role = RoleType(role)
	}
	if tenantID, ok := claims["tenant_id"].(string); ok {
		identity.TenantID = tenantID
	}
	return identity, nil
}
