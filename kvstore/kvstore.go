// Package kvstore provides the two key-value persistence surfaces the
// client stores its session state in: a durable store that survives
// restarts (BoltStore) and a session-scoped store that is lost when the
// process exits (MemStore). Both expose identical get/set/remove
// semantics; which one holds a given session's keys is decided once, at
// login, by the operator's "remember me" choice.
package kvstore

// Fixed storage keys. Every piece of session state lives under one of
// these; no other keys are written.
const (
	KeyAccessToken      = "access_token"
	KeyRefreshToken     = "refresh_token"
	KeyIdentity         = "identity"
	KeySelectedTenantID = "selected_tenant_id"
)

// Store is a minimal key-value surface with string keys and values.
type Store interface {
	// Get returns the value for key. The boolean reports whether the
	// key was present; absence is not an error.
	Get(key string) (string, bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Close releases any underlying resources.
	Close() error
}
