// Package token keeps an authenticated session alive transparently.
// Transport attaches the current access credential to every outgoing
// request and, on an authorization failure, renews the credential pair
// exactly once per failure wave — every request failing while the
// renewal is in flight waits for the same outcome and is replayed at
// most once with the new credential.
package token

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-tenant-client/internal/errors"
)

// renewalKey collapses all concurrent renewal attempts into one call.
const renewalKey = "renewal"

type contextKey struct{}

// replayedKey marks a request that has already been replayed once after
// a renewal. Carried in the request context, never on the wire.
var replayedKey = contextKey{}

// SessionStore is the slice of the session manager the transport needs.
type SessionStore interface {
	AccessToken() string
	RefreshToken() (string, error)
	ReplaceCredentials(accessToken, refreshToken string) error
	Clear() error
}

// Renewer exchanges a refresh credential for a new credential pair.
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) (accessToken string, refreshTokenOut string, err error)
}

// AuthLostFunc is invoked once per unrecoverable renewal failure, after
// the session has been destroyed. destination is the path the operator
// was trying to reach, so navigation can return there after login.
type AuthLostFunc func(destination string)

// Transport is an http.RoundTripper wrapping a base transport with
// credential attachment and single-flight renewal.
type Transport struct {
	base         http.RoundTripper
	sessions     SessionStore
	renewer      Renewer
	onAuthLost   AuthLostFunc
	renewTimeout time.Duration
	group        singleflight.Group
	logger       zerolog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// TransportOption modifies a Transport.
type TransportOption func(*Transport)

// WithBase sets the underlying RoundTripper (default http.DefaultTransport).
func WithBase(rt http.RoundTripper) TransportOption {
	return func(t *Transport) { t.base = rt }
}

// WithRenewTimeout bounds the renewal call (default 15s).
func WithRenewTimeout(d time.Duration) TransportOption {
	return func(t *Transport) { t.renewTimeout = d }
}

// WithAuthLost sets the callback fired on unrecoverable renewal failure.
func WithAuthLost(fn AuthLostFunc) TransportOption {
	return func(t *Transport) { t.onAuthLost = fn }
}

// NewTransport creates the refresh-coordinating transport.
func NewTransport(sessions SessionStore, renewer Renewer, logger zerolog.Logger, options ...TransportOption) (*Transport, error) {
	if sessions == nil {
		return nil, fmt.Errorf("[NewTransport] session store is required")
	}
	if renewer == nil {
		return nil, fmt.Errorf("[NewTransport] renewer is required")
	}

	t := &Transport{
		base:         http.DefaultTransport,
		sessions:     sessions,
		renewer:      renewer,
		renewTimeout: 15 * time.Second,
		logger:       logger,
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

// RoundTrip attaches the access credential, forwards the request, and
// recovers from an authorization failure by renewing once and replaying
// the request once.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(t.attach(req))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// A request that already went through one replay propagates the
	// failure as-is. Stops renew/replay loops.
	if req.Context().Value(replayedKey) != nil {
		t.logger.Warn().Str("path", req.URL.Path).Msg("replayed request unauthorized again")
		return resp, nil
	}

	drain(resp)

	// All requests failing during one wave share this renewal outcome.
	destination := req.URL.Path
	_, err, _ = t.group.Do(renewalKey, func() (interface{}, error) {
		return nil, t.renew(destination)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "[RoundTrip] %s", req.URL.Path)
	}

	return t.replay(req)
}

func (t *Transport) attach(req *http.Request) *http.Request {
	accessToken := t.sessions.AccessToken()
	if accessToken == "" {
		return req
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+accessToken)
	return clone
}

// renew performs the single renewal call for a failure wave. On any
// failure — no refresh credential, rejection, network error, timeout —
// the session is destroyed and navigation to login is forced.
func (t *Transport) renew(destination string) error {
	refreshToken, err := t.sessions.RefreshToken()
	if err != nil {
		return t.authLost(destination, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.renewTimeout)
	defer cancel()

	accessToken, newRefreshToken, err := t.renewer.Renew(ctx, refreshToken)
	if err != nil {
		return t.authLost(destination, err)
	}

	if err := t.sessions.ReplaceCredentials(accessToken, newRefreshToken); err != nil {
		return t.authLost(destination, err)
	}

	t.logger.Info().Msg("credentials renewed")
	return nil
}

func (t *Transport) authLost(destination string, cause error) error {
	t.logger.Warn().Err(cause).Str("destination", destination).Msg("renewal failed, session destroyed")
	if err := t.sessions.Clear(); err != nil {
		t.logger.Error().Err(err).Msg("failed to clear session")
	}
	if t.onAuthLost != nil {
		t.onAuthLost(destination)
	}
	return errors.Wrapf(errors.ErrAuthenticationLost, "renewal failed (%v)", cause)
}

// replay re-issues req once with the renewed credential. Requests whose
// body cannot be rewound are not replayable.
func (t *Transport) replay(req *http.Request) (*http.Response, error) {
	clone := req.Clone(context.WithValue(req.Context(), replayedKey, true))
	if req.Body != nil {
		if req.GetBody == nil {
			return nil, fmt.Errorf("[replay] request body not rewindable: %s", req.URL.Path)
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("[replay] failed to rewind body: %w", err)
		}
		clone.Body = body
	}

	t.logger.Debug().Str("path", req.URL.Path).Msg("replaying request with renewed credential")
	return t.base.RoundTrip(t.attach(clone))
}

// drain discards a response body so the connection can be reused.
func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
