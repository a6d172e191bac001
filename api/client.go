// Package api is the JSON client for the business-management API: the
// login/renewal/logout endpoints and the per-record write endpoint. It
// implements token.Renewer and autosave.Dispatcher so the transport and
// the auto-save queue stay ignorant of endpoint shapes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-tenant-client/autosave"
	"github.com/jrsteele09/go-tenant-client/internal/errors"
	"github.com/jrsteele09/go-tenant-client/session"
)

// TenantSource supplies the tenant identifier scoping data requests.
type TenantSource interface {
	Resolve() (tenantID string, ok bool)
}

// Client talks to the API. Data calls go through the authenticated
// client (normally wrapped by token.Transport); the auth endpoints use
// a plain client so a renewal can never recurse into itself.
type Client struct {
	baseURL      string
	authed       *http.Client
	plain        *http.Client
	tenantSource TenantSource
	logger       zerolog.Logger
}

// ClientOption modifies a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout on both underlying clients.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.authed.Timeout = d
		c.plain.Timeout = d
	}
}

// WithTenantSource sets the resolver consulted for the tenant
// identifier before each data request is built.
func WithTenantSource(ts TenantSource) ClientOption {
	return func(c *Client) { c.tenantSource = ts }
}

// New creates a client for the API at baseURL. Until UseTransport is
// called, data calls carry no credential.
func New(baseURL string, logger zerolog.Logger, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("[api.New] base URL is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		authed:  &http.Client{Timeout: 30 * time.Second},
		plain:   &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// UseTransport installs the credential-attaching transport on the data
// client. Called once during wiring, after the transport is built with
// this client as its Renewer.
func (c *Client) UseTransport(rt http.RoundTripper) {
	c.authed.Transport = rt
}

type credentialsResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	Identity     session.Identity `json:"identity"`
}

// Login exchanges operator credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (session.Session, error) {
	body := map[string]string{"email": email, "password": password}
	resp, err := c.postJSON(ctx, c.plain, "/auth/login", body)
	if err != nil {
		return session.Session{}, errors.Wrapf(err, "[Login]")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return session.Session{}, errors.ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return session.Session{}, fmt.Errorf("[Login] unexpected status %d", resp.StatusCode)
	}

	var creds credentialsResponse
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return session.Session{}, fmt.Errorf("[Login] failed to decode response: %w", err)
	}
	return session.Session{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Identity:     creds.Identity,
	}, nil
}

// Renew exchanges a refresh credential for a new credential pair.
// Implements token.Renewer.
func (c *Client) Renew(ctx context.Context, refreshToken string) (string, string, error) {
	body := map[string]string{"refreshToken": refreshToken}
	resp, err := c.postJSON(ctx, c.plain, "/auth/renew", body)
	if err != nil {
		return "", "", errors.Wrapf(err, "[Renew]")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("[Renew] rejected with status %d", resp.StatusCode)
	}

	var creds credentialsResponse
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return "", "", fmt.Errorf("[Renew] failed to decode response: %w", err)
	}
	return creds.AccessToken, creds.RefreshToken, nil
}

// Logout revokes the refresh credential server-side. Best-effort: a
// failure is logged and swallowed, local teardown proceeds regardless.
func (c *Client) Logout(ctx context.Context, refreshToken string) {
	body := map[string]string{"refreshToken": refreshToken}
	resp, err := c.postJSON(ctx, c.plain, "/auth/logout", body)
	if err != nil {
		c.logger.Warn().Err(err).Msg("logout call failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("logout rejected")
	}
}

// Record is a tenant-scoped resource as returned by the API. Fields
// carries everything beyond the identifying pair.
type Record struct {
	ID       string
	TenantID string
	Fields   autosave.Fields
}

// SaveRecord writes the merged field set for a record and returns the
// canonical persisted field values. Implements autosave.Dispatcher.
func (c *Client) SaveRecord(ctx context.Context, recordID string, fields autosave.Fields) (autosave.Fields, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("[SaveRecord] failed to marshal fields: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPatch, "/records/"+recordID, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	resp, err := c.authed.Do(req)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrWriteFailed, "[SaveRecord] %s (%v)", recordID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrWriteFailed, "[SaveRecord] %s rejected with status %d", recordID, resp.StatusCode)
	}

	record, err := decodeRecord(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("[SaveRecord] %s: %w", recordID, err)
	}
	return record.Fields, nil
}

// GetRecord fetches a record directly, e.g. when a screen is opened via
// a deep link. The returned TenantID feeds the tenant-context
// synchronization.
func (c *Client) GetRecord(ctx context.Context, recordID string) (*Record, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/records/"+recordID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.authed.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "[GetRecord] %s", recordID)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(errors.ErrNotFound, "[GetRecord] %s", recordID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("[GetRecord] %s: unexpected status %d", recordID, resp.StatusCode)
	}

	record, err := decodeRecord(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("[GetRecord] %s: %w", recordID, err)
	}
	return record, nil
}

func (c *Client) postJSON(ctx context.Context, client *http.Client, path string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.tenantSource != nil {
		if tenantID, ok := c.tenantSource.Resolve(); ok {
			req.Header.Set("X-Tenant-ID", tenantID)
		}
	}
	return req, nil
}

func decodeRecord(body io.Reader) (*Record, error) {
	raw := map[string]interface{}{}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}

	record := &Record{Fields: autosave.Fields{}}
	for key, value := range raw {
		switch key {
		case "id":
			record.ID, _ = value.(string)
		case "tenantId":
			record.TenantID, _ = value.(string)
		default:
			record.Fields[key] = value
		}
	}
	return record, nil
}
