// Package auth provides the default, concrete TokenSource the backup
// engine authenticates with: an OAuth2 client-credentials grant against a
// single Azure AD tenant and app registration, scoped to
// https://graph.microsoft.com/.default for application (not delegated)
// permissions.
//
// Client-credentials only works against work-or-school (tenant) accounts —
// Microsoft does not support application permissions for personal
// consumer accounts. Every source type ("personal" tenant users' OneDrives,
// "team", "sharepoint") is a tenant resource, and the CLI uses one such
// TokenSource for all of them; there is no interactive (device-code or
// browser) flow.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// GraphScope is the application-permission scope requested from Azure AD.
const GraphScope = "https://graph.microsoft.com/.default"

// refreshMargin is the safety window before expiry that triggers a
// refresh, per the TokenSource contract: any caller whose cached token
// falls inside this margin forces a new token request rather than
// risking a mid-call expiry.
const refreshMargin = 5 * time.Minute

// tokenEndpoint builds the v2.0 token endpoint for tenantID.
func tokenEndpoint(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)
}

// ClientCredentials is a TokenSource backed by an OAuth2 client-credentials
// grant. Safe for concurrent use: a mutex serializes refreshes so
// concurrent callers observe at most one in-flight token request.
type ClientCredentials struct {
	cfg    clientcredentials.Config
	logger *slog.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// New returns a ClientCredentials TokenSource for the given tenant and app
// registration. clientSecret is read by the caller (typically from the
// environment variable named by AuthConfig.ClientSecretEnv) and never
// logged or persisted.
func New(tenantID, clientID, clientSecret string, logger *slog.Logger) *ClientCredentials {
	if logger == nil {
		logger = slog.Default()
	}

	return &ClientCredentials{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenEndpoint(tenantID),
			Scopes:       []string{GraphScope},
		},
		logger: logger,
	}
}

// Token returns a cached bearer token, refreshing first if it is absent or
// within refreshMargin of expiry.
func (c *ClientCredentials) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expiry) > refreshMargin {
		return c.token, nil
	}

	return c.refreshLocked()
}

// ForceRefresh discards any cached token and requests a fresh one
// unconditionally — used after a 401, since a token can be rejected by the
// server before its stated expiry (revocation, clock skew, policy change).
func (c *ClientCredentials) ForceRefresh() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.refreshLocked()
}

// refreshLocked requests a new token. Callers must hold c.mu.
func (c *ClientCredentials) refreshLocked() (string, error) {
	tok, err := c.cfg.Token(context.Background())
	if err != nil {
		c.logger.Warn("client-credentials token request failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("auth: client-credentials token request failed: %w", err)
	}

	c.token = tok.AccessToken
	c.expiry = tok.Expiry

	c.logger.Info("client-credentials token acquired", slog.Time("expiry", tok.Expiry))

	return c.token, nil
}
