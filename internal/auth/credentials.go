// Package auth supplies the bearer credential consumed by the REST client
// and the WebSocket transport. Tokens are issued elsewhere; this package
// only loads, inspects, and packages them.
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SubprotocolPrefix is prepended to the bearer token when it is carried in
// the WebSocket subprotocol list. Custom headers are unavailable during the
// upgrade handshake, so the credential rides the protocol negotiation.
const SubprotocolPrefix = "jwt."

// TokenSource supplies the current bearer token. Implementations may read
// from disk on every call so externally rotated tokens are picked up.
type TokenSource interface {
	Token() (string, error)
}

// TokenFunc adapts a function to the TokenSource interface.
type TokenFunc func() (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token() (string, error) { return f() }

// StaticToken returns a TokenSource that always yields the given token.
func StaticToken(token string) TokenSource {
	return TokenFunc(func() (string, error) { return token, nil })
}

// Credentials packages the application tag and bearer token for both
// transports: Authorization header for REST, subprotocol list for WebSocket.
type Credentials struct {
	appToken string
	source   TokenSource

	mu         sync.Mutex
	cachedTok  string
	cachedExp  time.Time
	cacheValid bool
}

// New creates Credentials with the given application tag and token source.
// source may be nil for unauthenticated (local dev) backends.
func New(appToken string, source TokenSource) *Credentials {
	return &Credentials{
		appToken: appToken,
		source:   source,
	}
}

// AppToken returns the fixed application tag.
func (c *Credentials) AppToken() string {
	return c.appToken
}

// Bearer returns the current bearer token, or empty string when no source
// is configured or the source yields nothing.
func (c *Credentials) Bearer() (string, error) {
	if c.source == nil {
		return "", nil
	}
	tok, err := c.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to load bearer token: %w", err)
	}
	return strings.TrimSpace(tok), nil
}

// Subprotocols builds the WebSocket subprotocol list: the application tag
// alone, or the tag plus "jwt.<token>" when a credential is present.
func (c *Credentials) Subprotocols() ([]string, error) {
	tok, err := c.Bearer()
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return []string{c.appToken}, nil
	}
	return []string{c.appToken, SubprotocolPrefix + tok}, nil
}

// AuthorizationHeader returns the "Bearer <token>" header value, or empty
// string when no credential is present.
func (c *Credentials) AuthorizationHeader() (string, error) {
	tok, err := c.Bearer()
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", nil
	}
	return "Bearer " + tok, nil
}

// ExpiresAt reports the expiry of the current bearer token, parsed from its
// JWT claims without signature verification (the server verifies; we only
// need the deadline for the status line). Returns zero time when the token
// is absent or carries no exp claim.
func (c *Credentials) ExpiresAt() (time.Time, error) {
	tok, err := c.Bearer()
	if err != nil {
		return time.Time{}, err
	}
	if tok == "" {
		return time.Time{}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cacheValid && c.cachedTok == tok {
		return c.cachedExp, nil
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse bearer token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		c.cachedTok = tok
		c.cachedExp = time.Time{}
		c.cacheValid = true
		return time.Time{}, nil
	}

	c.cachedTok = tok
	c.cachedExp = exp.Time
	c.cacheValid = true
	return exp.Time, nil
}

// NeedsRefresh reports whether the token expires within the given window.
// Opaque (non-JWT) tokens and tokens without exp never need refresh.
func (c *Credentials) NeedsRefresh(window time.Duration) bool {
	exp, err := c.ExpiresAt()
	if err != nil || exp.IsZero() {
		return false
	}
	return time.Until(exp) < window
}

// ParseSubprotocols extracts the bearer token from a client's subprotocol
// list. Returns the token (may be empty) and whether the application tag
// matched. Used by the dev server to validate upgrades the same way the
// production backend does.
func ParseSubprotocols(protocols []string, appToken string) (token string, ok bool) {
	for _, p := range protocols {
		if SecureEqual(p, appToken) {
			ok = true
			continue
		}
		if strings.HasPrefix(p, SubprotocolPrefix) {
			token = strings.TrimPrefix(p, SubprotocolPrefix)
		}
	}
	return token, ok
}

// BearerFromHeader extracts the token from an Authorization header value.
func BearerFromHeader(authHeader string) string {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return ""
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
	return token
}

// SecureEqual compares two tokens in constant time.
func SecureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
