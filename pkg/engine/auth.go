// Package engine implements the generic extraction loop shared by every
// connector: authentication, paginated fetching with retry, per-page record
// filtering, and result assembly.
package engine

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/prodbi/extractor/pkg/errors"
)

// Credentials is a ready-to-use auth header. Expiry is zero for static tokens.
type Credentials struct {
	Header string
	Value  string
	Expiry time.Time
}

// Expired reports whether the credential is past its expiry, with a small
// skew so a token about to lapse is refreshed before use.
func (c Credentials) Expired() bool {
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().After(c.Expiry.Add(-30 * time.Second))
}

// AuthProvider produces the credentials attached to every page request.
// Implementations refresh internally; callers never cache the result across
// pages.
type AuthProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticTokenProvider returns a fixed header unchanged for the job lifetime.
type StaticTokenProvider struct {
	header string
	value  string
}

// NewStaticTokenProvider builds a provider for a fixed token under the given
// header name, e.g. "X-Shopify-Access-Token".
func NewStaticTokenProvider(header, token string) *StaticTokenProvider {
	return &StaticTokenProvider{header: header, value: token}
}

// NewBearerTokenProvider builds an Authorization provider, adding the Bearer
// prefix when the token arrives bare.
func NewBearerTokenProvider(token string) *StaticTokenProvider {
	if !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	return &StaticTokenProvider{header: "Authorization", value: token}
}

// Credentials implements AuthProvider.
func (p *StaticTokenProvider) Credentials(_ context.Context) (Credentials, error) {
	if p.value == "" {
		return Credentials{}, errors.New(errors.ErrorTypeAuthentication, "empty access token")
	}
	return Credentials{Header: p.header, Value: p.value}, nil
}

// OAuth2ClientCredentialsProvider exchanges client id/secret at a token
// endpoint and caches the bearer token for the process lifetime. The cache is
// mutex guarded and copied on read so a refresh in one job never corrupts a
// concurrent reader in another.
type OAuth2ClientCredentialsProvider struct {
	config *clientcredentials.Config

	mu     sync.Mutex
	cached Credentials
}

// NewOAuth2ClientCredentialsProvider builds a provider for the given token
// endpoint. AuthStyleInHeader sends the client id/secret as a basic-auth
// header on the token request.
func NewOAuth2ClientCredentialsProvider(tokenURL, clientID, clientSecret string, params map[string][]string) *OAuth2ClientCredentialsProvider {
	return &OAuth2ClientCredentialsProvider{
		config: &clientcredentials.Config{
			ClientID:       clientID,
			ClientSecret:   clientSecret,
			TokenURL:       tokenURL,
			EndpointParams: params,
			AuthStyle:      oauth2.AuthStyleInHeader,
		},
	}
}

// Credentials returns a cached bearer token, performing the token-endpoint
// exchange when the cache is empty or expired. Exchange failures are fatal
// auth errors; the retry layer never re-drives them.
func (p *OAuth2ClientCredentialsProvider) Credentials(ctx context.Context) (Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached.Value != "" && !p.cached.Expired() {
		return p.cached, nil
	}

	tok, err := p.config.Token(ctx)
	if err != nil {
		return Credentials{}, errors.Wrap(err, errors.ErrorTypeAuthentication, "token exchange failed")
	}
	if tok.AccessToken == "" {
		return Credentials{}, errors.New(errors.ErrorTypeAuthentication, "token exchange returned empty access token")
	}

	p.cached = Credentials{
		Header: "Authorization",
		Value:  "Bearer " + tok.AccessToken,
		Expiry: tok.Expiry,
	}
	return p.cached, nil
}

// Apply sets the credential header on an outgoing request.
func (c Credentials) Apply(req *http.Request) {
	if c.Header != "" {
		req.Header.Set(c.Header, c.Value)
	}
}
