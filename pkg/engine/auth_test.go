package engine

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodbi/extractor/pkg/errors"
)

func TestStaticTokenProvider(t *testing.T) {
	p := NewStaticTokenProvider("X-Auth-Token", "abc123")
	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "X-Auth-Token", creds.Header)
	assert.Equal(t, "abc123", creds.Value)
	assert.False(t, creds.Expired())
}

func TestStaticTokenProviderEmptyToken(t *testing.T) {
	p := NewStaticTokenProvider("Authorization", "")
	_, err := p.Credentials(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestBearerTokenProviderAddsPrefix(t *testing.T) {
	p := NewBearerTokenProvider("raw-token")
	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Authorization", creds.Header)
	assert.Equal(t, "Bearer raw-token", creds.Value)
}

func TestBearerTokenProviderKeepsExistingPrefix(t *testing.T) {
	p := NewBearerTokenProvider("Bearer already")
	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer already", creds.Value)
}

func TestOAuth2ProviderExchangesAndCaches(t *testing.T) {
	var exchanges int
	var mu sync.Mutex

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		exchanges++
		mu.Unlock()

		auth := r.Header.Get("Authorization")
		require.True(t, strings.HasPrefix(auth, "Basic "))
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
		require.NoError(t, err)
		assert.Equal(t, "client-id:client-secret", string(decoded))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer ts.Close()

	p := NewOAuth2ClientCredentialsProvider(ts.URL, "client-id", "client-secret", nil)

	creds, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Authorization", creds.Header)
	assert.Equal(t, "Bearer tok-1", creds.Value)
	assert.False(t, creds.Expired())

	// second call hits the cache, not the token endpoint
	again, err := p.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, creds.Value, again.Value)
	mu.Lock()
	assert.Equal(t, 1, exchanges)
	mu.Unlock()
}

func TestOAuth2ProviderExchangeFailureIsFatalAuthError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	p := NewOAuth2ClientCredentialsProvider(ts.URL, "bad", "creds", nil)
	_, err := p.Credentials(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
	assert.False(t, errors.IsRetryable(err))
}

func TestOAuth2ProviderConcurrentReaders(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	}))
	defer ts.Close()

	p := NewOAuth2ClientCredentialsProvider(ts.URL, "id", "secret", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds, err := p.Credentials(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "Bearer tok", creds.Value)
		}()
	}
	wg.Wait()
}
