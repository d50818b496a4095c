package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/types"
)

type tokenServer struct {
	*httptest.Server
	fetches atomic.Int32
	mu      sync.Mutex
	form    map[string]string
}

func newTokenServer(t *testing.T, handler func(w http.ResponseWriter, n int32)) *tokenServer {
	t.Helper()
	ts := &tokenServer{form: map[string]string{}}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ts.mu.Lock()
		for _, k := range []string{"grant_type", "client_id", "client_secret", "scope"} {
			ts.form[k] = r.PostForm.Get(k)
		}
		ts.mu.Unlock()
		handler(w, ts.fetches.Add(1))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func okToken(w http.ResponseWriter, n int32) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600}`, n)
}

func newCache(url string, opts ...Option) *TokenCache {
	cfg := types.OAuthConfig{
		TokenURL:     url,
		ClientID:     "client",
		ClientSecret: "secret",
		Scopes:       []string{"adt"},
		TenantHeader: "sap-client",
		TenantID:     "100",
	}
	return NewTokenCache(cfg, append([]Option{WithLogger(logging.Nop())}, opts...)...)
}

func TestTokenCache_CachesUntilExpiry(t *testing.T) {
	srv := newTokenServer(t, okToken)
	cache := newCache(srv.URL)
	ctx := context.Background()

	first, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first)

	second, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, srv.fetches.Load())

	cache.SetExpiry(time.Time{})
	third, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", third)
	assert.EqualValues(t, 2, srv.fetches.Load())
}

func TestTokenCache_ExpiryHasSafetyMargin(t *testing.T) {
	srv := newTokenServer(t, okToken)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cache := newCache(srv.URL, WithClock(func() time.Time { return fixed }))

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(3600*time.Second-60*time.Second), cache.Expiry())
}

func TestTokenCache_SendsClientCredentialsForm(t *testing.T) {
	srv := newTokenServer(t, okToken)
	cache := newCache(srv.URL)

	_, err := cache.Token(context.Background())
	require.NoError(t, err)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "client_credentials", srv.form["grant_type"])
	assert.Equal(t, "client", srv.form["client_id"])
	assert.Equal(t, "secret", srv.form["client_secret"])
	assert.Equal(t, "adt", srv.form["scope"])
}

func TestTokenCache_Headers(t *testing.T) {
	srv := newTokenServer(t, okToken)
	cache := newCache(srv.URL)

	h, err := cache.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", h.Get("Authorization"))
	assert.Equal(t, "100", h.Get("sap-client"))
}

func TestTokenCache_Invalidate(t *testing.T) {
	srv := newTokenServer(t, okToken)
	cache := newCache(srv.URL)
	ctx := context.Background()

	_, err := cache.Token(ctx)
	require.NoError(t, err)
	cache.Invalidate()

	tok, err := cache.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestTokenCache_Errors(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		cache := NewTokenCache(types.OAuthConfig{TokenURL: "http://unused"}, WithLogger(logging.Nop()))
		_, err := cache.Token(context.Background())
		assert.True(t, types.IsKind(err, types.KindAuthentication))
	})

	t.Run("non-2xx response", func(t *testing.T) {
		srv := newTokenServer(t, func(w http.ResponseWriter, _ int32) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
		})
		_, err := newCache(srv.URL).Token(context.Background())

		var te *types.Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, types.KindAuthentication, te.Kind)
		assert.Equal(t, http.StatusUnauthorized, te.Status)
		assert.Contains(t, te.Body, "invalid_client")
	})

	t.Run("missing access_token", func(t *testing.T) {
		srv := newTokenServer(t, func(w http.ResponseWriter, _ int32) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"expires_in":3600}`)
		})
		_, err := newCache(srv.URL).Token(context.Background())

		var te *types.Error
		require.ErrorAs(t, err, &te)
		assert.Equal(t, types.KindAuthentication, te.Kind)
		assert.Equal(t, http.StatusOK, te.Status)
		assert.Contains(t, te.Body, "expires_in")
	})

	t.Run("transport failure", func(t *testing.T) {
		srv := newTokenServer(t, okToken)
		url := srv.URL
		srv.Close()

		_, err := newCache(url).Token(context.Background())
		kind := types.KindOf(err)
		assert.Contains(t, []types.ErrorKind{types.KindTransport, types.KindTimeout}, kind)
	})

	t.Run("slow endpoint", func(t *testing.T) {
		srv := newTokenServer(t, func(w http.ResponseWriter, n int32) {
			time.Sleep(300 * time.Millisecond)
			okToken(w, n)
		})
		_, err := newCache(srv.URL, WithFetchTimeout(30*time.Millisecond)).Token(context.Background())
		kind := types.KindOf(err)
		assert.Contains(t, []types.ErrorKind{types.KindTransport, types.KindTimeout}, kind)
	})
}

func TestTokenCache_CancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := newTokenServer(t, func(w http.ResponseWriter, n int32) {
		started <- struct{}{}
		<-release
		okToken(w, n)
	})
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	cache := newCache(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Token(ctx)
		firstErr <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("token request never reached the server")
	}
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		tok string
		err error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := cache.Token(context.Background())
		second <- result{tok, err}
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "tok-1", res.tok)
	assert.EqualValues(t, 1, srv.fetches.Load())
}
