package foodlookup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progressreports/internal/tokencache"
)

type fakeUpstream struct {
	server      *httptest.Server
	tokenCalls  atomic.Int32
	searchCalls atomic.Int32
	validToken  atomic.Value
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.validToken.Store("token-1")

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		n := f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		token := "token-" + string(rune('0'+n))
		f.validToken.Store(token)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": token, "expires_in": 3600, "token_type": "bearer"})
	})
	mux.HandleFunc("/foods/search", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+f.validToken.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.Equal(t, "oats", r.URL.Query().Get("q"))
		require.Equal(t, "5", r.URL.Query().Get("max_results"))
		_ = json.NewEncoder(w).Encode(map[string]any{"foods": []Food{{ID: "1", Name: "Rolled oats", Serving: "40 g", Calories: 150, ProteinG: 5, CarbsG: 27, FatG: 3}}})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) config() Config {
	return Config{BaseURL: f.server.URL, TokenURL: f.server.URL + "/oauth/token", ClientID: "client", ClientSecret: "secret"}
}

func TestSearchFetchesAndCachesToken(t *testing.T) {
	upstream := newFakeUpstream(t)
	cache := tokencache.NewMemoryCache()
	now := time.Date(2024, time.January, 8, 12, 0, 0, 0, time.UTC)
	client := New(upstream.config(), cache, WithClock(func() time.Time { return now }))

	foods, err := client.Search(context.Background(), "oats", 5)
	require.NoError(t, err)
	require.Len(t, foods, 1)
	require.Equal(t, "Rolled oats", foods[0].Name)

	_, err = client.Search(context.Background(), "oats", 5)
	require.NoError(t, err)
	require.Equal(t, int32(1), upstream.tokenCalls.Load())

	cached, err := cache.Get(context.Background(), "foodlookup:client")
	require.NoError(t, err)
	require.Equal(t, "token-1", cached.Value)
	require.Equal(t, now.Add(time.Hour), cached.ExpiresAt)
}

func TestSearchRefreshesTokenNearExpiry(t *testing.T) {
	upstream := newFakeUpstream(t)
	cache := tokencache.NewMemoryCache()
	now := time.Date(2024, time.January, 8, 12, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Set(context.Background(), "foodlookup:client", tokencache.Token{Value: "token-1", ExpiresAt: now.Add(10 * time.Second)}))
	client := New(upstream.config(), cache, WithClock(func() time.Time { return now }))

	_, err := client.Search(context.Background(), "oats", 5)
	require.NoError(t, err)
	require.Equal(t, int32(1), upstream.tokenCalls.Load())
}

func TestSearchRetriesOnceWhenTokenRejected(t *testing.T) {
	upstream := newFakeUpstream(t)
	cache := tokencache.NewMemoryCache()
	require.NoError(t, cache.Set(context.Background(), "foodlookup:client", tokencache.Token{Value: "revoked", ExpiresAt: time.Now().Add(time.Hour)}))
	client := New(upstream.config(), cache)

	foods, err := client.Search(context.Background(), "oats", 5)
	require.NoError(t, err)
	require.Len(t, foods, 1)
	require.Equal(t, int32(2), upstream.searchCalls.Load())
	require.Equal(t, int32(1), upstream.tokenCalls.Load())
}

func TestSearchReportsUpstreamErrors(t *testing.T) {
	upstream := newFakeUpstream(t)
	cfg := upstream.config()
	cfg.ClientSecret = "wrong"

	_, err := New(cfg, tokencache.NewMemoryCache()).Search(context.Background(), "oats", 5)
	require.ErrorIs(t, err, ErrUpstream)

	_, err = New(Config{}, tokencache.NewMemoryCache()).Search(context.Background(), "oats", 5)
	require.ErrorIs(t, err, ErrNotConfigured)
}
