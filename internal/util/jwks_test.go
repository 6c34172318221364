package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmeenMohammed/coffee-shop/internal/testutil"
)

func TestParseKeySet(t *testing.T) {
	key := testutil.NewKeyPair(t, "key-1")
	fetchedAt := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)

	set, err := ParseKeySet(testutil.JWKSDocument(t, key), fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, []string{"key-1"}, set.KeyIDs())
	assert.Equal(t, fetchedAt, set.FetchedAt())

	jwk, ok := set.Lookup("key-1")
	require.True(t, ok)
	assert.Equal(t, "RS256", jwk.Algorithm)

	_, ok = set.Lookup("key-2")
	assert.False(t, ok)
}

func TestParseKeySetSkipsUnusableKeys(t *testing.T) {
	doc := `{"keys":[
		{"kty":"oct","kid":"hmac","k":"c2VjcmV0"},
		{"kty":"RSA","n":"sXchDaQebHnPiGvyDOAT4saGEUetSyo9MKLOoWFsueri23bOdgWp4Dy1WlUzewbgBHod5pcM9H95GQRV3JDXboIRROSBigeC5yjU1hGzHHyXss8UDprecbAYxknTcQkhslANGRUZmdTOQ5qTRsLAt6BTYuyvVRdhS8exSZEy_c4gs_7svlJJQ4H9_NxsiIoLwAEk7-Q3UXERGYw_75IDrGA84-lA_-Ct4eTlXHBIY2EaV7t7LjJaynVJCpkv4LKjTTAumiGUIuQhrNhZLuF_RJLqHpM2kgWFLU7-VTdL1VbC2tejvcI2BlMkEpk1BzBZI0KQB0GaDWFLN-aEAw3vRw","e":"AQAB"},
		{"kty":"RSA","kid":"enc-key","use":"enc","n":"sXchDaQebHnPiGvyDOAT4saGEUetSyo9MKLOoWFsueri23bOdgWp4Dy1WlUzewbgBHod5pcM9H95GQRV3JDXboIRROSBigeC5yjU1hGzHHyXss8UDprecbAYxknTcQkhslANGRUZmdTOQ5qTRsLAt6BTYuyvVRdhS8exSZEy_c4gs_7svlJJQ4H9_NxsiIoLwAEk7-Q3UXERGYw_75IDrGA84-lA_-Ct4eTlXHBIY2EaV7t7LjJaynVJCpkv4LKjTTAumiGUIuQhrNhZLuF_RJLqHpM2kgWFLU7-VTdL1VbC2tejvcI2BlMkEpk1BzBZI0KQB0GaDWFLN-aEAw3vRw","e":"AQAB"},
		{"kty":"RSA","kid":"sig-key","use":"sig","n":"sXchDaQebHnPiGvyDOAT4saGEUetSyo9MKLOoWFsueri23bOdgWp4Dy1WlUzewbgBHod5pcM9H95GQRV3JDXboIRROSBigeC5yjU1hGzHHyXss8UDprecbAYxknTcQkhslANGRUZmdTOQ5qTRsLAt6BTYuyvVRdhS8exSZEy_c4gs_7svlJJQ4H9_NxsiIoLwAEk7-Q3UXERGYw_75IDrGA84-lA_-Ct4eTlXHBIY2EaV7t7LjJaynVJCpkv4LKjTTAumiGUIuQhrNhZLuF_RJLqHpM2kgWFLU7-VTdL1VbC2tejvcI2BlMkEpk1BzBZI0KQB0GaDWFLN-aEAw3vRw","e":"AQAB"},
		{"kty":"bogus","kid":"bad"}
	]}`

	set, err := ParseKeySet([]byte(doc), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"sig-key"}, set.KeyIDs())
}

func TestParseKeySetErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "Not JSON", doc: "<html>"},
		{name: "No keys member", doc: `{"issuer":"x"}`},
		{name: "Empty key list", doc: `{"keys":[]}`},
		{name: "Only symmetric keys", doc: `{"keys":[{"kty":"oct","kid":"hmac","k":"c2VjcmV0"}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseKeySet([]byte(tc.doc), time.Now())
			assert.Error(t, err)
		})
	}
}

func TestNewKeySetFirstKeyWins(t *testing.T) {
	a := testutil.NewKeyPair(t, "dup")
	b := testutil.NewKeyPair(t, "dup")

	set := NewKeySet([]jose.JSONWebKey{a.JWK(), b.JWK()}, time.Now())
	jwk, ok := set.Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, &a.Private.PublicKey, jwk.Key)
}

func TestLoadKeySetFile(t *testing.T) {
	key := testutil.NewKeyPair(t, "file-key")
	path := filepath.Join(t.TempDir(), "jwks.json")
	require.NoError(t, os.WriteFile(path, testutil.JWKSDocument(t, key), 0644))

	src, err := LoadKeySetFile(path)
	require.NoError(t, err)

	set, err := src.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"file-key"}, set.KeyIDs())

	refreshed, err := src.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, set, refreshed)

	_, err = LoadKeySetFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestJWKSProviderCachesKeys(t *testing.T) {
	key := testutil.NewKeyPair(t, "key-1")
	server := testutil.NewJWKSServer(t, testutil.JWKSDocument(t, key))
	clock := newFakeClock()

	p := NewJWKSProvider(server.URL, JWKSOptions{CacheTTL: time.Minute, Now: clock.Now})
	assert.Equal(t, server.URL, p.URL())

	for i := 0; i < 3; i++ {
		set, err := p.Keys(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, set.Len())
	}
	assert.Equal(t, 1, server.Hits())

	clock.Advance(2 * time.Minute)
	_, err := p.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, server.Hits())
}

func TestJWKSProviderServesStaleKeys(t *testing.T) {
	key := testutil.NewKeyPair(t, "key-1")
	server := testutil.NewJWKSServer(t, testutil.JWKSDocument(t, key))
	clock := newFakeClock()

	p := NewJWKSProvider(server.URL, JWKSOptions{
		CacheTTL: time.Minute,
		MaxStale: 5 * time.Minute,
		Now:      clock.Now,
	})

	first, err := p.Keys(context.Background())
	require.NoError(t, err)

	server.SetStatus(http.StatusInternalServerError)
	clock.Advance(2 * time.Minute)

	stale, err := p.Keys(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, stale)

	clock.Advance(5 * time.Minute)
	_, err = p.Keys(context.Background())
	assert.ErrorIs(t, err, ErrKeySetUnavailable)
}

func TestJWKSProviderUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		doc    string
	}{
		{name: "Server error", status: http.StatusInternalServerError, doc: `{}`},
		{name: "Not a key set", status: http.StatusOK, doc: `not json`},
		{name: "No usable keys", status: http.StatusOK, doc: `{"keys":[]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := testutil.NewJWKSServer(t, []byte(tc.doc))
			server.SetStatus(tc.status)

			p := NewJWKSProvider(server.URL, JWKSOptions{})
			_, err := p.Keys(context.Background())
			assert.ErrorIs(t, err, ErrKeySetUnavailable)
		})
	}
}

func TestJWKSProviderRefreshPicksUpRotatedKey(t *testing.T) {
	oldKey := testutil.NewKeyPair(t, "old")
	newKey := testutil.NewKeyPair(t, "new")
	server := testutil.NewJWKSServer(t, testutil.JWKSDocument(t, oldKey))

	p := NewJWKSProvider(server.URL, JWKSOptions{CacheTTL: time.Hour})
	set, err := p.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, set.KeyIDs())

	server.SetDocument(testutil.JWKSDocument(t, oldKey, newKey))
	set, err = p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, set.KeyIDs())
	assert.Equal(t, 2, server.Hits())

	set, err = p.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 2, server.Hits())
}

func TestJWKSProviderRefreshThrottled(t *testing.T) {
	key := testutil.NewKeyPair(t, "key-1")
	server := testutil.NewJWKSServer(t, testutil.JWKSDocument(t, key))

	p := NewJWKSProvider(server.URL, JWKSOptions{
		CacheTTL:           time.Hour,
		MinRefreshInterval: time.Hour,
	})

	_, err := p.Keys(context.Background())
	require.NoError(t, err)

	_, err = p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, server.Hits())

	set, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, 2, server.Hits())
}

func TestJWKSProviderSingleFetch(t *testing.T) {
	key := testutil.NewKeyPair(t, "key-1")
	doc := testutil.JWKSDocument(t, key)

	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	defer server.Close()

	p := NewJWKSProvider(server.URL, JWKSOptions{CacheTTL: time.Hour})

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Keys(context.Background())
			errs <- err
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestJWKSProviderFollowerCancelled(t *testing.T) {
	key := testutil.NewKeyPair(t, "key-1")
	doc := testutil.JWKSDocument(t, key)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		_, _ = w.Write(doc)
	}))
	defer server.Close()

	p := NewJWKSProvider(server.URL, JWKSOptions{})

	done := make(chan error, 1)
	go func() {
		_, err := p.Keys(context.Background())
		done <- err
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Keys(ctx)
	assert.ErrorIs(t, err, ErrKeySetUnavailable)

	close(release)
	assert.NoError(t, <-done)
}

func TestJWKSProviderMetrics(t *testing.T) {
	key := testutil.NewKeyPair(t, "key-1")
	server := testutil.NewJWKSServer(t, testutil.JWKSDocument(t, key))

	reg := prometheus.NewRegistry()
	metrics := NewKeySetMetrics("test", reg)
	p := NewJWKSProvider(server.URL, JWKSOptions{Metrics: metrics})

	_, err := p.Keys(context.Background())
	require.NoError(t, err)

	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.refreshTotal.WithLabelValues("success")))
	assert.Equal(t, float64(0), promtest.ToFloat64(metrics.refreshTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.keys))
}

func TestJWKSProviderWaitersKeepTheirFlightResult(t *testing.T) {
	key := testutil.NewKeyPair(t, "key-1")
	doc := testutil.JWKSDocument(t, key)

	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			<-release
			_, _ = w.Write(doc)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewJWKSProvider(server.URL, JWKSOptions{CacheTTL: time.Hour, MinRefreshInterval: -1})

	const waiters = 8
	var wg sync.WaitGroup
	sets := make(chan *KeySet, waiters)
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := p.Keys(context.Background())
			sets <- set
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)

	// Failing refreshes racing with the wake-up must not leak into the first flight.
	var failing sync.WaitGroup
	for i := 0; i < 4; i++ {
		failing.Add(1)
		go func() {
			defer failing.Done()
			_, _ = p.Refresh(context.Background())
		}()
	}

	wg.Wait()
	failing.Wait()
	close(sets)
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	var first *KeySet
	for set := range sets {
		require.NotNil(t, set)
		if first == nil {
			first = set
		}
		assert.Same(t, first, set)
	}
}
