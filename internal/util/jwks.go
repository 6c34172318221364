package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/AmeenMohammed/coffee-shop/internal/constants"
	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
)

const maxJWKSBytes = 1 << 20

var jwksTracer = otel.Tracer("coffee-shop/jwks")

// KeySet is an immutable snapshot of an issuer's public signing keys, indexed by key id.
type KeySet struct {
	keys      map[string]jose.JSONWebKey
	fetchedAt time.Time
}

// NewKeySet indexes keys by key id. The first key wins when ids repeat.
func NewKeySet(keys []jose.JSONWebKey, fetchedAt time.Time) *KeySet {
	set := &KeySet{keys: make(map[string]jose.JSONWebKey, len(keys)), fetchedAt: fetchedAt}
	for _, k := range keys {
		if _, dup := set.keys[k.KeyID]; !dup {
			set.keys[k.KeyID] = k
		}
	}
	return set
}

// Lookup returns the key published under kid.
func (s *KeySet) Lookup(kid string) (jose.JSONWebKey, bool) {
	if s == nil {
		return jose.JSONWebKey{}, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// KeyIDs returns the key ids in sorted order.
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

func (s *KeySet) FetchedAt() time.Time {
	return s.fetchedAt
}

// ParseKeySet decodes a JWKS document, keeping only public signature keys that carry a key id.
func ParseKeySet(data []byte, fetchedAt time.Time) (*KeySet, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode JWKS: %w", err)
	}
	if doc.Keys == nil {
		return nil, errors.New("JWKS document has no keys member")
	}

	keys := make([]jose.JSONWebKey, 0, len(doc.Keys))
	for _, raw := range doc.Keys {
		var k jose.JSONWebKey
		if err := k.UnmarshalJSON(raw); err != nil {
			logger.Debug("Skipping undecodable JWK: %v", err)
			continue
		}
		if k.KeyID == "" {
			logger.Debug("Skipping JWK without kid")
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			logger.Debug("Skipping JWK %s with use %q", k.KeyID, k.Use)
			continue
		}
		pub := k.Public()
		if pub.Key == nil || !pub.Valid() {
			logger.Debug("Skipping non-asymmetric JWK %s", k.KeyID)
			continue
		}
		keys = append(keys, pub)
	}
	if len(keys) == 0 {
		return nil, errors.New("JWKS document has no usable signing keys")
	}
	return NewKeySet(keys, fetchedAt), nil
}

// KeySource yields the issuer's current signing keys.
type KeySource interface {
	// Keys returns the current set, fetching it when no fresh copy is held.
	Keys(ctx context.Context) (*KeySet, error)
	// Refresh forces a refetch. Called when a token names an unknown key id.
	Refresh(ctx context.Context) (*KeySet, error)
}

// StaticKeySource serves a fixed key set.
type StaticKeySource struct {
	set *KeySet
}

func NewStaticKeySource(set *KeySet) *StaticKeySource {
	return &StaticKeySource{set: set}
}

// LoadKeySetFile reads a JWKS document from disk.
func LoadKeySetFile(path string) (*StaticKeySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	set, err := ParseKeySet(data, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("Loaded %d public keys from %s.", set.Len(), path)
	return &StaticKeySource{set: set}, nil
}

func (s *StaticKeySource) Keys(context.Context) (*KeySet, error) {
	return s.set, nil
}

func (s *StaticKeySource) Refresh(context.Context) (*KeySet, error) {
	return s.set, nil
}

// JWKSOptions tunes a JWKSProvider. Zero values take the package defaults.
type JWKSOptions struct {
	HTTPClient         *http.Client
	CacheTTL           time.Duration
	MaxStale           time.Duration
	FetchTimeout       time.Duration
	MinRefreshInterval time.Duration // zero allows every forced refresh
	BreakerThreshold   int
	BreakerTimeout     time.Duration
	Metrics            *KeySetMetrics
	Now                func() time.Time
}

// JWKSProvider fetches and caches the key set published at a JWKS URL.
// At most one fetch runs at a time; concurrent callers wait for it.
type JWKSProvider struct {
	url          string
	client       *http.Client
	ttl          time.Duration
	maxStale     time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	metrics      *KeySetMetrics

	mu        sync.RWMutex
	current   *KeySet
	expiresAt time.Time

	group singleflight.Group
}

var _ KeySource = (*JWKSProvider)(nil)

// NewJWKSProvider creates a provider for jwksURL. Nothing is fetched until first use.
func NewJWKSProvider(jwksURL string, opts JWKSOptions) *JWKSProvider {
	p := &JWKSProvider{
		url:          jwksURL,
		client:       opts.HTTPClient,
		ttl:          opts.CacheTTL,
		maxStale:     opts.MaxStale,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		metrics:      opts.Metrics,
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.ttl <= 0 {
		p.ttl = constants.DefaultJWKSCacheTTL
	}
	if p.maxStale < 0 {
		p.maxStale = 0
	}
	if p.fetchTimeout <= 0 {
		p.fetchTimeout = constants.DefaultJWKSFetchTimeout
	}
	if p.now == nil {
		p.now = time.Now
	}

	if opts.MinRefreshInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(opts.MinRefreshInterval), 1)
	} else {
		p.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	threshold := opts.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	breakerTimeout := opts.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "jwks",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("JWKS circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return p
}

// URL returns the JWKS endpoint.
func (p *JWKSProvider) URL() string {
	return p.url
}

// Keys returns the cached set while it is fresh. Past its TTL the set is
// refetched; if that fails the old set is served until MaxStale runs out.
func (p *JWKSProvider) Keys(ctx context.Context) (*KeySet, error) {
	set, expiresAt := p.snapshot()
	now := p.now()
	if set != nil && now.Before(expiresAt) {
		return set, nil
	}

	fresh, err := p.refresh(ctx)
	if err == nil {
		return fresh, nil
	}
	if set != nil && now.Before(expiresAt.Add(p.maxStale)) {
		logger.Warn("Failed to refresh JWKS from %s, serving keys fetched at %s: %v",
			p.url, set.FetchedAt().Format(time.RFC3339), err)
		return set, nil
	}
	return nil, err
}

// Refresh refetches the set unless a forced refresh ran within MinRefreshInterval,
// in which case the current set is returned untouched.
func (p *JWKSProvider) Refresh(ctx context.Context) (*KeySet, error) {
	if !p.limiter.Allow() {
		if set, _ := p.snapshot(); set != nil {
			logger.Debug("Forced JWKS refresh throttled, keeping %d keys", set.Len())
			return set, nil
		}
	}
	return p.refresh(ctx)
}

func (p *JWKSProvider) snapshot() (*KeySet, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.expiresAt
}

func (p *JWKSProvider) store(set *KeySet) {
	p.mu.Lock()
	p.current = set
	p.expiresAt = set.FetchedAt().Add(p.ttl)
	p.mu.Unlock()
	p.metrics.setKeys(set.Len())
}

func (p *JWKSProvider) refresh(ctx context.Context) (*KeySet, error) {
	ch := p.group.DoChan(p.url, func() (interface{}, error) {
		set, err := p.fetch(ctx)
		if err != nil {
			return nil, err
		}
		p.store(set)
		return set, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, ctx.Err())
	}
}

// fetch runs one GET through the circuit breaker. The caller's cancellation
// does not abort it: followers share the result.
func (p *JWKSProvider) fetch(ctx context.Context) (*KeySet, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
	defer cancel()

	ctx, span := jwksTracer.Start(ctx, "jwks.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("jwks.url", p.url)),
	)
	defer span.End()

	start := time.Now()
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.fetchOnce(ctx)
	})
	p.metrics.observeRefresh(err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "jwks fetch failed")
		logger.Error("Failed to fetch JWKS from %s: %v", p.url, err)
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}

	set := result.(*KeySet)
	span.SetAttributes(attribute.Int("jwks.keys", set.Len()))
	logger.Info("Loaded %d public keys.", set.Len())
	return set, nil
}

func (p *JWKSProvider) fetchOnce(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read JWKS response: %w", err)
	}
	if len(body) > maxJWKSBytes {
		return nil, fmt.Errorf("JWKS response exceeds %d bytes", maxJWKSBytes)
	}

	return ParseKeySet(body, p.now())
}
