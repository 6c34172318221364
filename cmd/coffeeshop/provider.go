package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AmeenMohammed/coffee-shop/internal/config"
	"github.com/AmeenMohammed/coffee-shop/internal/constants"
	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
	"github.com/AmeenMohammed/coffee-shop/internal/util"
)

// MakeKeySource picks where signing keys come from: a local JWKS file, the
// issuer's discovery document, or the configured JWKS URL. The returned URL
// is empty for file-backed keys.
func MakeKeySource(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (util.KeySource, string, error) {
	if cfg.Auth.JWKSFile != "" {
		src, err := util.LoadKeySetFile(cfg.Auth.JWKSFile)
		if err != nil {
			return nil, "", err
		}
		return src, "", nil
	}

	jwksURL := cfg.Auth.JWKSEndpoint()
	if cfg.Auth.Discovery {
		timeout := cfg.Auth.FetchTimeout()
		if timeout <= 0 {
			timeout = constants.DefaultJWKSFetchTimeout
		}
		discoveryCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		discovered, err := util.DiscoverJWKSURL(discoveryCtx, cfg.Auth.IssuerURL(), nil)
		if err != nil {
			return nil, "", err
		}
		jwksURL = discovered
	}
	logger.Info("Using JWKS endpoint %s", jwksURL)

	provider := util.NewJWKSProvider(jwksURL, util.JWKSOptions{
		CacheTTL:           cfg.Auth.CacheTTL(),
		MaxStale:           cfg.Auth.MaxStale(),
		FetchTimeout:       cfg.Auth.FetchTimeout(),
		MinRefreshInterval: cfg.Auth.MinRefreshInterval(),
		BreakerThreshold:   cfg.Auth.Breaker.Threshold,
		BreakerTimeout:     time.Duration(cfg.Auth.Breaker.TimeoutSeconds) * time.Second,
		Metrics:            util.NewKeySetMetrics("coffeeshop", reg),
	})
	return provider, provider.URL(), nil
}

// MakeVerifier builds the token verifier for cfg.
func MakeVerifier(cfg *config.Config, keys util.KeySource) *util.Verifier {
	return util.NewVerifier(keys, util.VerifierOptions{
		Issuer:     cfg.Auth.IssuerURL(),
		Audience:   cfg.Auth.Audience,
		Algorithms: cfg.Auth.Algorithms,
		Leeway:     cfg.Auth.Leeway(),
	})
}
