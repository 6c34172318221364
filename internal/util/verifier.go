package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var asymmetricAlgorithms = map[string]bool{
	"RS256": true, "RS384": true, "RS512": true,
	"PS256": true, "PS384": true, "PS512": true,
	"ES256": true, "ES384": true, "ES512": true,
	"EdDSA": true,
}

// IsAsymmetricAlgorithm reports whether alg is a public-key JWS algorithm.
func IsAsymmetricAlgorithm(alg string) bool {
	return asymmetricAlgorithms[alg]
}

// VerifierOptions configures token validation.
type VerifierOptions struct {
	Issuer     string
	Audience   string
	Algorithms []string
	Leeway     time.Duration
	Now        func() time.Time
}

// Verifier checks bearer tokens against the issuer's published keys.
type Verifier struct {
	keys     KeySource
	issuer   string
	audience string
	algs     []string
	leeway   time.Duration
	now      func() time.Time
}

// NewVerifier builds a Verifier. Symmetric algorithms are dropped from the
// allow-list; with an empty list only RS256 is accepted.
func NewVerifier(keys KeySource, opts VerifierOptions) *Verifier {
	v := &Verifier{
		keys:     keys,
		issuer:   opts.Issuer,
		audience: opts.Audience,
		leeway:   opts.Leeway,
		now:      opts.Now,
	}
	for _, alg := range opts.Algorithms {
		if IsAsymmetricAlgorithm(alg) {
			v.algs = append(v.algs, alg)
		}
	}
	if len(v.algs) == 0 {
		v.algs = []string{"RS256"}
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Verify validates structure, key id, signature and standard claims, in that
// order, and returns the decoded claims. An unknown kid triggers one forced
// Refresh; if the key source throttles it, the token fails with
// ErrUnknownSigningKey without a new fetch.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	header, err := parseStructure(raw)
	if err != nil {
		return nil, err
	}

	key, err := v.lookupKey(ctx, header.Kid)
	if err != nil {
		return nil, err
	}

	if !v.allowed(header.Alg) {
		return nil, fmt.Errorf("%w: algorithm %q is not allowed", ErrInvalidSignature, header.Alg)
	}
	if key.Algorithm != "" && key.Algorithm != header.Alg {
		return nil, fmt.Errorf("%w: key %s is for %s, token uses %s", ErrInvalidSignature, header.Kid, key.Algorithm, header.Alg)
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods(v.algs), jwt.WithoutClaimsValidation())
	_, err = parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return key.Key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if err := v.validateClaims(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// parseStructure checks the three-segment shape and decodes the header.
func parseStructure(raw string) (*tokenHeader, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	headerBytes, err := jwt.DecodeSegment(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}
	var header tokenHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}

	payloadBytes, err := jwt.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}

	if parts[2] == "" {
		return nil, fmt.Errorf("%w: empty signature", ErrMalformedToken)
	}
	if header.Alg == "" {
		return nil, fmt.Errorf("%w: alg header not found", ErrMalformedToken)
	}
	if header.Kid == "" {
		return nil, fmt.Errorf("%w: kid header not found", ErrMalformedToken)
	}
	return &header, nil
}

// lookupKey finds kid in the key set, forcing a single refresh on a miss.
func (v *Verifier) lookupKey(ctx context.Context, kid string) (*jwkKey, error) {
	set, err := v.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}
	if k, ok := set.Lookup(kid); ok {
		return &jwkKey{Key: k.Key, Algorithm: k.Algorithm}, nil
	}

	set, err = v.keys.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if k, ok := set.Lookup(kid); ok {
		return &jwkKey{Key: k.Key, Algorithm: k.Algorithm}, nil
	}
	return nil, fmt.Errorf("%w: kid %s", ErrUnknownSigningKey, kid)
}

type jwkKey struct {
	Key       interface{}
	Algorithm string
}

func (v *Verifier) allowed(alg string) bool {
	for _, a := range v.algs {
		if a == alg {
			return true
		}
	}
	return false
}

func (v *Verifier) validateClaims(claims *Claims) error {
	now := v.now()

	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: exp claim missing", ErrMalformedToken)
	}
	if !now.Before(claims.ExpiresAt.Time.Add(v.leeway)) {
		return fmt.Errorf("%w: expired at %s", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	if claims.NotBefore != nil && now.Add(v.leeway).Before(claims.NotBefore.Time) {
		return fmt.Errorf("%w: not before %s", ErrTokenNotYetValid, claims.NotBefore.Time.Format(time.RFC3339))
	}
	if claims.Issuer != v.issuer {
		return fmt.Errorf("%w: iss %q does not match %q", ErrIssuerMismatch, claims.Issuer, v.issuer)
	}
	if !audContains(claims.Audience, v.audience) {
		return fmt.Errorf("%w: audience %v does not include %q", ErrAudienceMismatch, []string(claims.Audience), v.audience)
	}
	return nil
}

func audContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
