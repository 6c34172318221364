// Package testutil provides signing keys, tokens and a JWKS server for tests.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v4"
)

const (
	Issuer   = "https://fnsd.us/"
	Audience = "Coffee"
)

// KeyPair is an RSA signing key published under KeyID.
type KeyPair struct {
	Private *rsa.PrivateKey
	KeyID   string
}

// NewKeyPair generates a 2048-bit RSA key.
func NewKeyPair(t testing.TB, kid string) *KeyPair {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	return &KeyPair{Private: priv, KeyID: kid}
}

// JWK returns the public half as a JWK.
func (k *KeyPair) JWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       &k.Private.PublicKey,
		KeyID:     k.KeyID,
		Algorithm: "RS256",
		Use:       "sig",
	}
}

// Sign issues an RS256 token with the kid header set.
func (k *KeyPair) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.KeyID
	signed, err := token.SignedString(k.Private)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

// JWKSDocument encodes the public keys as a JWKS document.
func JWKSDocument(t testing.TB, keys ...*KeyPair) []byte {
	t.Helper()
	set := jose.JSONWebKeySet{}
	for _, k := range keys {
		set.Keys = append(set.Keys, k.JWK())
	}
	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Failed to encode JWKS: %v", err)
	}
	return data
}

// TokenClaims returns claims valid for an hour from now. A nil perms leaves
// the permissions claim out entirely.
func TokenClaims(issuer, audience string, perms []string) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "auth0|barista",
		"iss": issuer,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	if perms != nil {
		claims["permissions"] = perms
	}
	return claims
}

// JWKSServer serves a swappable JWKS document and counts requests.
type JWKSServer struct {
	*httptest.Server

	hits   atomic.Int32
	mu     sync.Mutex
	doc    []byte
	status int
}

// NewJWKSServer starts a server publishing doc. It is closed with the test.
func NewJWKSServer(t testing.TB, doc []byte) *JWKSServer {
	t.Helper()
	s := &JWKSServer{doc: doc, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		doc, status := s.doc, s.status
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(doc)
	}))
	t.Cleanup(s.Close)
	return s
}

// SetDocument replaces the published document.
func (s *JWKSServer) SetDocument(doc []byte) {
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
}

// SetStatus makes the server answer with status.
func (s *JWKSServer) SetStatus(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Hits returns the number of requests served.
func (s *JWKSServer) Hits() int {
	return int(s.hits.Load())
}
