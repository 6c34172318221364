package authz

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmeenMohammed/coffee-shop/internal/config"
)

func TestProtectedResourceMetadataHandler(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{Domain: "fnsd.us", Audience: "Coffee"}}
	handler := NewMetadataProvider(cfg, "https://fnsd.us/.well-known/jwks.json").ProtectedResourceMetadataHandler()

	req := httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var meta map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&meta))
	assert.Equal(t, "Coffee", meta["resource"])
	assert.Equal(t, "https://fnsd.us/", meta["issuer"])
	assert.Equal(t, "https://fnsd.us/.well-known/jwks.json", meta["jwks_uri"])
	assert.ElementsMatch(t,
		[]interface{}{"get:drinks-detail", "post:drinks", "patch:drinks", "delete:drinks"},
		meta["permissions_supported"])
}

func TestProtectedResourceMetadataWithoutJWKS(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{Issuer: "https://issuer.example.com/", Audience: "Coffee"}}
	handler := NewMetadataProvider(cfg, "").ProtectedResourceMetadataHandler()

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil))

	var meta map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&meta))
	_, ok := meta["jwks_uri"]
	assert.False(t, ok)
}

func TestProtectedResourceMetadataMethods(t *testing.T) {
	handler := NewMetadataProvider(&config.Config{}, "").ProtectedResourceMetadataHandler()

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodOptions, "/.well-known/oauth-protected-resource", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "/.well-known/oauth-protected-resource", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
