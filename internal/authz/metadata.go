package authz

import (
	"encoding/json"
	"net/http"

	"github.com/AmeenMohammed/coffee-shop/internal/config"
	"github.com/AmeenMohammed/coffee-shop/internal/constants"
	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
)

// Provider serves the discovery documents that tell clients how to obtain
// tokens for this API.
type Provider interface {
	ProtectedResourceMetadataHandler() http.HandlerFunc
}

type metadataProvider struct {
	cfg     *config.Config
	jwksURI string
}

// NewMetadataProvider describes the API as an OAuth protected resource.
// jwksURI is the key set the server actually verifies against; it may be
// empty when keys come from a local file.
func NewMetadataProvider(cfg *config.Config, jwksURI string) Provider {
	return &metadataProvider{cfg: cfg, jwksURI: jwksURI}
}

func (p *metadataProvider) ProtectedResourceMetadataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		issuer := p.cfg.Auth.IssuerURL()
		meta := map[string]interface{}{
			"resource":                 p.cfg.Auth.Audience,
			"issuer":                   issuer,
			"authorization_servers":    []string{issuer},
			"permissions_supported":    constants.SupportedPermissions,
			"bearer_methods_supported": []string{"header"},
		}
		if p.jwksURI != "" {
			meta["jwks_uri"] = p.jwksURI
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(meta); err != nil {
			logger.Error("Error encoding protected resource metadata: %v", err)
			http.Error(w, "failed to encode metadata", http.StatusInternalServerError)
		}
	}
}
