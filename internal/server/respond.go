package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AmeenMohammed/coffee-shop/internal/authz"
	"github.com/AmeenMohammed/coffee-shop/internal/constants"
	"github.com/AmeenMohammed/coffee-shop/internal/domain"
	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
	"github.com/AmeenMohammed/coffee-shop/internal/util"
)

// writeError renders the standard failure body and aborts the chain.
func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   status,
		"message": message,
	})
}

// writeAuthError renders an authorization failure. 401 responses point the
// client at the protected resource metadata.
func writeAuthError(c *gin.Context, err *authz.AuthError) {
	if err.Status == http.StatusUnauthorized {
		realm := baseURL(c.Request) + constants.ProtectedResourcePath
		c.Header("WWW-Authenticate", fmt.Sprintf(
			`Bearer resource_metadata=%q, error="invalid_token", error_description=%q`,
			realm, err.Message,
		))
		c.Header("Access-Control-Expose-Headers", "WWW-Authenticate")
	}
	c.AbortWithStatusJSON(err.Status, gin.H{
		"success":    false,
		"error":      err.Status,
		"error_code": err.Code,
		"message":    err.Message,
	})
}

// writeDomainError maps repository and body errors onto HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrDrinkNotFound):
		writeError(c, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrDrinkConflict):
		writeError(c, http.StatusConflict, "a drink with this title already exists")
	case errors.Is(err, domain.ErrInvalidDrink):
		writeError(c, http.StatusUnprocessableEntity, "unprocessable")
	case errors.Is(err, util.ErrUnsupportedMediaType):
		writeError(c, http.StatusUnsupportedMediaType, "request body must be application/json")
	case errors.Is(err, util.ErrInvalidBody):
		writeError(c, http.StatusBadRequest, "bad request")
	default:
		logger.Error("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusInternalServerError, "internal server error")
	}
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwardedProto := r.Header.Get("X-Forwarded-Proto"); forwardedProto != "" {
		scheme = forwardedProto
	}
	host := r.Host
	if forwardedHost := r.Header.Get("X-Forwarded-Host"); forwardedHost != "" {
		host = forwardedHost
	}
	return scheme + "://" + strings.TrimSuffix(host, "/")
}
