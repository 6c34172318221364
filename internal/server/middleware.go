package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/AmeenMohammed/coffee-shop/internal/authz"
	"github.com/AmeenMohammed/coffee-shop/internal/config"
	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
	"github.com/AmeenMohammed/coffee-shop/internal/util"
)

const (
	claimsKey       = "claims"
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// RequirePermission rejects the request unless its bearer token grants
// permission. It runs before any handler reads the body.
func RequirePermission(gate *authz.Gate, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if gate == nil {
			writeError(c, http.StatusInternalServerError, "auth misconfigured")
			return
		}
		claims, err := gate.Authorize(c.Request.Context(), c.GetHeader("Authorization"), permission)
		if err != nil {
			writeAuthError(c, authz.AsAuthError(err))
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the claims stored by RequirePermission.
func ClaimsFromContext(c *gin.Context) (*util.Claims, bool) {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*util.Claims)
	return claims, ok
}

// RequestID returns the id assigned to the current request.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		writeError(c, http.StatusInternalServerError, "internal server error")
	})
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("%s %s %d %s request_id=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), RequestID(c))
	}
}

func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func tracing(serviceName string) gin.HandlerFunc {
	tracer := otel.GetTracerProvider().Tracer(serviceName)
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Request.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("server.address", c.Request.Host),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.Int("http.response.status_code", status),
			attribute.String("request.id", RequestID(c)),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// cors applies the configured CORS policy. A "*" entry allows any origin.
func cors(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowedOrigin := getAllowedOrigin(origin, cfg)

		if c.Request.Method == http.MethodOptions {
			if allowedOrigin == "" {
				logger.Warn("Preflight request from disallowed origin: %s", origin)
				writeError(c, http.StatusForbidden, "CORS origin not allowed")
				return
			}
			addCORSHeaders(c.Writer, cfg, allowedOrigin, c.GetHeader("Access-Control-Request-Headers"))
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if allowedOrigin == "" {
			logger.Warn("Request from disallowed origin: %s for %s", origin, c.Request.URL.Path)
			writeError(c, http.StatusForbidden, "CORS origin not allowed")
			return
		}

		addCORSHeaders(c.Writer, cfg, allowedOrigin, "")
		c.Next()
	}
}

func getAllowedOrigin(origin string, cfg *config.Config) string {
	if len(cfg.CORSConfig.AllowedOrigins) == 0 {
		return ""
	}
	if origin == "" {
		return cfg.CORSConfig.AllowedOrigins[0] // Default to first allowed origin
	}
	for _, allowed := range cfg.CORSConfig.AllowedOrigins {
		if allowed == origin {
			return allowed
		}
		if allowed == "*" {
			// Credentials cannot be combined with a literal wildcard.
			if cfg.CORSConfig.AllowCredentials {
				return origin
			}
			return "*"
		}
	}
	return ""
}

// addCORSHeaders adds configurable CORS headers
func addCORSHeaders(w http.ResponseWriter, cfg *config.Config, allowedOrigin, requestHeaders string) {
	w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
	w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.CORSConfig.AllowedMethods, ", "))
	w.Header().Set("Access-Control-Expose-Headers", "WWW-Authenticate, X-Request-ID")
	if requestHeaders != "" {
		w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
	} else {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.CORSConfig.AllowedHeaders, ", "))
	}
	if cfg.CORSConfig.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Vary", "Origin")
}
