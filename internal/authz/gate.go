package authz

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	logger "github.com/AmeenMohammed/coffee-shop/internal/logging"
	"github.com/AmeenMohammed/coffee-shop/internal/util"
)

const resultAllowed = "allowed"

// TokenVerifier turns a raw bearer token into verified claims.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*util.Claims, error)
}

// Operation is a protected action. It receives the caller's verified claims.
type Operation[T any] func(ctx context.Context, claims *util.Claims) (T, error)

// Gate authorizes requests: header extraction, token verification, then
// the permission check.
type Gate struct {
	verifier TokenVerifier
	access   AccessControl
	metrics  *Metrics
	tracer   trace.Tracer
}

type GateOption func(*Gate)

// WithMetrics records every decision in m.
func WithMetrics(m *Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) GateOption {
	return func(g *Gate) { g.tracer = t }
}

// NewGate returns a Gate. A nil access falls back to PermissionValidator.
func NewGate(verifier TokenVerifier, access AccessControl, opts ...GateOption) *Gate {
	g := &Gate{
		verifier: verifier,
		access:   access,
		tracer:   otel.Tracer("coffee-shop/authz"),
	}
	if g.access == nil {
		g.access = &PermissionValidator{}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize checks authHeader against requiredPermission. On failure the
// returned error is always an *AuthError.
func (g *Gate) Authorize(ctx context.Context, authHeader, requiredPermission string) (*util.Claims, error) {
	ctx, span := g.tracer.Start(ctx, "authz.authorize",
		trace.WithAttributes(attribute.String("authz.permission", requiredPermission)),
	)
	defer span.End()

	start := time.Now()
	claims, err := g.authorize(ctx, authHeader, requiredPermission)
	if err != nil {
		authErr := AsAuthError(err)
		g.metrics.observe(requiredPermission, authErr.Code, time.Since(start))
		span.SetAttributes(attribute.String("authz.error_code", authErr.Code))
		span.SetStatus(codes.Error, string(authErr.Kind))
		logger.Warn("Authorization for %s failed: %v", requiredPermission, authErr)
		return nil, authErr
	}

	g.metrics.observe(requiredPermission, resultAllowed, time.Since(start))
	span.SetAttributes(attribute.String("authz.subject", claims.Subject))
	logger.Debug("Authorized %s for %s", claims.Subject, requiredPermission)
	return claims, nil
}

func (g *Gate) authorize(ctx context.Context, authHeader, requiredPermission string) (*util.Claims, error) {
	token, err := util.ExtractAccessToken(authHeader)
	if err != nil {
		return nil, err
	}
	claims, err := g.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := g.access.ValidateAccess(claims, requiredPermission); err != nil {
		return nil, err
	}
	return claims, nil
}

// Guard wraps op so it only runs once the caller holds permission. op's
// result is returned unchanged.
func Guard[T any](g *Gate, permission string, op Operation[T]) func(ctx context.Context, authHeader string) (T, error) {
	return func(ctx context.Context, authHeader string) (T, error) {
		claims, err := g.Authorize(ctx, authHeader, permission)
		if err != nil {
			var zero T
			return zero, err
		}
		return op(ctx, claims)
	}
}
