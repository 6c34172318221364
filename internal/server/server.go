package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AmeenMohammed/coffee-shop/internal/authz"
	"github.com/AmeenMohammed/coffee-shop/internal/config"
	"github.com/AmeenMohammed/coffee-shop/internal/constants"
	"github.com/AmeenMohammed/coffee-shop/internal/repo/drink"
)

// Deps are the collaborators the HTTP API is built from.
type Deps struct {
	Drinks   drink.Repository
	Gate     *authz.Gate
	Metadata authz.Provider
	// Registry backs /metrics and the request metrics. Nil disables both.
	Registry *prometheus.Registry
}

type handler struct {
	cfg    *config.Config
	drinks drink.Repository
}

// NewRouter builds the gin engine serving the drinks API:
// * public menu and health routes
// * permission-guarded drink management routes
// * protected resource metadata and Prometheus metrics
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(
		recovery(),
		requestID(),
		tracing(cfg.Tracing.ServiceName),
		accessLog(),
		cors(cfg),
		requestTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
	)
	if deps.Registry != nil {
		r.Use(httpMetrics(newHTTPMetrics("coffeeshop", deps.Registry)))
	}

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "resource not found")
	})
	r.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := &handler{cfg: cfg, drinks: deps.Drinks}

	r.GET("/", h.index)
	r.GET("/healthz", h.health)
	r.GET("/drinks", h.listDrinks)

	r.GET("/drinks-detail", RequirePermission(deps.Gate, constants.PermGetDrinksDetail), h.listDrinkDetails)
	r.POST("/drinks", RequirePermission(deps.Gate, constants.PermPostDrinks), h.createDrink)
	r.PATCH("/drinks/:id", RequirePermission(deps.Gate, constants.PermPatchDrinks), h.updateDrink)
	r.DELETE("/drinks/:id", RequirePermission(deps.Gate, constants.PermDeleteDrinks), h.deleteDrink)

	if deps.Metadata != nil {
		metadata := gin.WrapF(deps.Metadata.ProtectedResourceMetadataHandler())
		r.GET(constants.ProtectedResourcePath, metadata)
		r.OPTIONS(constants.ProtectedResourcePath, metadata)
	}

	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	return r
}

// NewHTTPServer wraps the router in an http.Server listening on cfg.ListenPort.
func NewHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ListenPort),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewShutdownContext is a little helper to gracefully shut down
func NewShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
