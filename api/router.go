// Package api is the HTTP surface of the telemetry gateway.
//
// Routes:
//
//	POST   /telemetry              create a record
//	GET    /telemetry              list records (?deviceId=&top=)
//	PUT    /telemetry/:rowKey      merge fields into a record
//	DELETE /telemetry/:rowKey      delete a record (?deviceId=)
//	GET    /healthz                readiness (no API key)
//	GET    /                       service info (no API key)
//	GET    /metrics                Prometheus metrics when enabled (no API key)
//
// Every request other than the exempt ones must carry the API key header.
// Every error response is a JSON [ErrorResponse].
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jacentio/telemetry-gateway/internal/metrics"
	"github.com/jacentio/telemetry-gateway/store"
)

// Defaults applied by NewRouter.
const (
	DefaultAuthHeader   = "x-api-key"
	DefaultServiceName  = "telemetry-gateway"
	DefaultMaxBodyBytes = 1 << 20
)

// Options configures the Router.
type Options struct {
	// APIKey is the shared secret. Empty rejects every authenticated route.
	APIKey string

	// AuthHeader carries the API key. Default: "x-api-key"
	AuthHeader string

	// ServiceName is reported by GET /. Default: "telemetry-gateway"
	ServiceName string

	// MaxBodyBytes caps request bodies. Default: 1 MiB
	MaxBodyBytes int64

	// MetricsEnabled mounts GET /metrics.
	MetricsEnabled bool

	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string
}

func (o *Options) validate() {
	if o.AuthHeader == "" {
		o.AuthHeader = DefaultAuthHeader
	}
	if o.ServiceName == "" {
		o.ServiceName = DefaultServiceName
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Router serves the gateway's HTTP API.
type Router struct {
	engine    *gin.Engine
	connector *store.Connector
	health    *HealthReporter
	opts      Options
	logger    *slog.Logger
	exempt    map[string]bool
}

// NewRouter builds the gin engine and registers every route.
func NewRouter(connector *store.Connector, opts Options, logger *slog.Logger) *Router {
	opts.validate()
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		connector: connector,
		health:    NewHealthReporter(connector, opts.APIKey != "", logger),
		opts:      opts,
		logger:    logger,
		exempt: map[string]bool{
			"/":        true,
			"/healthz": true,
		},
	}
	if opts.MetricsEnabled {
		r.exempt["/metrics"] = true
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	// The caller address is the TCP peer; forwarded headers are not trusted.
	_ = engine.SetTrustedProxies(nil)

	engine.Use(r.requestLogger(), r.recovery())
	if len(opts.CORSOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:  opts.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", opts.AuthHeader},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}
	engine.Use(r.authGate())

	engine.GET("/", r.info)
	engine.GET("/healthz", r.healthz)
	if opts.MetricsEnabled {
		engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	telemetryRoutes := engine.Group("/telemetry")
	{
		telemetryRoutes.POST("", r.createTelemetry)
		telemetryRoutes.GET("", r.listTelemetry)
		telemetryRoutes.PUT("/:rowKey", r.updateTelemetry)
		telemetryRoutes.DELETE("/:rowKey", r.deleteTelemetry)
	}

	engine.NoRoute(notFound)
	engine.NoMethod(methodNotAllowed)

	r.engine = engine
	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

// Handler returns the underlying http.Handler.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Health returns the router's health reporter.
func (r *Router) Health() *HealthReporter {
	return r.health
}
