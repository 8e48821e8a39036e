package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/icco/writing/app/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// staticFiles are served from the static directory at the site root.
var staticFiles = []string{
	"/robots.txt",
	"/sitemap.xml",
	"/favicon.ico",
	"/.well-known/brave-payments-verification.txt",
}

var anyMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodHead, http.MethodOptions, http.MethodDelete, http.MethodConnect,
	http.MethodTrace,
}

// NewServer creates the edge router: observability, security, compression and
// the route table, with the renderer as the fallback for everything unmatched.
func NewServer(handler *Handler, opts ServerOptions) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)

	proxy, err := newOriginProxy(opts.GraphQLOrigin)
	if err != nil {
		return nil, err
	}

	compress, err := compressionMiddleware(proxyPrefixes)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleMethodNotAllowed = false

	// Middleware
	r.Use(observability.Middleware(logger, opts.GoogleProject, opts.Propagator))
	if opts.TelemetryEnabled {
		r.Use(otelgin.Middleware("writing"))
	}
	r.Use(metricsMiddleware())
	r.Use(gin.CustomRecoveryWithWriter(io.Discard, recoverPanic))
	r.Use(securityMiddleware(opts.GraphQLOrigin, handler.site.CSP, opts.TrustProxy && !opts.DevMode))
	r.Use(compress)

	// Routes
	if err := registerRoutes(r, handler.Routes(proxy)); err != nil {
		return nil, err
	}
	r.NoRoute(handler.Fallback)

	return r, nil
}

// Routes returns the route table in precedence order.
func (h *Handler) Routes(proxy gin.HandlerFunc) []Route {
	routes := []Route{
		{Method: http.MethodGet, Path: "/healthz", Handler: h.Healthz},
		{Method: http.MethodGet, Path: "/post/:id", Handler: h.Post},
		{Method: http.MethodGet, Path: "/tags/:id", Handler: h.TagsRedirect},
		{Method: http.MethodGet, Path: "/tag/:id", Handler: h.Tag},
		{Method: http.MethodGet, Path: "/feed.rss", Handler: h.FeedRSS},
		{Method: http.MethodGet, Path: "/feed.atom", Handler: h.FeedAtom},
		{Method: http.MethodGet, Path: "/sitemap.xml", Handler: h.Sitemap},
	}

	for _, prefix := range proxyPrefixes {
		routes = append(routes, Route{Path: prefix, Prefix: true, Handler: proxy})
	}

	for _, name := range staticFiles {
		routes = append(routes, Route{Method: http.MethodGet, Path: name, Handler: h.Static(name)})
	}

	return routes
}

// registerRoutes installs routes in order. A (method, path) pair already
// claimed by an earlier route is skipped, and every GET route also answers HEAD.
func registerRoutes(r *gin.Engine, routes []Route) error {
	claimed := make(map[string]bool)

	claim := func(method, path string, handler gin.HandlerFunc) {
		key := method + " " + path
		if claimed[key] {
			return
		}
		claimed[key] = true
		r.Handle(method, path, handler)
	}

	for _, route := range routes {
		if route.Handler == nil {
			return fmt.Errorf("route %s %s has no handler", route.Method, route.Path)
		}

		methods := []string{route.Method}
		switch {
		case route.Method == "":
			methods = anyMethods
		case route.Method == http.MethodGet:
			methods = []string{http.MethodGet, http.MethodHead}
		}

		for _, method := range methods {
			claim(method, route.Path, route.Handler)
			if route.Prefix {
				claim(method, route.Path+"/*rest", route.Handler)
			}
		}
	}

	return nil
}

func recoverPanic(c *gin.Context, recovered any) {
	if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
		c.Abort()
		return
	}

	observability.Logger(c.Request.Context()).Error("Panic while handling request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"panic", fmt.Sprint(recovered),
		"stack", string(debug.Stack()),
	)

	if c.Writer.Written() {
		c.Abort()
		return
	}
	c.AbortWithStatus(http.StatusInternalServerError)
}
