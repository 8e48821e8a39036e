package api

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/icco/writing/app/feed"
	"github.com/icco/writing/app/render"
	"github.com/icco/writing/app/site"
	"go.opentelemetry.io/otel/propagation"
)

type FeedBuilder interface {
	Feed(ctx context.Context) *feed.Feed
	Sitemap(ctx context.Context) *feed.Sitemap
}

var _ FeedBuilder = (*feed.Builder)(nil)

type Handler struct {
	builder   FeedBuilder
	renderer  render.Renderer
	site      *site.Settings
	staticDir string
}

// Route is one entry of the ordered route table. An empty Method matches every
// method; Prefix also matches every path below Path.
type Route struct {
	Method  string
	Path    string
	Prefix  bool
	Handler gin.HandlerFunc
}

type ServerOptions struct {
	GraphQLOrigin    string
	GoogleProject    string
	TelemetryEnabled bool
	TrustProxy       bool
	DevMode          bool
	Logger           *slog.Logger

	// Propagator extracts inbound trace context for log correlation. Nil disables it.
	Propagator propagation.TextMapPropagator
}
