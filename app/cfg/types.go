package cfg

import (
	"log/slog"
	"net"
	"time"
)

type Cfg struct {
	// Origin and public identity
	GraphQLOrigin string
	PublicURL     string

	// Listener
	Host        string
	Port        string
	MetricsPort string
	TrustProxy  bool

	// Rendering
	StaticDir              string
	RendererOrigin         string
	RendererPrepareTimeout time.Duration
	SiteConfig             string
	FeedCacheTTL           time.Duration

	// Telemetry
	TelemetryEnabled bool
	GoogleProject    string

	// Application metadata
	Env      string
	DevMode  bool
	LogLevel slog.Level
	Version  string
}

func (c *Cfg) ListenAddr() string {
	return net.JoinHostPort(c.Host, c.Port)
}
