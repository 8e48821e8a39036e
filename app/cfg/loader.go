package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

// MaxFeedCacheTTL bounds FEED_CACHE_TTL so cached feeds never go stale for long.
const MaxFeedCacheTTL = 60 * time.Second

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Origin configuration
	GraphQLOrigin string `long:"graphql-origin" env:"GRAPHQL_ORIGIN" default:"https://graphql.natwelch.com" description:"GraphQL origin serving posts and auth flows"`
	PublicURL     string `long:"public-url" env:"PUBLIC_URL" default:"https://writing.natwelch.com" description:"Public base URL used in feed and sitemap links"`

	// Listener configuration
	Host        string `long:"host" env:"HOST" default:"0.0.0.0" description:"Listen address"`
	Port        string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	MetricsPort string `long:"metrics-port" env:"METRICS_PORT" description:"Port for the Prometheus /metrics listener (disabled when empty)"`
	TrustProxy  string `long:"trust-proxy" env:"TRUST_PROXY" default:"true" description:"Honour X-Forwarded-Proto from the fronting proxy"`

	// Rendering configuration
	StaticDir              string        `long:"static-dir" env:"STATIC_DIR" default:"./static" description:"Directory holding rooted static files"`
	RendererOrigin         string        `long:"renderer-origin" env:"RENDERER_ORIGIN" default:"http://localhost:3000" description:"Rendering server that produces HTML pages"`
	RendererPrepareTimeout time.Duration `long:"renderer-prepare-timeout" env:"RENDERER_PREPARE_TIMEOUT" default:"30s" description:"How long to wait for the rendering server at startup"`
	SiteConfig             string        `long:"site-config" env:"SITE_CONFIG" description:"Optional YAML file with feed metadata, CSP hosts and redirects"`
	FeedCacheTTL           time.Duration `long:"feed-cache-ttl" env:"FEED_CACHE_TTL" default:"0s" description:"Cache origin post lists for feeds and sitemap (0 disables, max 60s)"`

	// Telemetry configuration
	EnableStackdriver string `long:"enable-stackdriver" env:"ENABLE_STACKDRIVER" description:"Any non-empty value enables Cloud Trace and Cloud Monitoring export"`
	GoogleProject     string `long:"google-project" env:"GOOGLE_PROJECT" default:"icco-cloud" description:"Google Cloud project for telemetry and trace ids"`

	// Application metadata
	Env      string `long:"env" env:"NODE_ENV" default:"development" description:"Runtime environment; production disables dev mode"`
	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level (debug, info, warn, error)"`
}

// Load parses args and the environment. It returns (nil, nil) when help was requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	trustProxy, err := strconv.ParseBool(cmp.Or(raw.TrustProxy, "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRUST_PROXY %q: %w", raw.TrustProxy, err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cmp.Or(raw.LogLevel, "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", raw.LogLevel, err)
	}

	cfg := &Cfg{
		GraphQLOrigin:          raw.GraphQLOrigin,
		PublicURL:              raw.PublicURL,
		Host:                   raw.Host,
		Port:                   raw.Port,
		MetricsPort:            raw.MetricsPort,
		TrustProxy:             trustProxy,
		StaticDir:              raw.StaticDir,
		RendererOrigin:         raw.RendererOrigin,
		RendererPrepareTimeout: raw.RendererPrepareTimeout,
		SiteConfig:             raw.SiteConfig,
		FeedCacheTTL:           min(raw.FeedCacheTTL, MaxFeedCacheTTL),
		TelemetryEnabled:       raw.EnableStackdriver != "",
		GoogleProject:          raw.GoogleProject,
		Env:                    raw.Env,
		DevMode:                raw.Env != "production",
		LogLevel:               level,
		Version:                GetVersion(),
	}

	if err := validate(cfg, raw.FeedCacheTTL); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Cfg, feedCacheTTL time.Duration) error {
	absoluteURLs := map[string]string{
		"GRAPHQL_ORIGIN":  cfg.GraphQLOrigin,
		"PUBLIC_URL":      cfg.PublicURL,
		"RENDERER_ORIGIN": cfg.RendererOrigin,
	}

	for name, value := range absoluteURLs {
		u, err := url.Parse(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, value)
		}
	}

	ports := map[string]string{"PORT": cfg.Port}
	if cfg.MetricsPort != "" {
		ports["METRICS_PORT"] = cfg.MetricsPort
	}

	for name, value := range ports {
		port, err := strconv.Atoi(value)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("%s must be a port number, got %q", name, value)
		}
	}

	if feedCacheTTL < 0 {
		return fmt.Errorf("FEED_CACHE_TTL must be non-negative, got %s", feedCacheTTL)
	}

	if cfg.TelemetryEnabled && cfg.GoogleProject == "" {
		return fmt.Errorf("GOOGLE_PROJECT is required when ENABLE_STACKDRIVER is set")
	}

	return nil
}
