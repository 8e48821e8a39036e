package site

import (
	"cmp"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Default returns the built-in settings for the given public base URL.
func Default(publicURL string) *Settings {
	return &Settings{
		Feed: FeedSettings{
			Title:       "Nat? Nat. Nat!",
			Description: "Nat Welch's Blog about random stuff.",
			Favicon:     strings.TrimSuffix(publicURL, "/") + "/favicon.ico",
			Language:    "en",
			Author: Author{
				Name:  "Nat Welch",
				Email: "nat@natwelch.com",
				Link:  "https://natwelch.com",
			},
		},
		CSP: CSPSettings{
			AuthJWKSURL:        "https://icco.auth0.com/.well-known/jwks.json",
			AssetHosts:         []string{"https://icco.imgix.net", "https://storage.googleapis.com"},
			AnalyticsScriptURL: "https://a.natwelch.com/tracker.js",
			ReportURI:          "https://reportd.natwelch.com/report/writing",
		},
		Redirects: map[string]string{},
	}
}

// Load reads site settings from path. An empty path yields Default.
// Values missing from the file keep their defaults.
func Load(path, publicURL string) (*Settings, error) {
	settings := Default(publicURL)
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if settings.Redirects == nil {
		settings.Redirects = map[string]string{}
	}

	if err := validate(settings); err != nil {
		return nil, fmt.Errorf("invalid site config %s: %w", path, err)
	}

	slog.Debug("Site configuration loaded", "path", path, "redirects", len(settings.Redirects), "language", settings.Feed.Language)

	return settings, nil
}

func validate(s *Settings) error {
	requiredFields := map[string]string{
		"feed title":       s.Feed.Title,
		"feed author name": s.Feed.Author.Name,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return &ValidationError{Field: fieldName, Reason: "is required"}
		}
	}

	tag, err := language.Parse(cmp.Or(s.Feed.Language, "en"))
	if err != nil {
		return &ValidationError{Field: "feed language", Reason: fmt.Sprintf("is not a BCP 47 tag: %q", s.Feed.Language)}
	}
	s.Feed.Language = tag.String()

	absoluteURLs := map[string]string{
		"feed favicon":             s.Feed.Favicon,
		"feed author link":         s.Feed.Author.Link,
		"csp auth_jwks_url":        s.CSP.AuthJWKSURL,
		"csp analytics_script_url": s.CSP.AnalyticsScriptURL,
		"csp report_uri":           s.CSP.ReportURI,
	}
	for i, host := range s.CSP.AssetHosts {
		absoluteURLs[fmt.Sprintf("csp asset_hosts[%d]", i)] = host
	}

	for fieldName, fieldValue := range absoluteURLs {
		if fieldValue == "" {
			continue
		}
		if !isAbsoluteURL(fieldValue) {
			return &ValidationError{Field: fieldName, Reason: fmt.Sprintf("must be an absolute URL, got %q", fieldValue)}
		}
	}

	for from, to := range s.Redirects {
		if !strings.HasPrefix(from, "/") {
			return &ValidationError{Field: "redirects", Reason: fmt.Sprintf("key %q must be a rooted path", from)}
		}
		if to == "" {
			return &ValidationError{Field: "redirects", Reason: fmt.Sprintf("target for %q is empty", from)}
		}
	}

	return nil
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
