package site

import "fmt"

// Settings are the site-wide values that are not part of the process configuration.
type Settings struct {
	Feed      FeedSettings      `yaml:"feed"`
	CSP       CSPSettings       `yaml:"csp"`
	Redirects map[string]string `yaml:"redirects"`
}

type FeedSettings struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Favicon     string `yaml:"favicon"`
	Language    string `yaml:"language"`
	Author      Author `yaml:"author"`
}

type Author struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Link  string `yaml:"link"`
}

// CSPSettings holds the hosts interpolated into the Content-Security-Policy header.
type CSPSettings struct {
	AuthJWKSURL        string   `yaml:"auth_jwks_url"`
	AssetHosts         []string `yaml:"asset_hosts"`
	AnalyticsScriptURL string   `yaml:"analytics_script_url"`
	ReportURI          string   `yaml:"report_uri"`
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Redirect returns the configured target for an exact path match.
func (s *Settings) Redirect(path string) (string, bool) {
	location, ok := s.Redirects[path]
	return location, ok
}
