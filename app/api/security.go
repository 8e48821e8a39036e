package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/icco/writing/app/site"
)

var hardeningHeaders = [][2]string{
	{"X-DNS-Prefetch-Control", "off"},
	{"X-Frame-Options", "SAMEORIGIN"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-XSS-Protection", "0"},
	{"Strict-Transport-Security", "max-age=15552000; includeSubDomains"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Expect-CT", "max-age=123"},
}

// securityMiddleware sets the hardening headers and CSP on every response and,
// when redirectHTTPS is set, sends plaintext requests from the fronting proxy to https.
func securityMiddleware(graphqlOrigin string, csp site.CSPSettings, redirectHTTPS bool) gin.HandlerFunc {
	policy := contentSecurityPolicy(graphqlOrigin, csp)
	reportTo := reportToHeader(csp.ReportURI)

	return func(c *gin.Context) {
		header := c.Writer.Header()
		for _, h := range hardeningHeaders {
			header.Set(h[0], h[1])
		}
		header.Set("Content-Security-Policy", policy)
		if reportTo != "" {
			header.Set("Report-To", reportTo)
		}

		writer := &identityStrippingWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		if redirectHTTPS && c.GetHeader("X-Forwarded-Proto") == "http" {
			c.Redirect(http.StatusMovedPermanently, "https://"+c.Request.Host+c.Request.URL.RequestURI())
			c.Abort()
			return
		}

		c.Next()

		// Bodyless responses are flushed by gin after the chain returns.
		if !writer.Written() {
			writer.strip()
		}
	}
}

func contentSecurityPolicy(graphqlOrigin string, csp site.CSPSettings) string {
	directives := []string{
		directive("default-src", "'self'", graphqlOrigin, csp.AuthJWKSURL),
		directive("style-src", "'self'", "'unsafe-inline'", "https://fonts.googleapis.com/"),
		directive("font-src", "https://fonts.gstatic.com"),
		directive("img-src", append([]string{"'self'", "blob:", "data:"}, csp.AssetHosts...)...),
		directive("script-src", "'self'", "'unsafe-inline'", "'unsafe-eval'", csp.AnalyticsScriptURL),
		directive("object-src", "'none'"),
		"upgrade-insecure-requests",
	}

	if csp.ReportURI != "" {
		directives = append(directives, directive("report-uri", csp.ReportURI), directive("report-to", "default"))
	}

	return strings.Join(directives, "; ")
}

func directive(name string, sources ...string) string {
	parts := []string{name}
	for _, source := range sources {
		if source != "" {
			parts = append(parts, source)
		}
	}
	return strings.Join(parts, " ")
}

func reportToHeader(reportURI string) string {
	if reportURI == "" {
		return ""
	}

	group := map[string]any{
		"group":     "default",
		"max_age":   10886400,
		"endpoints": []map[string]string{{"url": reportURI}},
	}

	data, err := json.Marshal(group)
	if err != nil {
		return ""
	}
	return string(data)
}

// identityStrippingWriter removes Server and X-Powered-By before headers are sent.
type identityStrippingWriter struct {
	gin.ResponseWriter
}

func (w *identityStrippingWriter) strip() {
	header := w.ResponseWriter.Header()
	header.Del("Server")
	header.Del("X-Powered-By")
}

func (w *identityStrippingWriter) WriteHeader(code int) {
	w.strip()
	w.ResponseWriter.WriteHeader(code)
}

func (w *identityStrippingWriter) WriteHeaderNow() {
	w.strip()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *identityStrippingWriter) Write(data []byte) (int, error) {
	w.strip()
	return w.ResponseWriter.Write(data)
}

func (w *identityStrippingWriter) WriteString(s string) (int, error) {
	w.strip()
	return w.ResponseWriter.WriteString(s)
}

func (w *identityStrippingWriter) Flush() {
	w.strip()
	w.ResponseWriter.Flush()
}
