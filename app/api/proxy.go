package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/icco/writing/app/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// proxyPrefixes are forwarded to the GraphQL origin for every method.
var proxyPrefixes = []string{"/login", "/logout", "/callback", "/admin", "/graphql"}

// newOriginProxy streams requests to origin with the Host header rewritten
// to the origin's host and the path preserved.
func newOriginProxy(origin string) (gin.HandlerFunc, error) {
	target, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid GraphQL origin %q: %w", origin, err)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
		},
		Transport:     otelhttp.NewTransport(http.DefaultTransport),
		FlushInterval: -1,
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Server")
			resp.Header.Del("X-Powered-By")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger := observability.Logger(r.Context())
			if errors.Is(err, context.Canceled) {
				logger.Warn("Proxy request aborted by client", "path", r.URL.Path)
				return
			}
			logger.Error("Origin unavailable", "origin", target.String(), "method", r.Method, "path", r.URL.Path, "error", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}, nil
}
