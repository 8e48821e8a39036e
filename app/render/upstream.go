package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/icco/writing/app/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Renderer turns a page and its query into a complete HTTP response.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, page string, query url.Values)
}

// Upstream renders pages by reverse-proxying them to a rendering server.
type Upstream struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
	client *http.Client
}

var _ Renderer = (*Upstream)(nil)

func NewUpstream(origin string) (*Upstream, error) {
	target, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid renderer origin %q: %w", origin, err)
	}

	transport := otelhttp.NewTransport(&http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	})

	u := &Upstream{
		target: target,
		client: &http.Client{Transport: transport, Timeout: 5 * time.Second},
	}

	u.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = pr.In.Host
			pr.SetXForwarded()
			// Compression is negotiated once, at the edge.
			pr.Out.Header.Del("Accept-Encoding")
		},
		Transport:     transport,
		FlushInterval: -1,
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Server")
			resp.Header.Del("X-Powered-By")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger := observability.Logger(r.Context())
			if errors.Is(err, context.Canceled) {
				logger.Warn("Render aborted by client", "path", r.URL.Path)
				return
			}
			logger.Error("Renderer unavailable", "renderer", target.String(), "path", r.URL.Path, "error", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	return u, nil
}

// Render forwards r to the rendering server with its path replaced by page
// and its query replaced by query. The renderer's response is passed through unchanged.
func (u *Upstream) Render(w http.ResponseWriter, r *http.Request, page string, query url.Values) {
	out := r.Clone(r.Context())
	out.URL.Path = page
	out.URL.RawPath = ""
	out.URL.RawQuery = query.Encode()
	out.RequestURI = ""

	u.proxy.ServeHTTP(w, out)
}

// Prepare blocks until the rendering server answers without a 5xx or ctx is done.
func (u *Upstream) Prepare(ctx context.Context) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.target.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := u.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("renderer returned status %d", resp.StatusCode)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("renderer %s not ready: %w", u.target.String(), err)
	}
	return nil
}
