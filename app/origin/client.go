package origin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hasura/go-graphql-client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultTimeout is the total deadline for a single origin call.
	DefaultTimeout = 10 * time.Second

	RecentPostsLimit  = 20
	SitemapPostsLimit = 1000
)

var recentPostsQuery = fmt.Sprintf(`query recentPosts {
  posts(limit: %d, offset: 0) {
    id
    title
    datetime
    summary
  }
}`, RecentPostsLimit)

var postIDsQuery = fmt.Sprintf(`query mostPosts {
  posts(limit: %d, offset: 0) {
    id
  }
}`, SitemapPostsLimit)

var originRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "writing_origin_requests_total",
		Help: "GraphQL requests issued to the origin, by operation and result.",
	},
	[]string{"operation", "result"},
)

// Client issues GraphQL queries against the origin's /graphql endpoint.
type Client struct {
	timeout time.Duration
	graphql *graphql.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(originURL string, timeout time.Duration) *Client {
	endpoint := strings.TrimSuffix(originURL, "/") + "/graphql"

	httpClient := &http.Client{
		Transport: &statusRecorder{next: otelhttp.NewTransport(http.DefaultTransport)},
	}
	gql := graphql.NewClient(endpoint, httpClient)

	return &Client{
		timeout: timeout,
		graphql: gql,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "graphql-origin",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// A client that went away is not an origin failure.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// RecentPosts returns the newest posts in origin order.
func (c *Client) RecentPosts(ctx context.Context) ([]Post, error) {
	var data struct {
		Posts []Post `json:"posts"`
	}
	if err := c.Execute(ctx, "recentPosts", recentPostsQuery, nil, &data); err != nil {
		return nil, err
	}
	return data.Posts, nil
}

// PostIDs returns up to SitemapPostsLimit posts with only the ID populated.
func (c *Client) PostIDs(ctx context.Context) ([]Post, error) {
	var data struct {
		Posts []Post `json:"posts"`
	}
	if err := c.Execute(ctx, "mostPosts", postIDsQuery, nil, &data); err != nil {
		return nil, err
	}
	return data.Posts, nil
}

// Execute runs a single GraphQL operation and decodes its data into out.
// Every failure is an *Error.
func (c *Client) Execute(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, operation, query, variables, out)
	})

	switch {
	case err == nil:
		originRequestsTotal.WithLabelValues(operation, "ok").Inc()
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		originRequestsTotal.WithLabelValues(operation, "circuit_open").Inc()
		return &Error{Operation: operation, Err: ErrCircuitOpen}
	case errors.Is(err, context.Canceled):
		originRequestsTotal.WithLabelValues(operation, "canceled").Inc()
	default:
		originRequestsTotal.WithLabelValues(operation, "error").Inc()
	}

	var originErr *Error
	if errors.As(err, &originErr) {
		return originErr
	}
	return &Error{Operation: operation, Err: err}
}

func (c *Client) do(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var status int
	ctx = context.WithValue(ctx, statusKey{}, &status)

	data, err := c.graphql.ExecRaw(ctx, query, variables, graphql.OperationName(operation))

	if status != 0 && status != http.StatusOK {
		return &Error{Operation: operation, StatusCode: status, Err: errors.New(http.StatusText(status))}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &Error{Operation: operation, Err: fmt.Errorf("%w: %v", ctxErr, err)}
		}
		return &Error{Operation: operation, Err: err}
	}

	if len(data) == 0 || string(data) == "null" {
		return &Error{Operation: operation, Err: errors.New("response has no data")}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Operation: operation, Err: fmt.Errorf("failed to decode data: %w", err)}
	}

	return nil
}

type statusKey struct{}

// statusRecorder stores the origin's HTTP status in the request context so a
// non-200 answer is reported with its code whatever the body holds.
type statusRecorder struct {
	next http.RoundTripper
}

func (t *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if status, ok := req.Context().Value(statusKey{}).(*int); ok {
		*status = resp.StatusCode
	}
	return resp, nil
}
