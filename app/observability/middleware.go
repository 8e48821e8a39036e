package observability

import (
	"cmp"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StatusClientClosedRequest is recorded when the client went away before any
// response was written.
const StatusClientClosedRequest = 499

// Middleware attaches a trace-bound child logger to every request and emits
// one access-log record through logger when the handler chain returns.
// A nil propagator disables trace extraction.
func Middleware(logger *slog.Logger, project string, propagator propagation.TextMapPropagator) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		traceID := ""
		if propagator != nil {
			traceID = extractTrace(c.Request, project, propagator)
		}

		ctx := WithLogger(c.Request.Context(), logger.With(TraceKey, traceID))
		c.Request = c.Request.WithContext(ctx)

		defer func() {
			latency := time.Since(start)

			status := c.Writer.Status()
			if !c.Writer.Written() {
				if c.Request.Context().Err() != nil {
					status = StatusClientClosedRequest
				} else {
					// Bodyless responses go out before the record.
					c.Writer.WriteHeaderNow()
				}
			}

			responseSize, _ := strconv.ParseInt(c.Writer.Header().Get("Content-Length"), 10, 64)

			logger.LogAttrs(ctx, slog.LevelInfo, cmp.Or(c.Request.RequestURI, c.Request.URL.RequestURI()),
				slog.Group("httpRequest",
					slog.Int("status", status),
					slog.String("requestUrl", cmp.Or(c.Request.RequestURI, c.Request.URL.RequestURI())),
					slog.String("requestMethod", c.Request.Method),
					slog.String("userAgent", c.Request.UserAgent()),
					slog.Int64("responseSize", responseSize),
					slog.Group("latency",
						slog.Int64("seconds", int64(latency/time.Second)),
						slog.Int64("nanos", int64(latency%time.Second)),
					),
				),
				slog.String("trace", traceID),
			)
		}()

		c.Next()
	}
}

func extractTrace(r *http.Request, project string, propagator propagation.TextMapPropagator) string {
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	sc := trace.SpanContextFromContext(ctx)
	if !sc.TraceID().IsValid() {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", project, sc.TraceID().String())
}
