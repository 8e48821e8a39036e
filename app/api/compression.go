package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
)

// compressibleTypes are the text-like responses worth gzipping.
var compressibleTypes = []string{
	"text/html",
	"text/plain",
	"text/css",
	"text/javascript",
	"text/xml",
	"application/javascript",
	"application/json",
	"application/xml",
	"application/rss+xml",
	"application/atom+xml",
	"application/manifest+json",
	"image/svg+xml",
}

// compressionMiddleware gzips text-like responses for clients that accept it.
// Proxied paths pass through untouched, and empty or short bodies are never
// labelled as gzip.
func compressionMiddleware(excludedPrefixes []string) (gin.HandlerFunc, error) {
	wrap, err := gzhttp.NewWrapper(gzhttp.ContentTypes(compressibleTypes))
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		for _, prefix := range excludedPrefixes {
			if c.Request.URL.Path == prefix || strings.HasPrefix(c.Request.URL.Path, prefix+"/") {
				c.Next()
				return
			}
		}

		inner := c.Writer
		defer func() { c.Writer = inner }()

		wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cw := &compressWriter{ResponseWriter: inner, out: w}
			c.Writer = cw
			c.Next()
			if !cw.written {
				cw.passStatus()
			}
		})).ServeHTTP(inner, c.Request)
	}, nil
}

// compressWriter routes the body through the gzip writer while keeping gin's
// status bookkeeping. The last status set before the body wins, as with gin.
type compressWriter struct {
	gin.ResponseWriter
	out     http.ResponseWriter
	status  int
	written bool
}

// WriteHeader ignores non-positive codes, which gin uses for "status already set".
func (w *compressWriter) WriteHeader(code int) {
	if code <= 0 || w.written {
		return
	}
	w.status = code
}

func (w *compressWriter) WriteHeaderNow() {
	if !w.written {
		w.written = true
		w.passStatus()
	}
}

// passStatus hands a pending status to the gzip writer, which holds it until
// it knows whether the body gets compressed.
func (w *compressWriter) passStatus() {
	if w.status != 0 {
		w.out.WriteHeader(w.status)
	}
}

func (w *compressWriter) Write(data []byte) (int, error) {
	w.WriteHeaderNow()
	return w.out.Write(data)
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *compressWriter) Status() int {
	if w.status != 0 {
		return w.status
	}
	return w.ResponseWriter.Status()
}

func (w *compressWriter) Written() bool {
	return w.written || w.ResponseWriter.Written()
}

func (w *compressWriter) Flush() {
	w.WriteHeaderNow()
	if f, ok := w.out.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *compressWriter) Unwrap() http.ResponseWriter {
	return w.out
}
