package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/icco/writing/app/render"
	"github.com/icco/writing/app/site"
)

func NewHandler(builder FeedBuilder, renderer render.Renderer, settings *site.Settings, staticDir string) *Handler {
	return &Handler{
		builder:   builder,
		renderer:  renderer,
		site:      settings,
		staticDir: staticDir,
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Post(c *gin.Context) {
	h.renderer.Render(c.Writer, c.Request, "/post", url.Values{"id": {c.Param("id")}})
}

func (h *Handler) Tag(c *gin.Context) {
	h.renderer.Render(c.Writer, c.Request, "/tag", url.Values{"id": {c.Param("id")}})
}

func (h *Handler) TagsRedirect(c *gin.Context) {
	c.Redirect(http.StatusFound, "/tag/"+url.PathEscape(c.Param("id")))
}

func (h *Handler) FeedRSS(c *gin.Context) {
	feed := h.builder.Feed(c.Request.Context())
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(feed.RSS()))
}

func (h *Handler) FeedAtom(c *gin.Context) {
	feed := h.builder.Feed(c.Request.Context())
	c.Data(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(feed.Atom()))
}

func (h *Handler) Sitemap(c *gin.Context) {
	sitemap := h.builder.Sitemap(c.Request.Context())
	c.Header("Cache-Control", cacheControl(sitemap.CacheTime))
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(sitemap.XML()))
}

// Static serves one rooted file from the static directory.
func (h *Handler) Static(name string) gin.HandlerFunc {
	path := filepath.Join(h.staticDir, filepath.FromSlash(name))

	return func(c *gin.Context) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(path)
	}
}

// Fallback applies the configured redirects and hands everything else to the renderer.
func (h *Handler) Fallback(c *gin.Context) {
	if location, ok := h.site.Redirect(c.Request.URL.Path); ok {
		c.Redirect(http.StatusFound, location)
		return
	}

	h.renderer.Render(c.Writer, c.Request, c.Request.URL.Path, c.Request.URL.Query())
}

func cacheControl(maxAge time.Duration) string {
	return fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
}
