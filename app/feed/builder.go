package feed

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/icco/writing/app/cfg"
	"github.com/icco/writing/app/observability"
	"github.com/icco/writing/app/site"
	"github.com/yuin/goldmark"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// SitemapCacheTime is advertised to crawlers; nothing in the server caches for this long.
const SitemapCacheTime = 6000 * time.Second

// Builder turns origin posts into feeds and sitemaps. Origin failures are
// logged and produce empty documents, never errors.
type Builder struct {
	source    PostSource
	settings  site.FeedSettings
	publicURL string
	markdown  goldmark.Markdown
}

func NewBuilder(source PostSource, settings site.FeedSettings, publicURL string) *Builder {
	return &Builder{
		source:    source,
		settings:  settings,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		markdown: goldmark.New(
			goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
		),
	}
}

func (b *Builder) Feed(ctx context.Context) *Feed {
	logger := observability.Logger(ctx)

	author := Author{
		Name:  b.settings.Author.Name,
		Email: b.settings.Author.Email,
		Link:  b.settings.Author.Link,
	}

	feed := &Feed{
		Title:       b.settings.Title,
		Description: b.settings.Description,
		Link:        b.publicURL + "/",
		Favicon:     b.settings.Favicon,
		Language:    b.settings.Language,
		Generator:   fmt.Sprintf("writing/%s", cfg.GetVersion()),
		Author:      author,
	}

	posts, err := b.source.RecentPosts(ctx)
	if err != nil {
		logger.Error("Failed to fetch recent posts", "error", err)
		posts = nil
	}

	feed.Items = make([]Item, 0, len(posts))
	for _, post := range posts {
		date, err := time.Parse(time.RFC3339, post.Datetime)
		if err != nil {
			logger.Warn("Invalid post datetime", "post", post.ID, "datetime", post.Datetime, "error", err)
			date = time.Time{}
		}

		feed.Items = append(feed.Items, Item{
			Title:   post.Title,
			Link:    b.postURL(post.ID),
			Date:    date,
			Content: b.renderMarkdown(post.Summary),
			Author:  author,
		})
	}

	feed.Updated = time.Now().UTC()
	for _, item := range feed.Items {
		if !item.Date.IsZero() {
			feed.Updated = item.Date
			break
		}
	}

	return feed
}

func (b *Builder) Sitemap(ctx context.Context) *Sitemap {
	sitemap := &Sitemap{
		URLs:      []string{b.publicURL + "/"},
		CacheTime: SitemapCacheTime,
	}

	posts, err := b.source.PostIDs(ctx)
	if err != nil {
		observability.Logger(ctx).Error("Failed to fetch post ids", "error", err)
		return sitemap
	}

	for _, post := range posts {
		if post.ID == "" {
			continue
		}
		sitemap.URLs = append(sitemap.URLs, b.postURL(post.ID))
	}

	return sitemap
}

func (b *Builder) postURL(id string) string {
	return b.publicURL + "/post/" + url.PathEscape(id)
}

func (b *Builder) renderMarkdown(source string) string {
	if source == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := b.markdown.Convert([]byte(source), &buf); err != nil {
		return html.EscapeString(source)
	}
	return strings.TrimSpace(buf.String())
}
