package feed

import (
	"context"
	"time"

	"github.com/icco/writing/app/origin"
)

// PostSource is the slice of the origin client the builders need.
type PostSource interface {
	RecentPosts(ctx context.Context) ([]origin.Post, error)
	PostIDs(ctx context.Context) ([]origin.Post, error)
}

var _ PostSource = (*origin.Client)(nil)

type Author struct {
	Name  string
	Email string
	Link  string
}

type Feed struct {
	Title       string
	Description string
	Link        string
	Favicon     string
	Language    string
	Generator   string
	Author      Author
	Updated     time.Time
	Items       []Item
}

type Item struct {
	Title   string
	Link    string
	Date    time.Time // zero when the origin sent an unparseable datetime
	Content string    // HTML
	Author  Author
}

type Sitemap struct {
	URLs      []string
	CacheTime time.Duration
}
