package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// RSS serialises the feed as RSS 2.0. Dates use the RFC 822 form with a GMT zone.
func (f *Feed) RSS() string {
	var buf bytes.Buffer

	buf.WriteString(xmlHeader)
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	writeElement(&buf, "title", f.Title, 4)
	writeElement(&buf, "link", f.Link, 4)
	writeElement(&buf, "description", f.Description, 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(f.Link+"feed.rss")))
	writeElement(&buf, "lastBuildDate", rfc822(f.Updated), 4)
	writeElement(&buf, "docs", "https://validator.w3.org/feed/docs/rss2.html", 4)
	writeElement(&buf, "generator", f.Generator, 4)
	writeElement(&buf, "language", f.Language, 4)

	if f.Favicon != "" {
		buf.WriteString("    <image>\n")
		writeElement(&buf, "url", f.Favicon, 6)
		writeElement(&buf, "title", f.Title, 6)
		writeElement(&buf, "link", f.Link, 6)
		buf.WriteString("    </image>\n")
	}

	for _, item := range f.Items {
		buf.WriteString("    <item>\n")
		writeElement(&buf, "title", item.Title, 6)
		writeElement(&buf, "link", item.Link, 6)
		if item.Link != "" {
			buf.WriteString("      <guid isPermaLink=\"true\">")
			xml.EscapeText(&buf, []byte(item.Link))
			buf.WriteString("</guid>\n")
		}
		if !item.Date.IsZero() {
			writeElement(&buf, "pubDate", rfc822(item.Date), 6)
		}
		writeElement(&buf, "description", item.Content, 6)
		writeElement(&buf, "author", rssAuthor(item.Author), 6)
		buf.WriteString("    </item>\n")
	}

	buf.WriteString("  </channel>\n</rss>\n")

	return buf.String()
}

// Atom serialises the feed as Atom 1.0. Dates use RFC 3339.
func (f *Feed) Atom() string {
	var buf bytes.Buffer

	buf.WriteString(xmlHeader)
	buf.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom"`)
	if f.Language != "" {
		buf.WriteString(fmt.Sprintf(` xml:lang="%s"`, html.EscapeString(f.Language)))
	}
	buf.WriteString(">\n")

	writeElement(&buf, "id", f.Link, 2)
	writeElement(&buf, "title", f.Title, 2)
	writeElement(&buf, "subtitle", f.Description, 2)
	writeElement(&buf, "updated", f.Updated.UTC().Format(time.RFC3339), 2)
	writeElement(&buf, "generator", f.Generator, 2)
	writeElement(&buf, "icon", f.Favicon, 2)
	writeLink(&buf, "alternate", f.Link, 2)
	writeLink(&buf, "self", f.Link+"feed.atom", 2)
	writeAtomAuthor(&buf, f.Author, 2)

	for _, item := range f.Items {
		updated := item.Date
		if updated.IsZero() {
			updated = f.Updated
		}

		buf.WriteString("  <entry>\n")
		writeElement(&buf, "title", item.Title, 4)
		writeElement(&buf, "id", item.Link, 4)
		writeLink(&buf, "alternate", item.Link, 4)
		writeElement(&buf, "updated", updated.UTC().Format(time.RFC3339), 4)
		if item.Content != "" {
			buf.WriteString(`    <content type="html">`)
			xml.EscapeText(&buf, []byte(item.Content))
			buf.WriteString("</content>\n")
		}
		writeAtomAuthor(&buf, item.Author, 4)
		buf.WriteString("  </entry>\n")
	}

	buf.WriteString("</feed>\n")

	return buf.String()
}

// XML serialises the sitemap as a sitemaps.org urlset.
func (s *Sitemap) XML() string {
	var buf bytes.Buffer

	buf.WriteString(xmlHeader)
	buf.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	buf.WriteString("\n")

	for _, loc := range s.URLs {
		buf.WriteString("  <url>\n")
		writeElement(&buf, "loc", loc, 4)
		buf.WriteString("  </url>\n")
	}

	buf.WriteString("</urlset>\n")

	return buf.String()
}

func writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func writeLink(buf *bytes.Buffer, rel, href string, indent int) {
	if href == "" {
		return
	}

	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString(fmt.Sprintf("<link rel=\"%s\" href=\"%s\" />\n", rel, html.EscapeString(href)))
}

func writeAtomAuthor(buf *bytes.Buffer, author Author, indent int) {
	if author.Name == "" {
		return
	}

	pad := strings.Repeat(" ", indent)
	buf.WriteString(pad + "<author>\n")
	writeElement(buf, "name", author.Name, indent+2)
	writeElement(buf, "email", author.Email, indent+2)
	writeElement(buf, "uri", author.Link, indent+2)
	buf.WriteString(pad + "</author>\n")
}

// rssAuthor formats an author as "email (name)", falling back to whichever is set.
func rssAuthor(author Author) string {
	switch {
	case author.Email != "" && author.Name != "":
		return fmt.Sprintf("%s (%s)", author.Email, author.Name)
	case author.Email != "":
		return author.Email
	default:
		return author.Name
	}
}

func rfc822(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
