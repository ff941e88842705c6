package build

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/mkessy/stele/pkg/site"
)

// feedItemLimit caps how many posts the feed carries; readers only care about
// recent entries.
const feedItemLimit = 20

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description,omitempty"`
	PubDate     string `xml:"pubDate,omitempty"`
}

// writeFeed emits an RSS 2.0 feed of the newest posts. The feed is a pure
// function of the post set: lastBuildDate is the newest post's date, not the
// wall clock, so rebuilding unchanged content yields identical bytes.
func writeFeed(outPath string, cfg Config, s *site.Site) error {
	items := make([]rssItem, 0, feedItemLimit)
	for _, post := range s.Posts {
		if len(items) == feedItemLimit {
			break
		}
		item := rssItem{
			Title:       post.Title,
			Link:        joinURL(cfg.BaseURL, post.Permalink),
			GUID:        joinURL(cfg.BaseURL, post.Permalink),
			Description: post.Description,
		}
		if !post.Date.IsZero() {
			item.PubDate = post.Date.Format(time.RFC1123Z)
		}
		items = append(items, item)
	}

	channel := rssChannel{
		Title:       cfg.Title,
		Link:        joinURL(cfg.BaseURL, "/"),
		Description: cfg.Description,
		Items:       items,
	}
	if len(s.Posts) > 0 && !s.Posts[0].Date.IsZero() {
		channel.LastBuildDate = s.Posts[0].Date.Format(time.RFC1123Z)
	}

	return writeXML(outPath, rssFeed{Version: "2.0", Channel: channel})
}

// joinURL glues a base URL and a root-relative path without doubling slashes.
func joinURL(baseURL, path string) string {
	base := strings.TrimSuffix(baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// writeXML marshals a document with the standard XML header and writes it
// atomically.
func writeXML(outPath string, doc any) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", outPath, err)
	}
	buf.WriteByte('\n')

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", outPath, err)
	}
	if err := atomic.WriteFile(outPath, &buf); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}
