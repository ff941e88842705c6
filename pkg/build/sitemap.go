package build

import (
	"encoding/xml"

	"github.com/mkessy/stele/pkg/site"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// writeSitemap emits a sitemap covering the home page, the aggregate pages,
// and every post. Entries follow the site's post order, so output is
// deterministic.
func writeSitemap(outPath string, baseURL string, s *site.Site) error {
	urls := []sitemapURL{
		{Loc: joinURL(baseURL, "/")},
		{Loc: joinURL(baseURL, "/posts/")},
		{Loc: joinURL(baseURL, "/tags/")},
	}

	for _, post := range s.Posts {
		u := sitemapURL{Loc: joinURL(baseURL, post.Permalink)}
		if !post.Date.IsZero() {
			u.LastMod = post.Date.Format("2006-01-02")
		}
		urls = append(urls, u)
	}

	return writeXML(outPath, sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	})
}
