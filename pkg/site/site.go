// Package site assembles loaded posts into the collections the templates
// consume: the date-sorted post list and the derived tag index. Everything in
// this package is a pure transform of its inputs; no function mutates the
// posts it is given.
package site

import (
	"sort"

	"github.com/mkessy/stele/pkg/content"
)

// Site is the full data context handed to page templates.
type Site struct {
	Title       string
	Description string
	BaseURL     string
	Author      string
	Posts       []*content.Post
	Tags        []TagGroup
}

// New builds a Site from the loaded post set. Posts are ordered by publication
// date descending (undated posts sink to the end, keeping their relative
// order), and the tag index is derived from that ordering so group membership
// lists follow the site-wide post order.
func New(title, description, baseURL, author string, posts []*content.Post) *Site {
	sorted := SortByDate(posts)
	return &Site{
		Title:       title,
		Description: description,
		BaseURL:     baseURL,
		Author:      author,
		Posts:       sorted,
		Tags:        TagIndex(sorted),
	}
}

// SortByDate returns a new slice with posts ordered newest first. The sort is
// stable and undated posts keep their input order after all dated ones.
func SortByDate(posts []*content.Post) []*content.Post {
	sorted := make([]*content.Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date.IsZero() {
			return false
		}
		if sorted[j].Date.IsZero() {
			return true
		}
		return sorted[i].Date.After(sorted[j].Date)
	})
	return sorted
}
