package content

import (
	"bytes"
	"fmt"
	"html/template"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/goliatone/go-slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Post is a single blog entry: front-matter metadata plus the markdown body.
// Posts are immutable once loaded; generation treats the post set as a fixed
// input and never writes back to it.
type Post struct {
	Title       string
	Description string
	Date        time.Time
	Permalink   string
	Layout      string
	Comments    bool
	Tags        []string
	Draft       bool
	SourcePath  string
	Body        []byte
	BodyHTML    template.HTML
	Extra       map[string]any
}

// URL returns the post's output location relative to the site root. It is the
// permalink with a trailing slash, suitable for joining with a base URL.
func (p *Post) URL() string {
	return p.Permalink
}

// frontMatter is the recognized metadata block at the top of a post file.
// Unknown keys are preserved in Extra so templates can still reach them.
type frontMatter struct {
	Layout      string         `yaml:"layout"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Permalink   string         `yaml:"permalink"`
	Comments    bool           `yaml:"comments"`
	Tags        []string       `yaml:"tags"`
	Date        string         `yaml:"date"`
	Draft       bool           `yaml:"draft"`
	Extra       map[string]any `yaml:",inline"`
}

// dateLayouts are tried in order when parsing a front-matter date.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// filenameDate matches a Jekyll-style date prefix on a post filename.
var filenameDate = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-`)

// ParsePost builds a Post from raw file bytes. relPath is the file's path
// relative to the content root and drives the derived title and permalink when
// front-matter omits them. The body is left as raw markdown; rendering is the
// loader's job.
func ParsePost(sourcePath, relPath string, src []byte) (*Post, error) {
	var fm frontMatter
	body, err := frontmatter.Parse(bytes.NewReader(src), &fm)
	if err != nil {
		return nil, fmt.Errorf("parse front-matter of %s: %w", sourcePath, err)
	}

	p := &Post{
		Title:       fm.Title,
		Description: fm.Description,
		Layout:      fm.Layout,
		Comments:    fm.Comments,
		Tags:        normalizeTags(fm.Tags),
		Draft:       fm.Draft,
		SourcePath:  sourcePath,
		Body:        body,
		Extra:       fm.Extra,
	}

	if fm.Date != "" {
		p.Date, err = parseDate(fm.Date)
		if err != nil {
			return nil, fmt.Errorf("post %s: %w", sourcePath, err)
		}
	} else if m := filenameDate.FindStringSubmatch(filepath.Base(relPath)); m != nil {
		// The filename prefix is already validated by the regexp.
		p.Date, _ = time.Parse("2006-01-02", m[1])
	}

	if p.Title == "" {
		p.Title = titleFromPath(relPath)
	}

	if fm.Permalink != "" {
		p.Permalink = normalizePermalink(fm.Permalink)
	} else {
		p.Permalink = permalinkFromPath(relPath)
	}

	return p, nil
}

// parseDate accepts the common layouts found in blog front-matter.
func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}

// normalizeTags applies set semantics: duplicates collapse to the first
// occurrence, surrounding whitespace is trimmed, and empty tags are dropped.
// Input order is otherwise preserved.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// titleFromPath derives a display title from a filename: the date prefix and
// extension are stripped and the remainder is title-cased.
func titleFromPath(relPath string) string {
	base := filepath.Base(relPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = filenameDate.ReplaceAllString(base, "")
	base = strings.ReplaceAll(base, "-", " ")
	base = strings.ReplaceAll(base, "_", " ")
	return cases.Title(language.English).String(base)
}

// permalinkFromPath derives a clean URL path from the source file location:
// each directory segment and the slugified filename, wrapped in slashes.
func permalinkFromPath(relPath string) string {
	rel := strings.TrimSuffix(filepath.ToSlash(relPath), path.Ext(relPath))
	segments := strings.Split(rel, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || seg == "." {
			continue
		}
		out = append(out, slugify(seg))
	}
	return "/" + strings.Join(out, "/") + "/"
}

// normalizePermalink ensures a front-matter permalink has the canonical
// leading and trailing slash used everywhere else.
func normalizePermalink(permalink string) string {
	permalink = path.Clean("/" + strings.Trim(permalink, "/"))
	if permalink == "/" {
		return "/"
	}
	return permalink + "/"
}

// slugify normalizes one path segment. A date prefix is kept intact so
// 2019-04-30-some-post becomes 2019-04-30-some-post, not a mangled slug.
func slugify(segment string) string {
	if s, err := slug.Normalize(segment); err == nil && s != "" {
		return s
	}
	// Fallback for segments the normalizer rejects outright.
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(segment), " ", "-"))
}
