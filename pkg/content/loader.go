package content

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Loader reads every markdown file under a content directory and produces the
// post set for a build. Files are visited in lexical order, so the returned
// slice is deterministic for a fixed file set.
type Loader struct {
	logger        *slog.Logger
	renderer      *Renderer
	dir           string
	includeDrafts bool
}

// NewLoader returns a loader rooted at dir. Drafts are skipped unless
// includeDrafts is set.
func NewLoader(logger *slog.Logger, dir string, includeDrafts bool) *Loader {
	return &Loader{
		logger:        logger,
		renderer:      NewRenderer(),
		dir:           dir,
		includeDrafts: includeDrafts,
	}
}

// Load walks the content directory and returns all posts with rendered
// bodies. It fails on unreadable files, malformed front-matter, and duplicate
// permalinks; a missing content directory is an error too, since a site
// without content is a misconfiguration rather than an empty build.
func (l *Loader) Load() ([]*Post, error) {
	if _, err := os.Stat(l.dir); err != nil {
		return nil, fmt.Errorf("content directory %s: %w", l.dir, err)
	}

	var posts []*Post
	byPermalink := make(map[string]string)

	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		relPath, err := filepath.Rel(l.dir, path)
		if err != nil {
			return err
		}

		post, err := ParsePost(path, relPath, src)
		if err != nil {
			return err
		}

		if post.Draft && !l.includeDrafts {
			l.logger.Debug("Skipping draft", "path", path)
			return nil
		}

		if prev, ok := byPermalink[post.Permalink]; ok {
			return fmt.Errorf("duplicate permalink %q in %s and %s", post.Permalink, prev, path)
		}
		byPermalink[post.Permalink] = path

		html, err := l.renderer.Render(post.Body)
		if err != nil {
			return fmt.Errorf("post %s: %w", path, err)
		}
		post.BodyHTML = template.HTML(html)

		posts = append(posts, post)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loaded content", "dir", l.dir, "posts", len(posts))
	return posts, nil
}
