/*
Package build runs the batch generation pipeline: load posts, assemble the
site, and write every page, the feed, and the sitemap into the output
directory. Generation is a pure function of the content, layouts, and
configuration: rebuilding an unchanged site produces byte-identical output.

When given a cache store, the builder skips post pages and static copies
whose source files are unchanged since the last run; aggregate pages are
always re-rendered because they depend on the whole post set.
*/
package build

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/mkessy/stele/pkg/cache"
	"github.com/mkessy/stele/pkg/content"
	"github.com/mkessy/stele/pkg/render"
	"github.com/mkessy/stele/pkg/site"
)

// Conventional layout names. A post's front-matter layout overrides
// defaultPostLayout; the aggregate pages are skipped with a warning when
// their layout is absent.
const (
	defaultPostLayout = "post.tmpl.html"
	homeLayout        = "home.tmpl.html"
	listLayout        = "list.tmpl.html"
	tagsLayout        = "tags.tmpl.html"
)

// Config holds everything the builder needs to know about a site.
type Config struct {
	Title         string
	Description   string
	Author        string
	BaseURL       string
	ContentDir    string
	LayoutDir     string
	StaticDir     string
	OutputDir     string
	PostsPerPage  int
	IncludeDrafts bool
}

// Builder generates a site into the output directory. A nil store disables
// the incremental path and every build starts from a clean output directory.
type Builder struct {
	logger *slog.Logger
	cfg    Config
	tm     *render.Manager
	store  *cache.Store
}

// PageData is the data context handed to every page layout.
type PageData struct {
	Site *site.Site
	Post *content.Post
	Tags []site.TagGroup
}

// NewBuilder creates a Builder. store may be nil to force full rebuilds.
func NewBuilder(logger *slog.Logger, cfg Config, tm *render.Manager, store *cache.Store) *Builder {
	return &Builder{
		logger: logger,
		cfg:    cfg,
		tm:     tm,
		store:  store,
	}
}

// Build runs the whole pipeline once.
func (b *Builder) Build(ctx context.Context) error {
	if err := b.tm.Refresh(); err != nil {
		return fmt.Errorf("refresh templates: %w", err)
	}

	loader := content.NewLoader(b.logger, b.cfg.ContentDir, b.cfg.IncludeDrafts)
	posts, err := loader.Load()
	if err != nil {
		return err
	}

	s := site.New(b.cfg.Title, b.cfg.Description, b.cfg.BaseURL, b.cfg.Author, posts)

	if err = b.prepareOutputDir(ctx); err != nil {
		return err
	}

	staticSources, err := b.copyStatic(ctx)
	if err != nil {
		return err
	}

	rendered, skipped, err := b.buildPosts(ctx, s)
	if err != nil {
		return err
	}

	if err = b.pruneStale(ctx, posts, staticSources); err != nil {
		return err
	}

	if err = b.buildAggregates(s); err != nil {
		return err
	}

	if err = writeFeed(b.outPath("feed.xml"), b.cfg, s); err != nil {
		return err
	}
	if err = writeSitemap(b.outPath("sitemap.xml"), b.cfg.BaseURL, s); err != nil {
		return err
	}

	b.logger.Info("Build complete",
		"posts", len(s.Posts),
		"tags", len(s.Tags),
		"rendered", rendered,
		"skipped", skipped,
		"output", b.cfg.OutputDir)
	return nil
}

// prepareOutputDir creates the output directory. Without a cache the previous
// output is removed first so stale pages cannot survive; with a cache,
// pruning handles removals and existing pages are kept for skipping.
func (b *Builder) prepareOutputDir(ctx context.Context) error {
	if b.store == nil {
		if err := os.RemoveAll(b.cfg.OutputDir); err != nil {
			return fmt.Errorf("clean output directory %s: %w", b.cfg.OutputDir, err)
		}
	} else {
		fingerprint, err := b.fingerprint()
		if err != nil {
			return err
		}
		stored, err := b.store.Generation(ctx)
		if err != nil {
			return fmt.Errorf("read cache generation: %w", err)
		}
		if stored != fingerprint {
			// Layouts or configuration changed; every page is stale.
			if err = b.store.Reset(ctx); err != nil {
				return err
			}
			if err = b.store.SetGeneration(ctx, fingerprint); err != nil {
				return fmt.Errorf("store cache generation: %w", err)
			}
		}
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", b.cfg.OutputDir, err)
	}
	return nil
}

// buildPosts renders each post page, consulting the cache when present.
// Returns how many pages were rendered and how many were skipped unchanged.
func (b *Builder) buildPosts(ctx context.Context, s *site.Site) (rendered, skipped int, err error) {
	for _, post := range s.Posts {
		sum, err := checksumFile(post.SourcePath)
		if err != nil {
			return rendered, skipped, err
		}

		relOut := filepath.Join(permalinkPath(post.Permalink), "index.html")

		if b.store != nil {
			entry, ok, err := b.store.Get(ctx, post.SourcePath)
			if err != nil {
				return rendered, skipped, fmt.Errorf("cache lookup for %s: %w", post.SourcePath, err)
			}
			if ok && entry.Checksum == sum && entry.OutputPath == relOut && fileExists(b.outPath(relOut)) {
				b.logger.Debug("Skipping unchanged post", "path", post.SourcePath)
				skipped++
				continue
			}
		}

		layout := normalizeLayout(post.Layout, defaultPostLayout)
		if !b.tm.Has(layout) {
			b.logger.Warn("Layout not found for post, using default",
				"layout", layout, "post", post.SourcePath)
			layout = defaultPostLayout
			if !b.tm.Has(layout) {
				return rendered, skipped, fmt.Errorf("layout %s not found for post %s", layout, post.SourcePath)
			}
		}

		data := PageData{Site: s, Post: post, Tags: s.Tags}
		if err = b.writePage(relOut, layout, data); err != nil {
			return rendered, skipped, err
		}
		rendered++

		if b.store != nil {
			err = b.store.Put(ctx, cache.Entry{
				SourcePath: post.SourcePath,
				Checksum:   sum,
				OutputPath: relOut,
			})
			if err != nil {
				return rendered, skipped, fmt.Errorf("cache store for %s: %w", post.SourcePath, err)
			}
		}
	}
	return rendered, skipped, nil
}

// pruneStale removes cache entries and their outputs for source files, post
// and static alike, that this build no longer produced.
func (b *Builder) pruneStale(ctx context.Context, posts []*content.Post, staticSources []string) error {
	if b.store == nil {
		return nil
	}

	current := make(map[string]struct{}, len(posts)+len(staticSources))
	for _, p := range posts {
		current[p.SourcePath] = struct{}{}
	}
	for _, p := range staticSources {
		current[p] = struct{}{}
	}

	entries, err := b.store.All(ctx)
	if err != nil {
		return fmt.Errorf("list cache entries: %w", err)
	}

	for sourcePath, entry := range entries {
		if _, ok := current[sourcePath]; ok {
			continue
		}
		b.logger.Info("Pruning removed output", "source", sourcePath, "output", entry.OutputPath)
		if err = os.Remove(b.outPath(entry.OutputPath)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale output %s: %w", entry.OutputPath, err)
		}
		if err = b.store.Delete(ctx, sourcePath); err != nil {
			return fmt.Errorf("delete cache entry %s: %w", sourcePath, err)
		}
	}
	return nil
}

// buildAggregates renders the pages that depend on the entire post set: the
// home page, the post listing, and the tag index.
func (b *Builder) buildAggregates(s *site.Site) error {
	homePosts := s.Posts
	if b.cfg.PostsPerPage > 0 && len(homePosts) > b.cfg.PostsPerPage {
		homePosts = homePosts[:b.cfg.PostsPerPage]
	}
	homeSite := *s
	homeSite.Posts = homePosts

	pages := []struct {
		relOut string
		layout string
		data   PageData
	}{
		{"index.html", homeLayout, PageData{Site: &homeSite, Tags: s.Tags}},
		{filepath.Join("posts", "index.html"), listLayout, PageData{Site: s, Tags: s.Tags}},
		{filepath.Join("tags", "index.html"), tagsLayout, PageData{Site: s, Tags: s.Tags}},
	}

	for _, page := range pages {
		if !b.tm.Has(page.layout) {
			b.logger.Warn("Layout not found, skipping page", "layout", page.layout, "page", page.relOut)
			continue
		}
		if err := b.writePage(page.relOut, page.layout, page.data); err != nil {
			return err
		}
	}
	return nil
}

// writePage executes a layout into a buffer and writes it atomically, so a
// failed render never leaves a truncated page behind.
func (b *Builder) writePage(relOut, layout string, data PageData) error {
	var buf bytes.Buffer
	if err := b.tm.Execute(&buf, layout, data); err != nil {
		return fmt.Errorf("execute layout %s for %s: %w", layout, relOut, err)
	}

	outPath := b.outPath(relOut)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", outPath, err)
	}
	if err := atomic.WriteFile(outPath, &buf); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	b.logger.Debug("Wrote page", "path", outPath, "layout", layout)
	return nil
}

// copyStatic copies the static assets tree into the output directory and
// returns the static source paths seen. With a cache present, unchanged
// assets are skipped and each copy is recorded so pruning covers removed
// assets too. A missing static directory is not an error.
func (b *Builder) copyStatic(ctx context.Context) ([]string, error) {
	if _, err := os.Stat(b.cfg.StaticDir); os.IsNotExist(err) {
		b.logger.Debug("No static directory, skipping copy", "dir", b.cfg.StaticDir)
		return nil, nil
	}

	var sources []string
	err := filepath.WalkDir(b.cfg.StaticDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(b.cfg.StaticDir, path)
		if err != nil {
			return err
		}
		dstPath := b.outPath(relPath)

		if d.IsDir() {
			return os.MkdirAll(dstPath, 0o755)
		}
		sources = append(sources, path)

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read static file %s: %w", path, err)
		}
		digest := sha256.Sum256(data)
		sum := hex.EncodeToString(digest[:])

		if b.store != nil {
			entry, ok, err := b.store.Get(ctx, path)
			if err != nil {
				return fmt.Errorf("cache lookup for %s: %w", path, err)
			}
			if ok && entry.Checksum == sum && entry.OutputPath == relPath && fileExists(dstPath) {
				b.logger.Debug("Skipping unchanged static file", "path", path)
				return nil
			}
		}

		if err = os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return err
		}
		if err = atomic.WriteFile(dstPath, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("copy static file %s: %w", path, err)
		}

		if b.store != nil {
			err = b.store.Put(ctx, cache.Entry{
				SourcePath: path,
				Checksum:   sum,
				OutputPath: relPath,
			})
			if err != nil {
				return fmt.Errorf("cache store for %s: %w", path, err)
			}
		}
		return nil
	})
	return sources, err
}

// fingerprint hashes the configuration and every layout file. A change to
// either invalidates all cached pages.
func (b *Builder) fingerprint() (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d|%t\n",
		b.cfg.Title, b.cfg.Description, b.cfg.Author, b.cfg.BaseURL,
		b.cfg.PostsPerPage, b.cfg.IncludeDrafts)

	var layoutFiles []string
	err := filepath.WalkDir(b.cfg.LayoutDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".html") {
			layoutFiles = append(layoutFiles, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return hex.EncodeToString(h.Sum(nil)), nil
		}
		return "", fmt.Errorf("walk layouts: %w", err)
	}
	sort.Strings(layoutFiles)

	for _, path := range layoutFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read layout %s: %w", path, err)
		}
		fmt.Fprintf(h, "%s\n", path)
		h.Write(data)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func (b *Builder) outPath(rel string) string {
	return filepath.Join(b.cfg.OutputDir, rel)
}

// normalizeLayout maps a front-matter layout name to a template file name,
// falling back when the front-matter names none.
func normalizeLayout(name, fallback string) string {
	if name == "" {
		return fallback
	}
	if !strings.HasSuffix(name, ".tmpl.html") {
		name += ".tmpl.html"
	}
	return name
}

// permalinkPath converts a /leading/trailing/ permalink into a filesystem
// path relative to the output directory.
func permalinkPath(permalink string) string {
	return filepath.FromSlash(strings.Trim(permalink, "/"))
}

func checksumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
