package build

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mkessy/stele/pkg/cache"
	"github.com/mkessy/stele/pkg/render"
)

const testPostLayout = `<article><h1>{{.Post.Title}}</h1><time>{{date .Post.Date}}</time>{{.Post.BodyHTML}}</article>`

const testHomeLayout = `<h1>{{.Site.Title}}</h1><ul>{{range .Site.Posts}}<li><a href="{{.Permalink}}">{{.Title}}</a></li>{{end}}</ul>`

const testListLayout = `<ul>{{range .Site.Posts}}<li><a href="{{.Permalink}}">{{.Title}}</a> <time>{{date .Date}}</time></li>{{end}}</ul>`

const testTagsLayout = `<nav>{{range .Tags}}<a href="#{{anchor .Tag}}">{{.Tag}}</a> {{end}}</nav>
{{range .Tags}}<h2 id="{{anchor .Tag}}">{{.Tag}}</h2>
<ul>{{range .Posts}}<li><a href="{{.Permalink}}">{{.Title}}</a> <time>{{date .Date}}</time></li>{{end}}</ul>
{{end}}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestSite lays out a minimal site fixture and returns the builder
// config pointing at it.
func setupTestSite(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()

	cfg := Config{
		Title:        "Test Blog",
		Description:  "a test blog",
		Author:       "tester",
		BaseURL:      "https://example.com",
		ContentDir:   filepath.Join(dir, "content"),
		LayoutDir:    filepath.Join(dir, "layouts"),
		StaticDir:    filepath.Join(dir, "static"),
		OutputDir:    filepath.Join(dir, "public"),
		PostsPerPage: 10,
	}

	writeFile(t, cfg.LayoutDir, "post.tmpl.html", testPostLayout)
	writeFile(t, cfg.LayoutDir, "home.tmpl.html", testHomeLayout)
	writeFile(t, cfg.LayoutDir, "list.tmpl.html", testListLayout)
	writeFile(t, cfg.LayoutDir, "tags.tmpl.html", testTagsLayout)

	writeFile(t, cfg.ContentDir, "posts/2019-04-30-first.md",
		"---\ntitle: First\ntags: [x, y]\n---\nFirst body.\n")
	writeFile(t, cfg.ContentDir, "posts/2020-01-15-second.md",
		"---\ntitle: Second\ntags: [y]\n---\nSecond body.\n")

	writeFile(t, cfg.StaticDir, "css/style.css", "body { margin: 0 }\n")

	return cfg
}

func writeFile(t *testing.T, dir, relPath, src string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write %s: %v", relPath, err)
	}
}

func newTestBuilder(t *testing.T, cfg Config, store *cache.Store) *Builder {
	t.Helper()
	tm, err := render.NewManager(discardLogger(), cfg.LayoutDir, render.Options{
		BaseURL:    cfg.BaseURL,
		DateFormat: "Jan 2, 2006",
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return NewBuilder(discardLogger(), cfg, tm, store)
}

func setupTestStore(t *testing.T) *cache.Store {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "cache.db")
	db, err := sql.Open("sqlite", dbFile+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := cache.SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	store, err := cache.NewStore(db, discardLogger())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func readOutput(t *testing.T, cfg Config, relPath string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, filepath.FromSlash(relPath)))
	if err != nil {
		t.Fatalf("read output %s: %v", relPath, err)
	}
	return string(data)
}

func TestBuildFullSite(t *testing.T) {
	cfg := setupTestSite(t)
	b := newTestBuilder(t, cfg, nil)

	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for _, relPath := range []string{
		"index.html",
		"posts/index.html",
		"tags/index.html",
		"feed.xml",
		"sitemap.xml",
		"css/style.css",
		"posts/2019-04-30-first/index.html",
		"posts/2020-01-15-second/index.html",
	} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, filepath.FromSlash(relPath))); err != nil {
			t.Errorf("missing output %s: %v", relPath, err)
		}
	}

	postPage := readOutput(t, cfg, "posts/2019-04-30-first/index.html")
	if !strings.Contains(postPage, "<h1>First</h1>") || !strings.Contains(postPage, "Apr 30, 2019") {
		t.Errorf("post page content wrong: %q", postPage)
	}

	home := readOutput(t, cfg, "index.html")
	// Newest first on the home page.
	if strings.Index(home, "Second") > strings.Index(home, "First") {
		t.Errorf("home page not newest-first: %q", home)
	}
}

func TestBuildTagIndexPage(t *testing.T) {
	cfg := setupTestSite(t)
	b := newTestBuilder(t, cfg, nil)

	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	page := readOutput(t, cfg, "tags/index.html")

	// Tags ascending: x before y.
	xAt := strings.Index(page, `<h2 id="x">`)
	yAt := strings.Index(page, `<h2 id="y">`)
	if xAt < 0 || yAt < 0 || xAt > yAt {
		t.Fatalf("tag headings missing or misordered: %q", page)
	}

	// First carries x and y; Second only y. Under y the site's newest-first
	// order puts Second before First.
	ySection := page[yAt:]
	if !strings.Contains(ySection, "First") || !strings.Contains(ySection, "Second") {
		t.Errorf("tag y missing posts: %q", ySection)
	}
	if strings.Index(ySection, "Second") > strings.Index(ySection, "First") {
		t.Errorf("posts under tag y not in site order: %q", ySection)
	}
	xSection := page[xAt:yAt]
	if strings.Contains(xSection, "Second") {
		t.Errorf("post without tag x listed under it: %q", xSection)
	}

	// Anchor list links to the sections.
	if !strings.Contains(page, `<a href="#x">x</a>`) || !strings.Contains(page, `<a href="#y">y</a>`) {
		t.Errorf("anchor index missing: %q", page)
	}
}

func TestBuildEmptySite(t *testing.T) {
	cfg := setupTestSite(t)
	if err := os.RemoveAll(cfg.ContentDir); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.ContentDir, 0o755); err != nil {
		t.Fatal(err)
	}

	b := newTestBuilder(t, cfg, nil)
	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build() on empty site error = %v", err)
	}

	page := readOutput(t, cfg, "tags/index.html")
	if strings.Contains(page, "<h2") || strings.Contains(page, "<li>") {
		t.Errorf("empty site produced a non-empty tag index: %q", page)
	}
}

func TestBuildDeterministic(t *testing.T) {
	cfg := setupTestSite(t)
	b := newTestBuilder(t, cfg, nil)

	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}
	tagsFirst := readOutput(t, cfg, "tags/index.html")
	feedFirst := readOutput(t, cfg, "feed.xml")
	sitemapFirst := readOutput(t, cfg, "sitemap.xml")

	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("second Build() error = %v", err)
	}

	if readOutput(t, cfg, "tags/index.html") != tagsFirst {
		t.Error("tag index not byte-identical across rebuilds")
	}
	if readOutput(t, cfg, "feed.xml") != feedFirst {
		t.Error("feed not byte-identical across rebuilds")
	}
	if readOutput(t, cfg, "sitemap.xml") != sitemapFirst {
		t.Error("sitemap not byte-identical across rebuilds")
	}
}

func TestBuildIncremental(t *testing.T) {
	cfg := setupTestSite(t)
	store := setupTestStore(t)
	b := newTestBuilder(t, cfg, store)
	ctx := context.Background()

	if err := b.Build(ctx); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}

	postPage := filepath.Join(cfg.OutputDir, "posts", "2019-04-30-first", "index.html")
	statBefore, err := os.Stat(postPage)
	if err != nil {
		t.Fatalf("stat post page: %v", err)
	}

	// Unchanged source: the page must not be rewritten.
	time.Sleep(10 * time.Millisecond)
	if err = b.Build(ctx); err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	statAfter, err := os.Stat(postPage)
	if err != nil {
		t.Fatalf("stat post page after rebuild: %v", err)
	}
	if !statAfter.ModTime().Equal(statBefore.ModTime()) {
		t.Error("unchanged post page was rewritten")
	}

	// Edited source: the page must be re-rendered.
	writeFile(t, cfg.ContentDir, "posts/2019-04-30-first.md",
		"---\ntitle: First Edited\ntags: [x, y]\n---\nNew body.\n")
	if err = b.Build(ctx); err != nil {
		t.Fatalf("third Build() error = %v", err)
	}
	if got := readOutput(t, cfg, "posts/2019-04-30-first/index.html"); !strings.Contains(got, "First Edited") {
		t.Errorf("edited post not re-rendered: %q", got)
	}
}

func TestBuildLayoutChangeInvalidatesCache(t *testing.T) {
	cfg := setupTestSite(t)
	store := setupTestStore(t)
	b := newTestBuilder(t, cfg, store)
	ctx := context.Background()

	if err := b.Build(ctx); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}

	writeFile(t, cfg.LayoutDir, "post.tmpl.html",
		`<article class="v2"><h1>{{.Post.Title}}</h1>{{.Post.BodyHTML}}</article>`)

	if err := b.Build(ctx); err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	if got := readOutput(t, cfg, "posts/2019-04-30-first/index.html"); !strings.Contains(got, `class="v2"`) {
		t.Errorf("layout change did not re-render cached page: %q", got)
	}
}

func TestBuildPrunesRemovedPosts(t *testing.T) {
	cfg := setupTestSite(t)
	store := setupTestStore(t)
	b := newTestBuilder(t, cfg, store)
	ctx := context.Background()

	if err := b.Build(ctx); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}

	removed := filepath.Join(cfg.ContentDir, "posts", "2020-01-15-second.md")
	if err := os.Remove(removed); err != nil {
		t.Fatal(err)
	}

	if err := b.Build(ctx); err != nil {
		t.Fatalf("second Build() error = %v", err)
	}

	stale := filepath.Join(cfg.OutputDir, "posts", "2020-01-15-second", "index.html")
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale output survived prune: %v", err)
	}
	// The removed post must also leave the aggregate pages.
	if page := readOutput(t, cfg, "tags/index.html"); strings.Contains(page, "Second") {
		t.Errorf("removed post still in tag index: %q", page)
	}
}

func TestBuildPrunesRemovedStatic(t *testing.T) {
	cfg := setupTestSite(t)
	store := setupTestStore(t)
	b := newTestBuilder(t, cfg, store)
	ctx := context.Background()

	if err := b.Build(ctx); err != nil {
		t.Fatalf("first Build() error = %v", err)
	}

	copied := filepath.Join(cfg.OutputDir, "css", "style.css")
	statBefore, err := os.Stat(copied)
	if err != nil {
		t.Fatalf("stat static output: %v", err)
	}

	// Unchanged asset: the copy must not be rewritten.
	time.Sleep(10 * time.Millisecond)
	if err = b.Build(ctx); err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	statAfter, err := os.Stat(copied)
	if err != nil {
		t.Fatalf("stat static output after rebuild: %v", err)
	}
	if !statAfter.ModTime().Equal(statBefore.ModTime()) {
		t.Error("unchanged static file was rewritten")
	}

	// Removed asset: its output must leave the output directory.
	if err = os.Remove(filepath.Join(cfg.StaticDir, "css", "style.css")); err != nil {
		t.Fatal(err)
	}
	if err = b.Build(ctx); err != nil {
		t.Fatalf("third Build() error = %v", err)
	}
	if _, err = os.Stat(copied); !os.IsNotExist(err) {
		t.Errorf("removed static file survived prune: %v", err)
	}
}
