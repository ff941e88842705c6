package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/mkessy/stele/pkg/build"
)

var servePort int

// debounceDuration batches bursts of filesystem events into one rebuild.
const debounceDuration = 500 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Build the site, serve it locally, and rebuild on changes",
	Long: `The serve command performs an initial build, then starts a local web
server over the output directory. It watches the content, layouts, and
static directories; on changes the site is rebuilt and connected browsers
are told to reload over a websocket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	builder, tm, cleanup, err := newBuilder()
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("Performing initial build...")
	if err = builder.Build(ctx); err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}
	logger.Debug("Layouts loaded", "layouts", tm.Names())

	hub := newReloadHub(logger)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func(watcher *fsnotify.Watcher) {
		_ = watcher.Close()
	}(watcher)

	go watchAndRebuild(ctx, watcher, builder, hub)

	for _, root := range []string{cfg.ContentDir, tm.LayoutDir(), cfg.StaticDir} {
		if err = watchTree(watcher, root); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/__livereload", hub.Handle)
	mux.Handle("/", &devSiteHandler{logger: logger, outputDir: cfg.OutputDir})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", servePort),
		Handler: mux,
	}

	go func() {
		logger.Info("Serving site", "dir", cfg.OutputDir, "address", fmt.Sprintf("http://localhost%s", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Dev server failed", "error", err)
		}
	}()

	<-ctx.Done()

	logger.Info("Stopping dev server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Dev server shutdown failed", "error", err)
	}
	return nil
}

// watchAndRebuild services watcher events until the context is cancelled,
// debouncing rebuilds and broadcasting a reload after each successful one.
// Rebuilds are serialized: a build that outlasts the debounce window makes
// the next one wait rather than run concurrently.
func watchAndRebuild(ctx context.Context, watcher *fsnotify.Watcher, builder *build.Builder, hub *reloadHub) {
	var (
		buildTimer *time.Timer
		buildMu    sync.Mutex
	)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("Change detected", "path", event.Name, "op", event.Op.String())

			// New subdirectories are not watched automatically.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			if buildTimer != nil {
				buildTimer.Stop()
			}
			buildTimer = time.AfterFunc(debounceDuration, func() {
				runRebuild(&buildMu, func() error { return builder.Build(ctx) }, hub.Broadcast)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Watcher error", "error", err)
		}
	}
}

// runRebuild performs one rebuild under the mutex, notifying browsers only
// on success. A rebuild that outlasts the debounce window makes the next one
// wait instead of running concurrently.
func runRebuild(mu *sync.Mutex, doBuild func() error, notify func()) {
	mu.Lock()
	defer mu.Unlock()

	logger.Info("Rebuilding site due to changes...")
	if err := doBuild(); err != nil {
		logger.Error("Rebuild failed", "error", err)
		return
	}
	logger.Info("Site rebuilt")
	notify()
}

// watchTree registers every directory under root with the watcher. A missing
// root is skipped so a site without a static directory still serves.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		logger.Debug("Directory not found, not watching", "dir", root)
		return nil
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(p); err != nil {
				return fmt.Errorf("watch %s: %w", p, err)
			}
		}
		return nil
	})
}

// devSiteHandler serves the generated site for local preview: directory URLs
// resolve to their index.html, caching is disabled, and HTML pages get the
// live-reload snippet appended.
type devSiteHandler struct {
	logger    *slog.Logger
	outputDir string
}

func (h *devSiteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Clean is applied to the rooted path, so traversal cannot escape the
	// output directory.
	cleaned := path.Clean("/" + r.URL.Path)
	fsPath := filepath.Join(h.outputDir, filepath.FromSlash(cleaned))

	if info, err := os.Stat(fsPath); err == nil && info.IsDir() {
		fsPath = filepath.Join(fsPath, "index.html")
	}

	w.Header().Set("Cache-Control", "no-store, no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	if filepath.Ext(fsPath) == ".html" {
		data, err := os.ReadFile(fsPath)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
		_, _ = w.Write([]byte(reloadSnippet))
		return
	}

	http.ServeFile(w, r, fsPath)
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 1313, "port to serve the site on")
	rootCmd.AddCommand(serveCmd)
}
