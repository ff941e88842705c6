package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkessy/stele/pkg/build"
	"github.com/mkessy/stele/pkg/cache"
	"github.com/mkessy/stele/pkg/render"
)

var (
	buildDrafts  bool
	buildNoCache bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Generate the site into the output directory",
	Long: `The build command loads every markdown post from the content directory,
renders it through the layouts, and writes the site into the output
directory along with the tag index, RSS feed, and sitemap.

By default a build cache tracks content checksums so unchanged post pages
are skipped on rebuild; --no-cache forces a full clean build.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		builder, _, cleanup, err := newBuilder()
		if err != nil {
			return err
		}
		defer cleanup()

		return builder.Build(ctx)
	},
}

// newBuilder wires the template manager, the optional build cache, and the
// builder from the loaded configuration. The manager is returned alongside so
// callers can inspect the loaded layout set. The returned cleanup releases
// the cache database and must be called even when the build fails.
func newBuilder() (*build.Builder, *render.Manager, func(), error) {
	tm, err := render.NewManager(logger, cfg.LayoutDir, render.Options{
		BaseURL:    cfg.BaseURL,
		DateFormat: cfg.DateFormat,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create template manager: %w", err)
	}

	var store *cache.Store
	cleanup := func() {}

	if !buildNoCache {
		db, err := initDB(cfg.CachePath + "?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open build cache: %w", err)
		}
		if err = cache.SetupSchema(db); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("setup build cache schema: %w", err)
		}
		store, err = cache.NewStore(db, logger)
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("open build cache store: %w", err)
		}
		cleanup = func() {
			store.Close()
			_ = db.Close()
		}
	}

	buildCfg := build.Config{
		Title:         cfg.Title,
		Description:   cfg.Description,
		Author:        cfg.Author,
		BaseURL:       cfg.BaseURL,
		ContentDir:    cfg.ContentDir,
		LayoutDir:     cfg.LayoutDir,
		StaticDir:     cfg.StaticDir,
		OutputDir:     cfg.OutputDir,
		PostsPerPage:  cfg.PostsPerPage,
		IncludeDrafts: cfg.Drafts || buildDrafts,
	}

	return build.NewBuilder(logger, buildCfg, tm, store), tm, cleanup, nil
}

func init() {
	buildCmd.Flags().BoolVar(&buildDrafts, "drafts", false, "include draft posts in the build")
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "disable the build cache and rebuild everything")
	rootCmd.AddCommand(buildCmd)
}
