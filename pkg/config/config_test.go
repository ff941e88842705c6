package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() with no file error = %v", err)
	}
	if cfg.OutputDir != "public" || cfg.ContentDir != "content" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.PostsPerPage != 10 {
		t.Errorf("PostsPerPage = %d, want 10", cfg.PostsPerPage)
	}
}

func TestLoadScaffoldsMissingConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load(""); err != nil {
		t.Fatalf("Load() with no file error = %v", err)
	}
	if _, err := os.Stat(defaultConfigFile); err != nil {
		t.Fatalf("config file not scaffolded: %v", err)
	}

	// The scaffolded file reads back as the defaults.
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() of scaffolded config error = %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("scaffolded config mismatch:\n got %+v\nwant %+v", cfg, Default())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	src := "title: My Blog\nbaseURL: https://blog.example\noutputDir: out\npostsPerPage: 5\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Title != "My Blog" || cfg.BaseURL != "https://blog.example" {
		t.Errorf("file values not loaded: %+v", cfg)
	}
	if cfg.OutputDir != "out" || cfg.PostsPerPage != 5 {
		t.Errorf("file values not loaded: %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.LayoutDir != "layouts" {
		t.Errorf("LayoutDir = %q, want layouts", cfg.LayoutDir)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for explicitly named missing config file")
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of scaffolded config error = %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("scaffolded config round-trip mismatch:\n got %+v\nwant %+v", cfg, Default())
	}
}
