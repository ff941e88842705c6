// Package config loads site configuration from config.yaml with defaults for
// every key and STELE_-prefixed environment overrides. When no config file
// exists, one is scaffolded with the defaults so a new site starts from a
// readable baseline.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// defaultConfigFile is where Load scaffolds configuration when no file exists.
const defaultConfigFile = "config.yaml"

// Config is the full site configuration.
type Config struct {
	Title        string `mapstructure:"title" yaml:"title"`
	Description  string `mapstructure:"description" yaml:"description"`
	BaseURL      string `mapstructure:"baseURL" yaml:"baseURL"`
	Author       string `mapstructure:"author" yaml:"author"`
	ContentDir   string `mapstructure:"contentDir" yaml:"contentDir"`
	LayoutDir    string `mapstructure:"layoutDir" yaml:"layoutDir"`
	StaticDir    string `mapstructure:"staticDir" yaml:"staticDir"`
	OutputDir    string `mapstructure:"outputDir" yaml:"outputDir"`
	CachePath    string `mapstructure:"cachePath" yaml:"cachePath"`
	DateFormat   string `mapstructure:"dateFormat" yaml:"dateFormat"`
	PostsPerPage int    `mapstructure:"postsPerPage" yaml:"postsPerPage"`
	LogLevel     string `mapstructure:"logLevel" yaml:"logLevel"`
	Drafts       bool   `mapstructure:"drafts" yaml:"drafts"`
}

// Default returns the configuration a fresh site starts with.
func Default() *Config {
	return &Config{
		Title:        "A stele site",
		Description:  "",
		BaseURL:      "",
		Author:       "",
		ContentDir:   "content",
		LayoutDir:    "layouts",
		StaticDir:    "static",
		OutputDir:    "public",
		CachePath:    ".stele-cache.db",
		DateFormat:   "Jan 2, 2006",
		PostsPerPage: 10,
		LogLevel:     "info",
		Drafts:       false,
	}
}

// Load reads configuration from the given file, or from ./config.yaml when
// path is empty. A missing default config file is scaffolded with the
// defaults; an explicitly named file must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("title", defaults.Title)
	v.SetDefault("description", defaults.Description)
	v.SetDefault("baseURL", defaults.BaseURL)
	v.SetDefault("author", defaults.Author)
	v.SetDefault("contentDir", defaults.ContentDir)
	v.SetDefault("layoutDir", defaults.LayoutDir)
	v.SetDefault("staticDir", defaults.StaticDir)
	v.SetDefault("outputDir", defaults.OutputDir)
	v.SetDefault("cachePath", defaults.CachePath)
	v.SetDefault("dateFormat", defaults.DateFormat)
	v.SetDefault("postsPerPage", defaults.PostsPerPage)
	v.SetDefault("logLevel", defaults.LogLevel)
	v.SetDefault("drafts", defaults.Drafts)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("STELE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			// First run: scaffold config.yaml so the next edit starts from a
			// readable baseline. A failed write is not fatal, the site still
			// builds with defaults.
			if werr := WriteDefault(defaultConfigFile); werr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", werr)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// WriteDefault scaffolds a config file with default values at the given path.
// The write is atomic so a concurrent read never sees a partial file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
