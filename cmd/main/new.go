package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goliatone/go-slug"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	newTags        []string
	newDescription string
	newDraft       bool
)

// newPostFrontMatter is the scaffolded metadata block. Field order here is
// the order in the generated file.
type newPostFrontMatter struct {
	Layout      string   `yaml:"layout"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Date        string   `yaml:"date"`
	Tags        []string `yaml:"tags"`
	Comments    bool     `yaml:"comments"`
	Draft       bool     `yaml:"draft"`
}

var newCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Scaffold a new post with front-matter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNew(args[0])
	},
}

func runNew(title string) error {
	postSlug, err := slug.Normalize(title)
	if err != nil || postSlug == "" {
		return fmt.Errorf("cannot derive a slug from title %q", title)
	}

	now := time.Now()
	filename := fmt.Sprintf("%s-%s.md", now.Format("2006-01-02"), postSlug)
	outPath := filepath.Join(cfg.ContentDir, "posts", filename)

	if _, err = os.Stat(outPath); err == nil {
		return fmt.Errorf("post already exists: %s", outPath)
	}

	fm := newPostFrontMatter{
		Layout:      "post",
		Title:       title,
		Description: newDescription,
		Date:        now.Format("2006-01-02"),
		Tags:        newTags,
		Comments:    true,
		Draft:       newDraft,
	}

	meta, err := yaml.Marshal(fm)
	if err != nil {
		return fmt.Errorf("marshal front-matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n\n")

	if err = os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create posts directory: %w", err)
	}
	if err = atomic.WriteFile(outPath, &buf); err != nil {
		return fmt.Errorf("write post: %w", err)
	}

	logger.Info("Created post", "path", outPath)
	return nil
}

func init() {
	newCmd.Flags().StringSliceVar(&newTags, "tags", nil, "tags for the new post")
	newCmd.Flags().StringVar(&newDescription, "description", "", "description for the new post")
	newCmd.Flags().BoolVar(&newDraft, "draft", false, "mark the new post as a draft")
	rootCmd.AddCommand(newCmd)
}
