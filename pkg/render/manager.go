package render

import (
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Manager is the central controller for the template engine. It owns the
// parsed template set, the function map, and the layout directory, and it
// reloads templates on demand so the dev server can pick up edits.
// All methods are concurrent-safe.
type Manager struct {
	logger         *slog.Logger
	opts           Options
	templates      *template.Template
	cleanTemplates *template.Template
	templateNames  []string
	funcMap        template.FuncMap
	layoutDir      string
	mu             sync.RWMutex
}

// NewManager creates a Manager over the given layouts directory and performs
// an initial Refresh to load the template set.
func NewManager(logger *slog.Logger, layoutDir string, opts Options) (*Manager, error) {
	m := &Manager{
		logger:    logger,
		opts:      opts,
		layoutDir: layoutDir,
	}
	m.funcMap = m.makeFuncMap()

	if err := m.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", "layouts", layoutDir)
	return m, nil
}

func (m *Manager) makeFuncMap() template.FuncMap {
	return template.FuncMap{
		// Time (funcs_time.go)
		"date":    m.fmtDate,
		"dateISO": dateISO,

		// Text (funcs_text.go)
		"slugify":   slugify,
		"anchor":    anchor,
		"titlecase": titlecase,
		"truncate":  truncateWords,

		// Links (funcs_links.go)
		"absURL": m.absURL,
		"relURL": relURL,

		// Logic & control (funcs_logic.go)
		"repeat": repeat,
		"list":   list,
		"isSet":  isSet,

		// Arithmetic (funcs_simple.go)
		"add":  add,
		"sub":  sub,
		"div":  div,
		"mult": mult,
		"mod":  mod,
		"inc":  inc,
		"dec":  dec,
	}
}

// Refresh reloads all layouts and partials from the filesystem. It allows
// template updates without restarting the application; the dev server calls
// it before every rebuild.
func (m *Manager) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	filePattern := filepath.Join(m.layoutDir, "*.tmpl.html")
	m.logger.Debug("Loading layout files...", "pattern", filePattern)

	parsed, err := template.New("").Funcs(m.funcMap).ParseGlob(filePattern)
	var names []string
	if err != nil {
		if !strings.Contains(err.Error(), "pattern matches no files") {
			m.logger.Error("failed to parse layout files", "error", err)
			return err
		}
		// No layout files yet; keep an empty set so Refresh stays usable.
		parsed = template.New("").Funcs(m.funcMap)
	} else {
		for _, t := range parsed.Templates() {
			// The root template has no name and is never executed directly.
			if strings.HasSuffix(t.Name(), ".tmpl.html") {
				names = append(names, t.Name())
			}
		}
	}

	partialPattern := filepath.Join(m.layoutDir, "*.part.html")
	withPartials, err := parsed.ParseGlob(partialPattern)
	if err != nil {
		if !strings.Contains(err.Error(), "pattern matches no files") {
			m.logger.Error("failed to parse partial files", "error", err)
			return err
		}
		withPartials = parsed
	}

	if len(names) == 0 {
		m.logger.Warn("No layout files found", "pattern", filePattern)
	}

	m.templates = withPartials
	m.templateNames = names
	m.logger.Debug("Loaded layouts and partials", "count", len(withPartials.Templates())-1)

	// A clean clone keeps string executions free of per-page state.
	m.cleanTemplates, err = m.templates.Clone()
	if err != nil {
		m.logger.Error("failed to clone template set", "error", err)
		return err
	}

	return nil
}

// Execute renders the named layout to w with the given data.
func (m *Manager) Execute(w io.Writer, name string, data any) error {
	if name == "" {
		return fmt.Errorf("empty layout name")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.templates.ExecuteTemplate(w, name, data)
}

// Has reports whether a layout with the given name is loaded.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.templates.Lookup(name) != nil
}

// Names returns the names of the loaded page layouts, excluding partials.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.templateNames))
	copy(names, m.templateNames)
	return names
}

// LayoutDir returns the directory the Manager loads layouts from.
func (m *Manager) LayoutDir() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.layoutDir
}

// ExecuteString parses and executes a raw template string against the loaded
// set, with partials and the function map available. Useful for previewing a
// layout without saving it to disk.
func (m *Manager) ExecuteString(w io.Writer, source string, data any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Clone the clean, unexecuted set to avoid execution-state conflicts.
	set, err := m.cleanTemplates.Clone()
	if err != nil {
		return fmt.Errorf("clone template set: %w", err)
	}

	t, err := set.Parse(source)
	if err != nil {
		return fmt.Errorf("parse template string: %w", err)
	}

	return t.Execute(w, data)
}
