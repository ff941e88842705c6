package render

import "strings"

// absURL resolves a root-relative path against the configured base URL.
// Absolute URLs pass through untouched.
func (m *Manager) absURL(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	base := strings.TrimSuffix(m.opts.BaseURL, "/")
	return base + relURL(p)
}

// relURL normalizes a path to be root-relative with a single leading slash.
func relURL(p string) string {
	if p == "" {
		return "/"
	}
	return "/" + strings.TrimLeft(p, "/")
}
