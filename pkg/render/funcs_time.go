package render

import "time"

// fmtDate formats a publication date using the configured display layout.
// Zero times render as an empty string so undated pages stay clean.
func (m *Manager) fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(m.opts.DateFormat)
}

// dateISO formats a time as the date-only ISO form used in datetime
// attributes and sitemaps.
func dateISO(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
