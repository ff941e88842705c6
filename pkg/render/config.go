package render

// Options holds the settings templates need at execution time.
type Options struct {
	// BaseURL is the absolute site root used by the absURL function,
	// e.g. "https://example.com". Empty means links stay root-relative.
	BaseURL string

	// DateFormat is the time layout used by the date function when a page
	// displays a publication date.
	DateFormat string
}

// DefaultOptions returns Options with the display defaults: root-relative
// links and a "Jan 2, 2006" date style.
func DefaultOptions() Options {
	return Options{
		BaseURL:    "",
		DateFormat: "Jan 2, 2006",
	}
}
