/*
Package render provides the filesystem-based template engine that turns site
data into pages. Layouts are Go html/template files loaded from a layouts
directory: *.tmpl.html files are executable page templates and *.part.html
files are partials shared between them.

The Manager holds the parsed set behind a lock and supports hot reloading via
Refresh, which the dev server uses to pick up layout edits without a restart.
A library of template functions (date formatting, slugs and anchors, URL
resolution, arithmetic and loop helpers) is installed on every template.
*/
package render
