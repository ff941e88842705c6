/*
Package content loads markdown posts from a directory tree. Each file carries a
front-matter block (layout, title, description, permalink, comments, tags, date,
draft) followed by a markdown body; the loader parses the metadata, renders the
body to HTML, and returns immutable Post values for the site to assemble.

Permalinks and titles omitted from front-matter are derived from the source
path, and a Jekyll-style YYYY-MM-DD- filename prefix supplies the publication
date when the metadata does not.
*/
package content
