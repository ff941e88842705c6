package site

import (
	"sort"

	"github.com/mkessy/stele/pkg/content"
)

// TagGroup is one tag and the posts carrying it, in the order the posts were
// supplied.
type TagGroup struct {
	Tag   string
	Posts []*content.Post
}

// TagIndex groups posts by tag. Tags are sorted lexicographically ascending
// (byte-wise, case-sensitive) with no duplicates; the posts under each tag
// keep the input collection order and are never re-sorted. A post appears
// exactly once under each distinct tag it carries and under no other. An
// empty post set yields an empty index, and a post with no tags contributes
// to no group. The input is never mutated, so the transform is deterministic:
// the same post set always produces the same index.
func TagIndex(posts []*content.Post) []TagGroup {
	byTag := make(map[string][]*content.Post)
	for _, p := range posts {
		// Tags carry set semantics; tolerate callers that hand in raw,
		// un-normalized tag lists.
		seen := make(map[string]struct{}, len(p.Tags))
		for _, tag := range p.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			byTag[tag] = append(byTag[tag], p)
		}
	}

	names := make([]string, 0, len(byTag))
	for tag := range byTag {
		names = append(names, tag)
	}
	sort.Strings(names)

	groups := make([]TagGroup, 0, len(names))
	for _, tag := range names {
		groups = append(groups, TagGroup{Tag: tag, Posts: byTag[tag]})
	}
	return groups
}
