package mwapi

import (
	"fmt"

	"github.com/ppiankov/ranker/internal/wiki"
)

// DiffURL links to the diff between two revisions of a page on host
func DiffURL(host string, baseRevisionID, revisionID int64) string {
	return fmt.Sprintf("https://%s%s?diff=%d&oldid=%d", host, wiki.IndexPath, revisionID, baseRevisionID)
}

// PermalinkURL links to one revision on host, for edits that changed nothing
func PermalinkURL(host string, revisionID int64) string {
	return fmt.Sprintf("https://%s%s?oldid=%d", host, wiki.IndexPath, revisionID)
}
