package mwapi

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrNoSuchPage is returned for titles that do not exist
var ErrNoSuchPage = errors.New("no such page")

// ResolveFilePage maps a "File:" title to the ID of its MediaInfo entity, M<page ID>
func ResolveFilePage(ctx context.Context, c *Client, title string) (string, error) {
	if !strings.HasPrefix(title, "File:") {
		return "", errors.Newf("%q is not a file title", title)
	}

	var resp struct {
		Query struct {
			Pages []struct {
				PageID  int64 `json:"pageid"`
				Missing bool  `json:"missing"`
			} `json:"pages"`
		} `json:"query"`
	}
	params := url.Values{
		"action": {"query"},
		"titles": {title},
	}
	if err := c.Get(ctx, params, &resp); err != nil {
		return "", errors.Wrapf(err, "resolve %s", title)
	}

	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing || resp.Query.Pages[0].PageID == 0 {
		return "", errors.Wrapf(ErrNoSuchPage, "%s", title)
	}
	return "M" + strconv.FormatInt(resp.Query.Pages[0].PageID, 10), nil
}
