package mwapi

import (
	"context"
	"net/url"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"
)

// ErrNotLoggedIn is returned when the wiki hands out the anonymous edit token
var ErrNotLoggedIn = errors.New("not logged in")

// anonymousToken is the CSRF token MediaWiki returns to logged-out users
const anonymousToken = `+\`

// TokenCache holds edit tokens for the lifetime of one request or command.
// Concurrent callers for the same host share a single token fetch.
type TokenCache struct {
	mu     sync.Mutex
	tokens map[string]string
	group  singleflight.Group
}

// NewTokenCache creates an empty token cache
func NewTokenCache() *TokenCache {
	return &TokenCache{tokens: make(map[string]string)}
}

// EditToken returns the CSRF token for the client's wiki, fetching it once
func (t *TokenCache) EditToken(ctx context.Context, c *Client) (string, error) {
	host := c.Host()
	if token, ok := t.lookup(host); ok {
		return token, nil
	}

	v, err, _ := t.group.Do(host, func() (any, error) {
		if token, ok := t.lookup(host); ok {
			return token, nil
		}

		var resp struct {
			Query struct {
				Tokens struct {
					CSRFToken string `json:"csrftoken"`
				} `json:"tokens"`
			} `json:"query"`
		}
		params := url.Values{
			"action": {"query"},
			"meta":   {"tokens"},
			"type":   {"csrf"},
		}
		if err := c.Get(ctx, params, &resp); err != nil {
			return "", errors.Wrap(err, "get edit token")
		}

		token := resp.Query.Tokens.CSRFToken
		if token == "" || token == anonymousToken {
			return "", ErrNotLoggedIn
		}

		t.mu.Lock()
		t.tokens[host] = token
		t.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *TokenCache) lookup(host string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	token, ok := t.tokens[host]
	return token, ok
}
