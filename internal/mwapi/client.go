// Package mwapi talks to the MediaWiki action API of a Wikibase wiki:
// fetching entities, acquiring edit tokens and saving rank edits.
package mwapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/ppiankov/ranker/internal/wiki"
)

// APIError is an error reported by the API in an {"error": {...}} body
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// HTTPError reports a non-2xx response
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Client is bound to one wiki
type Client struct {
	profile       wiki.Profile
	baseURL       string
	httpClient    *http.Client
	userAgent     string
	maxBytes      int64
	fetchParallel int
	log           zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL sends requests to baseURL instead of https://<host>
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithFetchParallel bounds concurrent wbgetentities requests
func WithFetchParallel(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.fetchParallel = n
		}
	}
}

// WithLogger sets the request logger
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates an anonymous client for profile
func NewClient(profile wiki.Profile, httpClient *http.Client, userAgent string, maxBytes int64, opts ...Option) *Client {
	c := &Client{
		profile:       profile,
		baseURL:       profile.BaseURL(),
		httpClient:    httpClient,
		userAgent:     userAgent,
		maxBytes:      maxBytes,
		fetchParallel: 4,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewAuthenticatedClient creates a client whose requests carry accessToken
// as an OAuth 2 bearer token
func NewAuthenticatedClient(profile wiki.Profile, httpClient *http.Client, userAgent string, maxBytes int64, accessToken string, opts ...Option) *Client {
	authed := *httpClient
	authed.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		Base:   httpClient.Transport,
	}
	return NewClient(profile, &authed, userAgent, maxBytes, opts...)
}

// Host returns the wiki host name
func (c *Client) Host() string {
	return c.profile.Host
}

// Profile returns the wiki profile
func (c *Client) Profile() wiki.Profile {
	return c.profile
}

// Get calls the action API with GET
func (c *Client) Get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+wiki.APIPath+"?"+apiParams(params).Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	return c.do(req, params.Get("action"), out)
}

// Post calls the action API with a form-encoded POST
func (c *Client) Post(ctx context.Context, params url.Values, out any) error {
	body := strings.NewReader(apiParams(params).Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+wiki.APIPath, body)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, params.Get("action"), out)
}

// getJSON fetches a JSON document below the wiki origin, outside the action API
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	return c.do(req, "", out)
}

func (c *Client) do(req *http.Request, action string, out any) error {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request")
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("wiki", c.profile.Host).
		Str("method", req.Method).
		Str("action", action).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.Redacted()}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errors.Wrap(err, "decode response")
	}
	if envelope.Error != nil {
		return envelope.Error
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func apiParams(params url.Values) url.Values {
	out := make(url.Values, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	out.Set("format", "json")
	out.Set("formatversion", "2")
	return out
}
