// Package sparql runs SELECT queries against a SPARQL endpoint and decodes
// the JSON results format.
package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"

	"github.com/cockroachdb/errors"
)

// Results is a decoded application/sparql-results+json document
type Results struct {
	Head    Head     `json:"head"`
	Results Bindings `json:"results"`
}

// Head lists the projected variables
type Head struct {
	Vars []string `json:"vars"`
}

// Bindings holds the result rows
type Bindings struct {
	Bindings []map[string]Binding `json:"bindings"`
}

// Binding is one RDF term bound to a variable
type Binding struct {
	Type     string `json:"type"` // uri, literal, bnode
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// HasVar reports whether the query projected the variable name
func (r *Results) HasVar(name string) bool {
	return slices.Contains(r.Head.Vars, name)
}

// Client queries SPARQL endpoints
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
}

// NewClient creates a query client on top of httpClient
func NewClient(httpClient *http.Client, userAgent string, maxBytes int64) *Client {
	return &Client{
		httpClient: httpClient,
		userAgent:  userAgent,
		maxBytes:   maxBytes,
	}
}

// Query runs query against endpoint and decodes the result set
func (c *Client) Query(ctx context.Context, endpoint, query string) (*Results, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &QueryError{StatusCode: resp.StatusCode, Body: truncate(string(body), 500)}
	}

	var results Results
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, errors.Wrap(err, "decode results")
	}
	return &results, nil
}

// QueryError reports a query rejected by the endpoint, usually a syntax error or timeout
type QueryError struct {
	StatusCode int
	Body       string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query service returned status %d: %s", e.StatusCode, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
