// Package wbformat renders entity labels and statement values as HTML
// through the wiki's formatting API, caching the results.
package wbformat

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ppiankov/ranker/internal/cache"
	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/mwapi"
)

// DefaultTTL is how long formatted HTML stays cached
const DefaultTTL = time.Hour

// Formatter formats entities and values of one wiki in one language
type Formatter struct {
	client *mwapi.Client
	cache  cache.Cache
	lang   string
	ttl    time.Duration
}

// NewFormatter creates a formatter; ttl 0 selects DefaultTTL
func NewFormatter(client *mwapi.Client, c cache.Cache, lang string, ttl time.Duration) *Formatter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Formatter{client: client, cache: c, lang: lang, ttl: ttl}
}

func (f *Formatter) entityKey(entityID string) string {
	return cache.Key("entity", f.client.Host(), f.lang, entityID)
}

// FormatEntity returns the HTML label link of one entity
func (f *Formatter) FormatEntity(ctx context.Context, entityID string) (string, error) {
	if cached, ok := f.cache.Get(f.entityKey(entityID)); ok {
		return string(cached), nil
	}

	formatted, err := f.formatEntities(ctx, []string{entityID})
	if err != nil {
		return "", err
	}
	out, ok := formatted[entityID]
	if !ok {
		return "", errors.Newf("no formatted label for %s", entityID)
	}
	return out, nil
}

// PrefetchEntities formats all entities that are not cached yet, 50 per request
func (f *Formatter) PrefetchEntities(ctx context.Context, entityIDs []string) error {
	var pending []string
	for _, id := range lo.Uniq(entityIDs) {
		if _, ok := f.cache.Get(f.entityKey(id)); !ok {
			pending = append(pending, id)
		}
	}

	for _, chunk := range lo.Chunk(pending, mwapi.EntitiesChunkSize) {
		if _, err := f.formatEntities(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// formatEntities calls wbformatentities and caches every returned label
func (f *Formatter) formatEntities(ctx context.Context, ids []string) (map[string]string, error) {
	var resp struct {
		Formatted map[string]string `json:"wbformatentities"`
	}
	params := url.Values{
		"action":  {"wbformatentities"},
		"ids":     {strings.Join(ids, "|")},
		"uselang": {f.lang},
	}
	if err := f.client.Get(ctx, params, &resp); err != nil {
		return nil, errors.Wrap(err, "format entities")
	}

	for id, formatted := range resp.Formatted {
		if err := f.cache.Set(f.entityKey(id), []byte(formatted), f.ttl); err != nil {
			return nil, errors.Wrap(err, "cache formatted entity")
		}
	}
	return resp.Formatted, nil
}

// FormatValue renders a data value of propertyID as HTML, with links turned
// into plain spans
func (f *Formatter) FormatValue(ctx context.Context, propertyID string, value *model.DataValue) (string, error) {
	datavalue, err := json.Marshal(value)
	if err != nil {
		return "", errors.Wrap(err, "encode data value")
	}

	key := cache.Key("value", f.client.Host(), f.lang, propertyID, string(datavalue))
	if cached, ok := f.cache.Get(key); ok {
		return string(cached), nil
	}

	var resp struct {
		Result string `json:"result"`
	}
	params := url.Values{
		"action":    {"wbformatvalue"},
		"datavalue": {string(datavalue)},
		"property":  {propertyID},
		"generate":  {"text/html"},
		"uselang":   {f.lang},
	}
	if err := f.client.Get(ctx, params, &resp); err != nil {
		return "", errors.Wrap(err, "format value")
	}

	out, err := unlink(resp.Result)
	if err != nil {
		return "", err
	}
	if err := f.cache.Set(key, []byte(out), f.ttl); err != nil {
		return "", errors.Wrap(err, "cache formatted value")
	}
	return out, nil
}

// unlink rewrites every <a> element of an HTML fragment into a <span>
// without href
func unlink(fragment string) (string, error) {
	parent := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return "", errors.Wrap(err, "parse formatted value")
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			n.Data = "span"
			n.DataAtom = atom.Span
			n.Attr = lo.Reject(n.Attr, func(a html.Attribute, _ int) bool {
				return a.Key == "href"
			})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	var b strings.Builder
	for _, n := range nodes {
		walk(n)
		if err := html.Render(&b, n); err != nil {
			return "", errors.Wrap(err, "render formatted value")
		}
	}
	return b.String(), nil
}
