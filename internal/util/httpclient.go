package util

import (
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/ppiankov/ranker/internal/model"
)

const maxRedirects = 3

// NewHTTPClient creates the HTTP client shared by the wiki and query service clients
func NewHTTPClient(cfg model.HTTPConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Newf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}
