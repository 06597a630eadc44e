// Package pipeline wires configuration, wiki clients and the batch
// orchestrator into the flows used by the CLI and the HTTP API:
// parse input, authenticate, then edit.
package pipeline

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/ppiankov/ranker/internal/batch"
	"github.com/ppiankov/ranker/internal/cache"
	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/mwapi"
	"github.com/ppiankov/ranker/internal/parse"
	"github.com/ppiankov/ranker/internal/sparql"
	"github.com/ppiankov/ranker/internal/util"
	"github.com/ppiankov/ranker/internal/wbformat"
	"github.com/ppiankov/ranker/internal/wiki"
	"github.com/ppiankov/ranker/internal/worker"
)

// ErrNoQueryService is returned for query batches on wikis without a query service
var ErrNoQueryService = errors.New("wiki has no query service")

// Mode selects how a batch changes ranks
type Mode int

const (
	ModeSet        Mode = iota // Same target rank for every statement
	ModeIncrement              // Raise every statement by one rank
	ModeIndividual             // Rank and reason per statement
)

// Request describes one batch
type Request struct {
	Wiki        string
	Mode        Mode
	Rank        model.Rank // ModeSet only
	Reason      string     // ModeSet and ModeIncrement
	Summary     string
	AccessToken string
}

// Pipeline runs rank edits against the configured wikis
type Pipeline struct {
	config     model.Config
	httpClient *http.Client
	cache      cache.Cache
	sparql     *sparql.Client
	log        zerolog.Logger

	apiBaseURL    string
	queryEndpoint string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithAPIBaseURL sends all wiki requests to baseURL instead of the wiki hosts
func WithAPIBaseURL(baseURL string) Option {
	return func(p *Pipeline) {
		p.apiBaseURL = baseURL
	}
}

// WithQueryEndpoint sends all SPARQL queries to endpoint
func WithQueryEndpoint(endpoint string) Option {
	return func(p *Pipeline) {
		p.queryEndpoint = endpoint
	}
}

// WithHTTPClient replaces the outgoing HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		p.httpClient = c
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// NewPipeline creates a new pipeline with the given configuration
func NewPipeline(cfg model.Config, opts ...Option) *Pipeline {
	httpClient := util.NewHTTPClient(cfg.HTTP)
	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.Burst)
	for _, h := range cfg.RateLimiting.Hosts {
		limiter.SetHostRate(h.Host, h.RequestsPerSecond, h.Burst)
	}
	httpClient.Transport = limiter.Transport(httpClient.Transport)

	p := &Pipeline{
		config:     cfg,
		httpClient: httpClient,
		cache:      cache.New(cfg.Cache),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sparql = sparql.NewClient(p.httpClient, cfg.HTTP.UserAgent, cfg.HTTP.MaxBodyBytes)
	return p
}

// Profile looks up a wiki and applies the configured query endpoint
func (p *Pipeline) Profile(host string) (wiki.Profile, error) {
	profile, err := wiki.Lookup(host)
	if err != nil {
		return wiki.Profile{}, err
	}
	if endpoint := p.config.Query.QueryEndpoint(host); endpoint != "" {
		return profile.WithQueryEndpoint(endpoint)
	}
	return profile, nil
}

func (p *Pipeline) clientOptions() []mwapi.Option {
	opts := []mwapi.Option{
		mwapi.WithFetchParallel(p.config.Concurrency.FetchParallel),
		mwapi.WithLogger(p.log),
	}
	if p.apiBaseURL != "" {
		opts = append(opts, mwapi.WithBaseURL(p.apiBaseURL))
	}
	return opts
}

// AnonymousClient returns a read-only client for profile
func (p *Pipeline) AnonymousClient(profile wiki.Profile) *mwapi.Client {
	return mwapi.NewClient(profile, p.httpClient, p.config.HTTP.UserAgent, p.config.HTTP.MaxBodyBytes, p.clientOptions()...)
}

// Formatter returns the label formatter for profile, or nil when labels are disabled
func (p *Pipeline) Formatter(profile wiki.Profile) *wbformat.Formatter {
	if !p.config.Display.Labels {
		return nil
	}
	return wbformat.NewFormatter(p.AnonymousClient(profile), p.cache, p.config.Display.Language, p.config.Cache.TTL)
}

// Orchestrator builds an orchestrator acting as the owner of accessToken.
// Every call gets its own token cache.
func (p *Pipeline) Orchestrator(profile wiki.Profile, accessToken string) *batch.Orchestrator {
	client := mwapi.NewAuthenticatedClient(profile, p.httpClient, p.config.HTTP.UserAgent, p.config.HTTP.MaxBodyBytes, accessToken, p.clientOptions()...)
	gateway := mwapi.NewGateway(client, mwapi.NewTokenCache())

	opts := []batch.Option{
		batch.WithWorkers(p.config.Concurrency.Workers),
		batch.WithLogger(p.log),
	}
	if formatter := p.Formatter(profile); formatter != nil {
		opts = append(opts, batch.WithLabelPrefetcher(formatter))
	}
	return batch.NewOrchestrator(gateway, profile, opts...)
}

// RunList runs a batch over a pasted statement list
func (p *Pipeline) RunList(ctx context.Context, req Request, input string) (*batch.Outcome, error) {
	profile, err := p.begin(req)
	if err != nil {
		return nil, err
	}

	if req.Mode == ModeIndividual {
		commands, err := parse.ListWithRanksAndReasons(input)
		if err != nil {
			return nil, err
		}
		return p.Orchestrator(profile, req.AccessToken).EditRank(ctx, commands, req.Summary)
	}

	ids, err := parse.List(input)
	if err != nil {
		return nil, err
	}
	return p.runCollective(ctx, profile, req, ids)
}

// RunQuery runs a batch over the results of a SPARQL query
func (p *Pipeline) RunQuery(ctx context.Context, req Request, query string) (*batch.Outcome, error) {
	profile, err := p.begin(req)
	if err != nil {
		return nil, err
	}
	if !profile.HasQueryService() && p.queryEndpoint == "" {
		return nil, errors.Wrapf(ErrNoQueryService, "%s", profile.Host)
	}

	results, err := p.Query(ctx, profile, query)
	if err != nil {
		return nil, err
	}

	if req.Mode == ModeIndividual {
		commands, err := parse.QueryRanksAndReasons(results, profile)
		if err != nil {
			return nil, err
		}
		return p.Orchestrator(profile, req.AccessToken).EditRank(ctx, commands, req.Summary)
	}

	ids, err := parse.QueryStatementIDs(results, profile)
	if err != nil {
		return nil, err
	}
	return p.runCollective(ctx, profile, req, ids)
}

// Query runs query against the query service of profile
func (p *Pipeline) Query(ctx context.Context, profile wiki.Profile, query string) (*sparql.Results, error) {
	endpoint := p.queryEndpoint
	if endpoint == "" {
		endpoint = profile.QueryServiceEndpoint()
	}
	return p.sparql.Query(ctx, endpoint, query)
}

// Edit changes statements of one property of one entity. A "File:" title
// is accepted in place of a MediaInfo entity ID.
func (p *Pipeline) Edit(ctx context.Context, host, accessToken string, edit batch.SingleEdit) (batch.EntityResult, error) {
	profile, err := p.begin(Request{Wiki: host, AccessToken: accessToken})
	if err != nil {
		return batch.EntityResult{}, err
	}

	if strings.HasPrefix(edit.EntityID, "File:") {
		entityID, err := mwapi.ResolveFilePage(ctx, p.AnonymousClient(profile), edit.EntityID)
		if err != nil {
			return batch.EntityResult{}, err
		}
		edit.EntityID = entityID
	}

	return p.Orchestrator(profile, accessToken).EditSingle(ctx, edit)
}

// begin resolves the wiki and requires credentials before any input is parsed
func (p *Pipeline) begin(req Request) (wiki.Profile, error) {
	profile, err := p.Profile(req.Wiki)
	if err != nil {
		return wiki.Profile{}, err
	}
	if req.AccessToken == "" {
		return wiki.Profile{}, batch.ErrNotAuthenticated
	}
	return profile, nil
}

func (p *Pipeline) runCollective(ctx context.Context, profile wiki.Profile, req Request, ids *model.StatementIDs) (*batch.Outcome, error) {
	o := p.Orchestrator(profile, req.AccessToken)
	switch req.Mode {
	case ModeSet:
		return o.SetRank(ctx, ids, req.Rank, req.Reason, req.Summary)
	case ModeIncrement:
		return o.IncrementRank(ctx, ids, req.Reason, req.Summary)
	default:
		return nil, errors.AssertionFailedf("unexpected batch mode %d", req.Mode)
	}
}

// Labels returns the cached HTML labels of ids; entities that cannot be
// formatted are left out
func (p *Pipeline) Labels(ctx context.Context, profile wiki.Profile, ids []string) map[string]string {
	formatter := p.Formatter(profile)
	if formatter == nil {
		return nil
	}

	labels := make(map[string]string, len(ids))
	for _, id := range ids {
		label, err := formatter.FormatEntity(ctx, id)
		if err != nil {
			p.log.Debug().Err(err).Str("entity", id).Msg("no label")
			continue
		}
		labels[id] = label
	}
	return labels
}
