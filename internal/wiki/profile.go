// Package wiki describes the wikis ranker can edit and the per-wiki settings
// that rank editing depends on.
package wiki

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ppiankov/ranker/internal/model"
)

// Reason qualifier properties defined on Wikidata
const (
	ReasonForPreferredRank  = "P7452"
	ReasonForDeprecatedRank = "P2241"
)

// QueryService is a SPARQL endpoint attached to a wiki
type QueryService struct {
	Host     string // e.g. query.wikidata.org
	Name     string // Human-readable name
	Endpoint string // SPARQL endpoint URL, empty for https://<Host>/sparql
}

// Profile holds everything that differs between supported wikis
type Profile struct {
	Host                     string        // Wiki host name, e.g. www.wikidata.org
	ItemHost                 string        // Wiki that hosts the items used as reasons
	ReasonPreferredProperty  string        // Empty when undefined
	ReasonDeprecatedProperty string        // Empty when undefined
	SummaryReasonPrefix      string        // Link prefix for reasons in edit summaries
	QueryService             *QueryService // Nil when the wiki has no supported query service
}

var profiles = map[string]Profile{
	"www.wikidata.org": {
		Host:                     "www.wikidata.org",
		ItemHost:                 "www.wikidata.org",
		ReasonPreferredProperty:  ReasonForPreferredRank,
		ReasonDeprecatedProperty: ReasonForDeprecatedRank,
		QueryService: &QueryService{
			Host: "query.wikidata.org",
			Name: "Wikidata Query Service",
		},
	},
	"commons.wikimedia.org": {
		Host:                     "commons.wikimedia.org",
		ItemHost:                 "www.wikidata.org",
		ReasonPreferredProperty:  ReasonForPreferredRank,
		ReasonDeprecatedProperty: ReasonForDeprecatedRank,
		SummaryReasonPrefix:      "d:Special:EntityPage/",
		QueryService: &QueryService{
			Host: "wcqs-beta.wmflabs.org",
			Name: "Wikimedia Commons Query Service",
		},
	},
	"test.wikidata.org": {
		Host:     "test.wikidata.org",
		ItemHost: "test.wikidata.org",
	},
	"test-commons.wikimedia.org": {
		Host:                "test-commons.wikimedia.org",
		ItemHost:            "test.wikidata.org",
		SummaryReasonPrefix: "testwikidata:Special:EntityPage/",
	},
}

// BadWikiError reports a host that is not a supported wiki
type BadWikiError struct {
	Wiki string
}

func (e *BadWikiError) Error() string {
	return fmt.Sprintf("invalid wiki %q, allowed wikis are: %s", e.Wiki, strings.Join(Hosts(), ", "))
}

// CannotSetReasonError reports a reason that has no qualifier property to live in
type CannotSetReasonError struct {
	Rank model.Rank
	Wiki string
}

func (e *CannotSetReasonError) Error() string {
	return fmt.Sprintf("cannot set a reason for %s rank on %s", e.Rank, e.Wiki)
}

// Lookup returns the profile of a supported wiki
func Lookup(host string) (Profile, error) {
	p, ok := profiles[host]
	if !ok {
		return Profile{}, &BadWikiError{Wiki: host}
	}
	return p, nil
}

// Hosts returns the supported wiki hosts in sorted order
func Hosts() []string {
	hosts := make([]string, 0, len(profiles))
	for host := range profiles {
		hosts = append(hosts, host)
	}
	slices.Sort(hosts)
	return hosts
}

// ReasonProperty returns the qualifier property recording why a statement has rank
func (p Profile) ReasonProperty(rank model.Rank) (string, error) {
	var property string
	switch rank {
	case model.RankPreferred:
		property = p.ReasonPreferredProperty
	case model.RankDeprecated:
		property = p.ReasonDeprecatedProperty
	}
	if property == "" {
		return "", &CannotSetReasonError{Rank: rank, Wiki: p.Host}
	}
	return property, nil
}

// ReasonProperties returns the defined reason properties
func (p Profile) ReasonProperties() []string {
	var out []string
	for _, property := range []string{p.ReasonPreferredProperty, p.ReasonDeprecatedProperty} {
		if property != "" {
			out = append(out, property)
		}
	}
	return out
}

// HasQueryService reports whether statements can be selected by SPARQL query
func (p Profile) HasQueryService() bool {
	return p.QueryService != nil
}

// QueryServiceEndpoint returns the SPARQL endpoint URL, or "" without a query service
func (p Profile) QueryServiceEndpoint() string {
	if p.QueryService == nil {
		return ""
	}
	if p.QueryService.Endpoint != "" {
		return p.QueryService.Endpoint
	}
	return "https://" + p.QueryService.Host + "/sparql"
}

// WithQueryEndpoint returns a copy of p whose SPARQL queries go to endpoint.
// A wiki without a query service gains one named after the endpoint host.
func (p Profile) WithQueryEndpoint(endpoint string) (Profile, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Profile{}, errors.Newf("invalid query service endpoint %q for %s", endpoint, p.Host)
	}

	qs := QueryService{Host: u.Host, Name: u.Host}
	if p.QueryService != nil {
		qs = *p.QueryService
	}
	qs.Endpoint = endpoint
	p.QueryService = &qs
	return p, nil
}

// QueryServiceURL returns the user-facing query service URL
func (p Profile) QueryServiceURL() string {
	if p.QueryService == nil {
		return ""
	}
	return "https://" + p.QueryService.Host + "/"
}

// QueryServiceName returns the query service name
func (p Profile) QueryServiceName() string {
	if p.QueryService == nil {
		return ""
	}
	return p.QueryService.Name
}

// BaseURL returns the wiki origin
func (p Profile) BaseURL() string {
	return "https://" + p.Host
}

// Paths below the wiki origin
const (
	APIPath   = "/w/api.php"
	IndexPath = "/w/index.php"
)

// APIURL returns the action API endpoint
func (p Profile) APIURL() string {
	return p.BaseURL() + APIPath
}

// IndexURL returns the index.php endpoint
func (p Profile) IndexURL() string {
	return p.BaseURL() + IndexPath
}

// EntityDataPath returns the Special:EntityData JSON path of one entity
// revision. revisionID 0 selects the latest revision.
func EntityDataPath(entityID string, revisionID int64) string {
	path := "/wiki/Special:EntityData/" + url.PathEscape(entityID) + ".json"
	if revisionID > 0 {
		path += "?revision=" + strconv.FormatInt(revisionID, 10)
	}
	return path
}

// EntityDataURL returns the Special:EntityData JSON URL of one entity revision
func (p Profile) EntityDataURL(entityID string, revisionID int64) string {
	return p.BaseURL() + EntityDataPath(entityID, revisionID)
}
