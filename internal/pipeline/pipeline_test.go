package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ranker/internal/batch"
	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/parse"
	"github.com/ppiankov/ranker/internal/wiki"
)

// fakeWiki answers the subset of the action API and SPARQL endpoint the
// pipeline uses. Entities are keyed by ID; each holds P31 statements by ID
// with their rank.
type fakeWiki struct {
	mu       sync.Mutex
	entities map[string]map[string]string
	revs     map[string]int64
	reject   map[string]bool
	sparql   string
	saves    []url.Values
}

func newFakeWiki() *fakeWiki {
	return &fakeWiki{
		entities: make(map[string]map[string]string),
		revs:     make(map[string]int64),
		reject:   make(map[string]bool),
	}
}

func (f *fakeWiki) add(entityID string, rev int64, statements map[string]string) {
	f.entities[entityID] = statements
	f.revs[entityID] = rev
}

func (f *fakeWiki) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/sparql" {
		_, _ = w.Write([]byte(f.sparql))
		return
	}

	_ = r.ParseForm()
	switch r.Form.Get("action") {
	case "query":
		token := `+\`
		if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			token = `tok+\`
		}
		writeJSON(w, map[string]any{"query": map[string]any{"tokens": map[string]string{"csrftoken": token}}})
	case "wbgetentities":
		entities := map[string]any{}
		for _, id := range strings.Split(r.Form.Get("ids"), "|") {
			statements, ok := f.entities[id]
			if !ok {
				entities[id] = map[string]any{"id": id, "missing": true}
				continue
			}
			var claims []any
			for sid, rank := range statements {
				claims = append(claims, map[string]any{
					"id":       sid,
					"rank":     rank,
					"type":     "statement",
					"mainsnak": map[string]any{"snaktype": "somevalue", "property": "P31"},
				})
			}
			entities[id] = map[string]any{"id": id, "type": "item", "lastrevid": f.revs[id], "claims": map[string]any{"P31": claims}}
		}
		writeJSON(w, map[string]any{"entities": entities})
	case "wbeditentity":
		id := r.PostForm.Get("id")
		f.saves = append(f.saves, r.PostForm)
		if f.reject[id] {
			writeJSON(w, map[string]any{"error": map[string]string{"code": "editconflict", "info": "Edit conflict."}})
			return
		}
		f.revs[id]++
		writeJSON(w, map[string]any{"success": 1, "entity": map[string]any{"id": id, "lastrevid": f.revs[id]}})
	case "wbformatentities":
		labels := map[string]string{}
		for _, id := range strings.Split(r.Form.Get("ids"), "|") {
			labels[id] = "label of " + id
		}
		writeJSON(w, map[string]any{"wbformatentities": labels})
	default:
		http.Error(w, "unexpected request", http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestPipeline(t *testing.T, f *fakeWiki) *Pipeline {
	t.Helper()
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	cfg := model.DefaultConfig()
	cfg.RateLimiting.RequestsPerSecond = 1000
	cfg.RateLimiting.Burst = 100
	return NewPipeline(cfg,
		WithHTTPClient(server.Client()),
		WithAPIBaseURL(server.URL),
		WithQueryEndpoint(server.URL+"/sparql"),
	)
}

func TestRunList_SetRank(t *testing.T) {
	f := newFakeWiki()
	f.add("Q1", 10, map[string]string{"Q1$a": "normal", "Q1$b": "preferred"})
	f.add("Q2", 20, map[string]string{"Q2$a": "normal"})
	f.add("Q3", 30, map[string]string{"Q3$a": "preferred"})
	f.reject["Q2"] = true
	p := newTestPipeline(t, f)

	outcome, err := p.RunList(context.Background(), Request{
		Wiki:        "www.wikidata.org",
		Mode:        ModeSet,
		Rank:        model.RankPreferred,
		Reason:      "Q42",
		AccessToken: "secret",
	}, "Q1$a\nq1$b\n\nQ2$a\nQ3$a\n")
	require.NoError(t, err)

	require.Len(t, outcome.Edited(), 1)
	assert.Equal(t, "Q1", outcome.Edited()[0].EntityID)
	assert.Equal(t, int64(11), outcome.Edited()[0].RevisionID)
	require.Len(t, outcome.Errors(), 1)
	assert.Equal(t, "Q2", outcome.Errors()[0].EntityID)
	require.Len(t, outcome.NoOps(), 1)
	assert.Equal(t, "Q3", outcome.NoOps()[0].EntityID)

	require.Len(t, f.saves, 2)
	save := f.saves[0]
	assert.Equal(t, "Q1", save.Get("id"))
	assert.Equal(t, "10", save.Get("baserevid"))
	assert.Equal(t, "Set rank of 1 statement to preferred (reason: [[Q42]])", save.Get("summary"))

	var data model.EntityPatch
	require.NoError(t, json.Unmarshal([]byte(save.Get("data")), &data))
	require.Len(t, data.Claims["P31"], 1)
	assert.Equal(t, "Q1$a", data.Claims["P31"][0].ID)
	assert.Contains(t, data.Claims["P31"][0].Qualifiers, wiki.ReasonForPreferredRank)

	labels := p.Labels(context.Background(), wikidataProfile(t), outcome.EntityIDs())
	assert.Equal(t, "label of Q2", labels["Q2"])
}

func TestRunList_MalformedInputFailsBeforeNetwork(t *testing.T) {
	f := newFakeWiki()
	p := newTestPipeline(t, f)

	_, err := p.RunList(context.Background(), Request{
		Wiki:        "www.wikidata.org",
		Mode:        ModeIncrement,
		AccessToken: "secret",
	}, "Q1$a\nnot a statement\n")

	var inputErr *parse.InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, 2, inputErr.Line)
	assert.Empty(t, f.saves)
}

func TestRunList_RequiresToken(t *testing.T) {
	p := newTestPipeline(t, newFakeWiki())

	_, err := p.RunList(context.Background(), Request{Wiki: "www.wikidata.org", Mode: ModeIncrement}, "Q1$a")
	assert.True(t, errors.Is(err, batch.ErrNotAuthenticated))
}

func TestRunList_BadWiki(t *testing.T) {
	p := newTestPipeline(t, newFakeWiki())

	_, err := p.RunList(context.Background(), Request{Wiki: "en.wikipedia.org", AccessToken: "secret"}, "Q1$a")
	var badWiki *wiki.BadWikiError
	assert.True(t, errors.As(err, &badWiki))
}

func TestRunList_Individual(t *testing.T) {
	f := newFakeWiki()
	f.add("Q1", 5, map[string]string{"Q1$aaa": "normal", "Q1$bbb": "deprecated"})
	p := newTestPipeline(t, f)

	outcome, err := p.RunList(context.Background(), Request{
		Wiki:        "www.wikidata.org",
		Mode:        ModeIndividual,
		Summary:     "  cleanup  ",
		AccessToken: "secret",
	}, "Q1$aaa|preferred|Q9\nQ1$bbb\tnormal")
	require.NoError(t, err)

	require.Len(t, outcome.Edited(), 1)
	assert.Equal(t, 2, outcome.Edited()[0].Edited)
	assert.Equal(t, "Edited rank of 2 statements: cleanup", f.saves[0].Get("summary"))
}

func TestRunQuery_Increment(t *testing.T) {
	f := newFakeWiki()
	f.add("Q1", 5, map[string]string{"Q1$dcf39f47-4275-6529-96f5-94808c2a81ac": "deprecated"})
	f.sparql = `{"head":{"vars":["statement"]},"results":{"bindings":[
		{"statement":{"type":"uri","value":"http://www.wikidata.org/entity/statement/Q1-dcf39f47-4275-6529-96f5-94808c2a81ac"}}
	]}}`
	p := newTestPipeline(t, f)

	outcome, err := p.RunQuery(context.Background(), Request{
		Wiki:        "www.wikidata.org",
		Mode:        ModeIncrement,
		AccessToken: "secret",
	}, "SELECT ?statement WHERE {}")
	require.NoError(t, err)
	require.Len(t, outcome.Edited(), 1)
	assert.Equal(t, "Incremented rank of 1 statement", f.saves[0].Get("summary"))
}

func TestRunQuery_MissingVariable(t *testing.T) {
	f := newFakeWiki()
	f.sparql = `{"head":{"vars":["item"]},"results":{"bindings":[]}}`
	p := newTestPipeline(t, f)

	_, err := p.RunQuery(context.Background(), Request{
		Wiki:        "www.wikidata.org",
		Mode:        ModeIndividual,
		AccessToken: "secret",
	}, "SELECT ?item WHERE {}")
	assert.True(t, errors.Is(err, parse.ErrMissingVariable))
}

func TestRunQuery_ConfiguredEndpoint(t *testing.T) {
	f := newFakeWiki()
	f.add("M5", 3, map[string]string{"M5$dcf39f47-4275-6529-96f5-94808c2a81ac": "normal"})
	f.sparql = `{"head":{"vars":["statement"]},"results":{"bindings":[
		{"statement":{"type":"uri","value":"https://test-commons.wikimedia.org/entity/statement/M5-dcf39f47-4275-6529-96f5-94808c2a81ac"}}
	]}}`
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	cfg := model.DefaultConfig()
	cfg.Query.Endpoints = []model.QueryEndpointConfig{
		{Wiki: "test-commons.wikimedia.org", URL: server.URL + "/sparql"},
	}
	p := NewPipeline(cfg, WithHTTPClient(server.Client()), WithAPIBaseURL(server.URL))

	profile, err := p.Profile("test-commons.wikimedia.org")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/sparql", profile.QueryServiceEndpoint())

	outcome, err := p.RunQuery(context.Background(), Request{
		Wiki:        "test-commons.wikimedia.org",
		Mode:        ModeIncrement,
		AccessToken: "secret",
	}, "SELECT ?statement WHERE {}")
	require.NoError(t, err)
	require.Len(t, outcome.Edited(), 1)
	assert.Equal(t, "M5", outcome.Edited()[0].EntityID)
}

func TestRunQuery_NoQueryService(t *testing.T) {
	cfg := model.DefaultConfig()
	p := NewPipeline(cfg)

	_, err := p.RunQuery(context.Background(), Request{
		Wiki:        "test.wikidata.org",
		Mode:        ModeIncrement,
		AccessToken: "secret",
	}, "SELECT ?statement WHERE {}")
	assert.True(t, errors.Is(err, ErrNoQueryService))
}

func TestEdit_NoOpWithoutSave(t *testing.T) {
	f := newFakeWiki()
	f.add("Q1", 7, map[string]string{"Q1$a": "preferred"})
	p := newTestPipeline(t, f)

	result, err := p.Edit(context.Background(), "www.wikidata.org", "secret", batch.SingleEdit{
		EntityID:     "Q1",
		PropertyID:   "P31",
		StatementIDs: []string{"Q1$a"},
		Rank:         model.RankPreferred,
	})
	require.NoError(t, err)
	assert.Equal(t, batch.StatusNoOp, result.Status)
	assert.Equal(t, int64(7), result.BaseRevisionID)
	assert.Empty(t, f.saves)
}

func wikidataProfile(t *testing.T) wiki.Profile {
	t.Helper()
	profile, err := wiki.Lookup("www.wikidata.org")
	require.NoError(t, err)
	return profile
}

func TestRunCollective_UnknownMode(t *testing.T) {
	p := newTestPipeline(t, newFakeWiki())
	_, err := p.runCollective(context.Background(), wikidataProfile(t), Request{Mode: Mode(42)}, model.NewGrouped[[]string]())
	assert.True(t, errors.HasAssertionFailure(err))
}
