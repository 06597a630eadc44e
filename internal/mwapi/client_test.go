package mwapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/wiki"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	profile, err := wiki.Lookup("test.wikidata.org")
	require.NoError(t, err)

	opts = append([]Option{WithBaseURL(server.URL)}, opts...)
	return NewClient(profile, server.Client(), "test-agent", 1<<20, opts...)
}

func TestClient_GetSetsFormatAndUserAgent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wiki.APIPath, r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "2", r.URL.Query().Get("formatversion"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = fmt.Fprint(w, `{"ok":true}`)
	})

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.Get(context.Background(), map[string][]string{"action": {"query"}}, &out))
	assert.True(t, out.OK)
}

func TestClient_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"error":{"code":"badtoken","info":"Invalid CSRF token."}}`)
	})

	err := client.Get(context.Background(), map[string][]string{"action": {"query"}}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "badtoken", apiErr.Code)
	assert.Equal(t, "api error badtoken: Invalid CSRF token.", apiErr.Error())
}

func TestClient_HTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.Get(context.Background(), map[string][]string{"action": {"query"}}, nil)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}

func TestNewAuthenticatedClient_SendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	profile, err := wiki.Lookup("www.wikidata.org")
	require.NoError(t, err)

	client := NewAuthenticatedClient(profile, server.Client(), "test-agent", 1<<20, "secret", WithBaseURL(server.URL))
	require.NoError(t, client.Get(context.Background(), map[string][]string{"action": {"query"}}, nil))
}

func TestGetEntities_ChunksAndDeduplicates(t *testing.T) {
	var requests atomic.Int32
	var mu sync.Mutex
	var seen []string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "wbgetentities", r.URL.Query().Get("action"))
		ids := strings.Split(r.URL.Query().Get("ids"), "|")
		assert.LessOrEqual(t, len(ids), EntitiesChunkSize)

		mu.Lock()
		seen = append(seen, ids...)
		mu.Unlock()

		entities := make(map[string]any, len(ids))
		for _, id := range ids {
			if id == "Q7" {
				entities[id] = map[string]any{"id": id, "missing": true}
				continue
			}
			entities[id] = map[string]any{"id": id, "type": "item", "lastrevid": 100, "claims": []any{}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"entities": entities})
	}, WithFetchParallel(2))

	var ids []string
	for i := 1; i <= 120; i++ {
		ids = append(ids, fmt.Sprintf("Q%d", i))
	}
	ids = append(ids, "Q1", "Q2")

	entities, err := client.GetEntities(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, int32(3), requests.Load())
	assert.Len(t, seen, 120)
	assert.Len(t, entities, 120)
	assert.True(t, entities["Q7"].Missing)
	assert.Equal(t, int64(100), entities["Q1"].LastRevID)
	assert.NotNil(t, entities["Q1"].Statements)
}

func TestGetEntities_FillsUnreportedIDs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"entities":{}}`)
	})

	entities, err := client.GetEntities(context.Background(), []string{"Q1"})
	require.NoError(t, err)
	require.Contains(t, entities, "Q1")
	assert.True(t, entities["Q1"].Missing)
}

func TestGetEntityRevision(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wiki/Special:EntityData/M5.json", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("revision"))
		_, _ = fmt.Fprint(w, `{"entities":{"M5":{"id":"M5","type":"mediainfo","lastrevid":42,
			"statements":{"P180":[{"id":"M5$1","rank":"normal","mainsnak":{"snaktype":"somevalue","property":"P180"}}]}}}}`)
	})

	entity, err := client.GetEntityRevision(context.Background(), "M5", 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), entity.LastRevID)
	require.Len(t, entity.Statements["P180"], 1)
	assert.Equal(t, model.RankNormal, entity.Statements["P180"][0].Rank)
}

func TestGetEntityRevision_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetEntityRevision(context.Background(), "Q1", 1)
	assert.True(t, errors.Is(err, ErrEntityNotFound))
}

func TestTokenCache_FetchesOncePerHost(t *testing.T) {
	var requests atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "tokens", r.URL.Query().Get("meta"))
		_, _ = fmt.Fprint(w, `{"query":{"tokens":{"csrftoken":"abc+\\"}}}`)
	})

	tokens := NewTokenCache()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := tokens.EditToken(context.Background(), client)
			assert.NoError(t, err)
			assert.Equal(t, `abc+\`, token)
		}()
	}
	wg.Wait()

	_, err := tokens.EditToken(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load())
}

func TestTokenCache_AnonymousToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"query":{"tokens":{"csrftoken":"+\\"}}}`)
	})

	_, err := NewTokenCache().EditToken(context.Background(), client)
	assert.True(t, errors.Is(err, ErrNotLoggedIn))
}

func TestGateway_SaveEntity(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = fmt.Fprint(w, `{"query":{"tokens":{"csrftoken":"tok+\\"}}}`)
			return
		}

		require.NoError(t, r.ParseForm())
		form := r.PostForm

		assert.Equal(t, "wbeditentity", form.Get("action"))
		assert.Equal(t, "M5", form.Get("id"))
		assert.Equal(t, "41", form.Get("baserevid"))
		assert.Equal(t, `tok+\`, form.Get("token"))
		assert.Equal(t, "user", form.Get("assert"))
		assert.Equal(t, "Set rank of 1 statement to preferred", form.Get("summary"))

		var data map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(form.Get("data")), &data))
		assert.Contains(t, data, "claims")
		assert.NotContains(t, data, "statements")

		_, _ = fmt.Fprint(w, `{"success":1,"entity":{"id":"M5","lastrevid":42}}`)
	})

	gateway := NewGateway(client, NewTokenCache())
	patch := model.EntityPatch{
		ID: "M5",
		Claims: model.StatementGroups{
			"P180": {{ID: "M5$1", Rank: model.RankPreferred}},
		},
	}
	rev, err := gateway.SaveEntity(context.Background(), patch, "Set rank of 1 statement to preferred", 41)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rev)
}

func TestGateway_SaveEntityRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = fmt.Fprint(w, `{"query":{"tokens":{"csrftoken":"tok+\\"}}}`)
			return
		}
		_, _ = fmt.Fprint(w, `{"error":{"code":"editconflict","info":"Edit conflict."}}`)
	})

	gateway := NewGateway(client, NewTokenCache())
	_, err := gateway.SaveEntity(context.Background(), model.EntityPatch{ID: "Q1"}, "summary", 7)

	var saveErr *SaveError
	require.True(t, errors.As(err, &saveErr))
	assert.Equal(t, "Q1", saveErr.EntityID)
	assert.Equal(t, int64(7), saveErr.BaseRevisionID)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "editconflict", apiErr.Code)
}

func TestResolveFilePage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("titles") {
		case "File:Example.jpg":
			_, _ = fmt.Fprint(w, `{"query":{"pages":[{"pageid":123,"ns":6,"title":"File:Example.jpg"}]}}`)
		default:
			_, _ = fmt.Fprint(w, `{"query":{"pages":[{"ns":6,"title":"File:Nope.jpg","missing":true}]}}`)
		}
	})

	id, err := ResolveFilePage(context.Background(), client, "File:Example.jpg")
	require.NoError(t, err)
	assert.Equal(t, "M123", id)

	_, err = ResolveFilePage(context.Background(), client, "File:Nope.jpg")
	assert.True(t, errors.Is(err, ErrNoSuchPage))

	_, err = ResolveFilePage(context.Background(), client, "Example.jpg")
	assert.Error(t, err)
}

func TestURLs(t *testing.T) {
	assert.Equal(t, "https://www.wikidata.org/w/index.php?diff=11&oldid=10", DiffURL("www.wikidata.org", 10, 11))
	assert.Equal(t, "https://www.wikidata.org/w/index.php?oldid=10", PermalinkURL("www.wikidata.org", 10))
}
