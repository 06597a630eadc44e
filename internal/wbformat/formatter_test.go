package wbformat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ranker/internal/cache"
	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/mwapi"
	"github.com/ppiankov/ranker/internal/wiki"
)

func newTestFormatter(t *testing.T, handler http.HandlerFunc) *Formatter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	profile, err := wiki.Lookup("www.wikidata.org")
	require.NoError(t, err)
	client := mwapi.NewClient(profile, server.Client(), "test-agent", 1<<20, mwapi.WithBaseURL(server.URL))
	return NewFormatter(client, cache.NewMemoryCache(time.Hour, time.Minute), "en", 0)
}

func labelsHandler(calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		formatted := map[string]string{}
		for _, id := range strings.Split(r.URL.Query().Get("ids"), "|") {
			formatted[id] = "label of " + id
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"wbformatentities": formatted})
	}
}

func TestPrefetchEntities_Chunks(t *testing.T) {
	var calls atomic.Int32
	f := newTestFormatter(t, labelsHandler(&calls))

	var ids []string
	for i := 1; i < 60; i++ {
		ids = append(ids, fmt.Sprintf("P%d", i), fmt.Sprintf("Q%d", i))
	}
	require.NoError(t, f.PrefetchEntities(context.Background(), ids))
	assert.Equal(t, int32(3), calls.Load())

	label, err := f.FormatEntity(context.Background(), "Q59")
	require.NoError(t, err)
	assert.Equal(t, "label of Q59", label)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPrefetchEntities_SkipsCached(t *testing.T) {
	var calls atomic.Int32
	f := newTestFormatter(t, labelsHandler(&calls))

	_, err := f.FormatEntity(context.Background(), "Q1")
	require.NoError(t, err)
	require.NoError(t, f.PrefetchEntities(context.Background(), []string{"Q1"}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFormatValue_UnlinksAndCaches(t *testing.T) {
	var calls atomic.Int32
	f := newTestFormatter(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "wbformatvalue", r.URL.Query().Get("action"))
		assert.Equal(t, "text/html", r.URL.Query().Get("generate"))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"result": `<a title="Q5" href="/wiki/Q5">human</a> &amp; more`,
		})
	})

	value := model.NewItemSnak("P31", "Q5").DataValue
	out, err := f.FormatValue(context.Background(), "P31", value)
	require.NoError(t, err)
	assert.Equal(t, `<span title="Q5">human</span> &amp; more`, out)

	_, err = f.FormatValue(context.Background(), "P31", value)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnlink_EscapesText(t *testing.T) {
	out, err := unlink(`&lt;script&gt;alert("!Mediengruppe Bitnik");&lt;/script&gt;`)
	require.NoError(t, err)
	assert.Equal(t, `&lt;script&gt;alert(&#34;!Mediengruppe Bitnik&#34;);&lt;/script&gt;`, out)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "instance of", PlainText(`<a title="Property:P31" href="https://www.wikidata.org/wiki/Property:P31">instance of</a>`))
	assert.Equal(t, "a & b", PlainText(`a &amp; <b>b</b>`))
	assert.Equal(t, "", PlainText(""))
}
