package wiki

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/ranker/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, host := range Hosts() {
		p, err := Lookup(host)
		require.NoError(t, err)
		assert.Equal(t, host, p.Host)
	}

	_, err := Lookup("en.wikipedia.org")
	var badWiki *BadWikiError
	require.True(t, errors.As(err, &badWiki))
	assert.Equal(t, "en.wikipedia.org", badWiki.Wiki)
	assert.Contains(t, err.Error(), "www.wikidata.org")
	assert.Contains(t, err.Error(), "test-commons.wikimedia.org")
}

func TestProfile_ReasonProperty(t *testing.T) {
	tests := []struct {
		host      string
		rank      model.Rank
		property  string
		cannotSet bool
	}{
		{"www.wikidata.org", model.RankPreferred, "P7452", false},
		{"www.wikidata.org", model.RankDeprecated, "P2241", false},
		{"www.wikidata.org", model.RankNormal, "", true},
		{"commons.wikimedia.org", model.RankPreferred, "P7452", false},
		{"commons.wikimedia.org", model.RankDeprecated, "P2241", false},
		{"test.wikidata.org", model.RankPreferred, "", true},
		{"test-commons.wikimedia.org", model.RankDeprecated, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.host+"/"+tt.rank.String(), func(t *testing.T) {
			p, err := Lookup(tt.host)
			require.NoError(t, err)

			property, err := p.ReasonProperty(tt.rank)
			if tt.cannotSet {
				var cannot *CannotSetReasonError
				require.True(t, errors.As(err, &cannot))
				assert.Equal(t, tt.rank, cannot.Rank)
				assert.Equal(t, tt.host, cannot.Wiki)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.property, property)
		})
	}
}

func TestProfile_ReasonProperties(t *testing.T) {
	p, _ := Lookup("commons.wikimedia.org")
	assert.Equal(t, []string{"P7452", "P2241"}, p.ReasonProperties())

	p, _ = Lookup("test.wikidata.org")
	assert.Empty(t, p.ReasonProperties())
}

func TestProfile_QueryService(t *testing.T) {
	p, _ := Lookup("www.wikidata.org")
	assert.True(t, p.HasQueryService())
	assert.Equal(t, "https://query.wikidata.org/sparql", p.QueryServiceEndpoint())
	assert.Equal(t, "https://query.wikidata.org/", p.QueryServiceURL())
	assert.Equal(t, "Wikidata Query Service", p.QueryServiceName())

	p, _ = Lookup("commons.wikimedia.org")
	assert.True(t, p.HasQueryService())
	assert.Equal(t, "https://wcqs-beta.wmflabs.org/sparql", p.QueryServiceEndpoint())
	assert.Equal(t, "Wikimedia Commons Query Service", p.QueryServiceName())

	for _, host := range []string{"test.wikidata.org", "test-commons.wikimedia.org"} {
		p, _ := Lookup(host)
		assert.False(t, p.HasQueryService(), host)
		assert.Empty(t, p.QueryServiceEndpoint(), host)
	}
}

func TestProfile_WithQueryEndpoint(t *testing.T) {
	commons, _ := Lookup("commons.wikimedia.org")
	overridden, err := commons.WithQueryEndpoint("https://commons-query.wikimedia.org/sparql")
	require.NoError(t, err)
	assert.Equal(t, "https://commons-query.wikimedia.org/sparql", overridden.QueryServiceEndpoint())
	assert.Equal(t, "Wikimedia Commons Query Service", overridden.QueryServiceName())

	fresh, _ := Lookup("commons.wikimedia.org")
	assert.Equal(t, "https://wcqs-beta.wmflabs.org/sparql", fresh.QueryServiceEndpoint())

	testCommons, _ := Lookup("test-commons.wikimedia.org")
	overridden, err = testCommons.WithQueryEndpoint("http://localhost:9999/bigdata/sparql")
	require.NoError(t, err)
	assert.True(t, overridden.HasQueryService())
	assert.Equal(t, "localhost:9999", overridden.QueryServiceName())

	_, err = testCommons.WithQueryEndpoint("not a url")
	assert.Error(t, err)
}

func TestProfile_URLs(t *testing.T) {
	p, _ := Lookup("commons.wikimedia.org")
	assert.Equal(t, "https://commons.wikimedia.org/w/api.php", p.APIURL())
	assert.Equal(t, "https://commons.wikimedia.org/w/index.php", p.IndexURL())
	assert.Equal(t, "https://commons.wikimedia.org/wiki/Special:EntityData/M123.json?revision=42", p.EntityDataURL("M123", 42))
	assert.Equal(t, "https://commons.wikimedia.org/wiki/Special:EntityData/M123.json", p.EntityDataURL("M123", 0))
	assert.Equal(t, "d:Special:EntityPage/", p.SummaryReasonPrefix)
	assert.Equal(t, "www.wikidata.org", p.ItemHost)
}
