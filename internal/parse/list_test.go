package parse

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ranker/internal/model"
)

func TestList(t *testing.T) {
	input := "Q1$123\nQ2$123\n\nQ1$456\r\nq2$456\n  P3$123  \n"

	grouped, err := List(input)
	require.NoError(t, err)

	assert.Equal(t, []string{"Q1", "Q2", "P3"}, grouped.EntityIDs())
	q1, _ := grouped.Get("Q1")
	assert.Equal(t, []string{"Q1$123", "Q1$456"}, q1)
	q2, _ := grouped.Get("Q2")
	assert.Equal(t, []string{"Q2$123", "q2$456"}, q2)
	p3, _ := grouped.Get("P3")
	assert.Equal(t, []string{"P3$123"}, p3)
}

func TestList_LexemeSubEntities(t *testing.T) {
	grouped, err := List("L1-S1$b5a7d210-4269-b5ec-68ea-9d56b8a73f46\nL1$abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"L1-S1", "L1"}, grouped.EntityIDs())
}

func TestList_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"no separator", "Q1$123\nQ1-456", 2},
		{"bad entity", "\n\nfoo$bar", 3},
		{"no guid", "Q1$", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := List(tt.input)

			var inputErr *InputError
			require.True(t, errors.As(err, &inputErr))
			assert.Equal(t, tt.line, inputErr.Line)
			assert.True(t, errors.Is(err, model.ErrMalformedStatementID))
		})
	}
}

func TestList_Empty(t *testing.T) {
	grouped, err := List("\n   \n")
	require.NoError(t, err)
	assert.Equal(t, 0, grouped.Len())
}

func TestListWithRanksAndReasons(t *testing.T) {
	input := "Q1$123|normal\nQ2$123|deprecated|Q123\nQ1$456\tpreferred\tQ456\nq2$456\tnormal|Q789\nP3$123|preferred|\n"

	grouped, err := ListWithRanksAndReasons(input)
	require.NoError(t, err)

	assert.Equal(t, []string{"Q1", "Q2", "P3"}, grouped.EntityIDs())

	q1, _ := grouped.Get("Q1")
	assert.Equal(t, map[string]model.RankCommand{
		"Q1$123": {Rank: model.RankNormal, Reason: ""},
		"Q1$456": {Rank: model.RankPreferred, Reason: "Q456"},
	}, q1)

	q2, _ := grouped.Get("Q2")
	assert.Equal(t, map[string]model.RankCommand{
		"Q2$123": {Rank: model.RankDeprecated, Reason: "Q123"},
		"q2$456": {Rank: model.RankNormal, Reason: "Q789"},
	}, q2)

	p3, _ := grouped.Get("P3")
	assert.Equal(t, map[string]model.RankCommand{
		"P3$123": {Rank: model.RankPreferred, Reason: ""},
	}, p3)
}

func TestListWithRanksAndReasons_IgnoresTrailingFields(t *testing.T) {
	grouped, err := ListWithRanksAndReasons("Q1$aaa|preferred|Q9|see talk page\nQ1$bbb|normal||\nQ2$ccc\tdeprecated\tQ7\t")
	require.NoError(t, err)

	q1, _ := grouped.Get("Q1")
	assert.Equal(t, map[string]model.RankCommand{
		"Q1$aaa": {Rank: model.RankPreferred, Reason: "Q9"},
		"Q1$bbb": {Rank: model.RankNormal, Reason: ""},
	}, q1)

	q2, _ := grouped.Get("Q2")
	assert.Equal(t, map[string]model.RankCommand{
		"Q2$ccc": {Rank: model.RankDeprecated, Reason: "Q7"},
	}, q2)
}

func TestListWithRanksAndReasons_Errors(t *testing.T) {
	t.Run("bad rank", func(t *testing.T) {
		_, err := ListWithRanksAndReasons("Q1$a|normal\nQ1$b|best")

		var inputErr *InputError
		require.True(t, errors.As(err, &inputErr))
		assert.Equal(t, 2, inputErr.Line)

		var badRank *model.BadRankError
		require.True(t, errors.As(err, &badRank))
		assert.Equal(t, "best", badRank.Rank)
	})

	t.Run("missing rank", func(t *testing.T) {
		_, err := ListWithRanksAndReasons("Q1$a")
		var inputErr *InputError
		require.True(t, errors.As(err, &inputErr))
		assert.Equal(t, 1, inputErr.Line)
	})

	t.Run("reason not an item", func(t *testing.T) {
		_, err := ListWithRanksAndReasons("Q1$a|preferred|P31")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not an item ID")
	})

	t.Run("extra field", func(t *testing.T) {
		_, err := ListWithRanksAndReasons("Q1$a|preferred|Q1|Q2")
		require.Error(t, err)
	})
}
