package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Rank is the quality marker of a statement
type Rank int

const (
	RankDeprecated Rank = iota
	RankNormal
	RankPreferred
)

// AllRanks lists the ranks in increasing order
var AllRanks = []Rank{RankDeprecated, RankNormal, RankPreferred}

// Ontology URIs used by the query services for ranks
const (
	DeprecatedRankURI = "http://wikiba.se/ontology#DeprecatedRank"
	NormalRankURI     = "http://wikiba.se/ontology#NormalRank"
	PreferredRankURI  = "http://wikiba.se/ontology#PreferredRank"
)

func (r Rank) String() string {
	switch r {
	case RankDeprecated:
		return "deprecated"
	case RankNormal:
		return "normal"
	case RankPreferred:
		return "preferred"
	default:
		return fmt.Sprintf("Rank(%d)", int(r))
	}
}

// Valid reports whether r is one of the three known ranks
func (r Rank) Valid() bool {
	return r >= RankDeprecated && r <= RankPreferred
}

// Increment returns the next higher rank, saturating at preferred
func (r Rank) Increment() Rank {
	switch r {
	case RankDeprecated:
		return RankNormal
	default:
		return RankPreferred
	}
}

// BadRankError reports a rank token that is not one of the allowed ranks
type BadRankError struct {
	Rank string
}

func (e *BadRankError) Error() string {
	names := make([]string, len(AllRanks))
	for i, r := range AllRanks {
		names[i] = r.String()
	}
	return fmt.Sprintf("invalid rank %q, allowed ranks are: %s", e.Rank, strings.Join(names, ", "))
}

// ParseRank parses the lower-case name of a rank
func ParseRank(s string) (Rank, error) {
	switch s {
	case "deprecated":
		return RankDeprecated, nil
	case "normal":
		return RankNormal, nil
	case "preferred":
		return RankPreferred, nil
	}
	return 0, &BadRankError{Rank: s}
}

// RankFromURI maps a wikibase ontology rank URI to a Rank
func RankFromURI(uri string) (Rank, error) {
	switch uri {
	case DeprecatedRankURI:
		return RankDeprecated, nil
	case NormalRankURI:
		return RankNormal, nil
	case PreferredRankURI:
		return RankPreferred, nil
	}
	return 0, errors.Newf("unknown rank URI %q", uri)
}

// MarshalJSON encodes the rank as its name
func (r Rank) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, errors.Newf("cannot marshal %s", r)
	}
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a rank name
func (r *Rank) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decode rank")
	}
	parsed, err := ParseRank(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
