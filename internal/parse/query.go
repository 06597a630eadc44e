package parse

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/sparql"
	"github.com/ppiankov/ranker/internal/wiki"
)

// Variable names recognized in query results
const (
	VarStatement               = "statement"
	VarRank                    = "rank"
	VarReason                  = "reason"
	VarReasonForPreferredRank  = "reasonForPreferredRank"
	VarReasonForDeprecatedRank = "reasonForDeprecatedRank"
)

// QueryStatementIDs groups the ?statement URIs of a result set by entity.
// Rows whose statement is unbound or not a URI are skipped.
func QueryStatementIDs(results *sparql.Results, profile wiki.Profile) (*model.StatementIDs, error) {
	if err := requireVars(results, VarStatement); err != nil {
		return nil, err
	}

	grouped := model.NewGrouped[[]string]()
	for i, row := range results.Results.Bindings {
		statement, ok := uriBinding(row, VarStatement)
		if !ok {
			continue
		}
		statementID, err := StatementIDFromURI(statement, profile)
		if err != nil {
			return nil, &InputError{Row: i + 1, Err: err}
		}
		entityID, err := model.EntityIDFromStatementID(statementID)
		if err != nil {
			return nil, &InputError{Row: i + 1, Err: err}
		}
		model.AddStatementID(grouped, entityID, statementID)
	}
	return grouped, nil
}

// QueryRanksAndReasons builds per-statement commands from ?statement and
// ?rank, with an optional reason. For preferred and deprecated rows the
// rank-specific reason variable wins over the generic ?reason.
func QueryRanksAndReasons(results *sparql.Results, profile wiki.Profile) (*model.RankCommands, error) {
	if err := requireVars(results, VarStatement, VarRank); err != nil {
		return nil, err
	}

	grouped := model.NewGrouped[map[string]model.RankCommand]()
	for i, row := range results.Results.Bindings {
		statement, ok := uriBinding(row, VarStatement)
		if !ok {
			continue
		}
		rankURI, ok := uriBinding(row, VarRank)
		if !ok {
			continue
		}

		statementID, err := StatementIDFromURI(statement, profile)
		if err != nil {
			return nil, &InputError{Row: i + 1, Err: err}
		}
		entityID, err := model.EntityIDFromStatementID(statementID)
		if err != nil {
			return nil, &InputError{Row: i + 1, Err: err}
		}
		rank, err := model.RankFromURI(rankURI)
		if err != nil {
			return nil, &InputError{Row: i + 1, Err: err}
		}
		reason, err := rowReason(row, rank, profile)
		if err != nil {
			return nil, &InputError{Row: i + 1, Err: err}
		}

		model.AddRankCommand(grouped, entityID, statementID, model.RankCommand{Rank: rank, Reason: reason})
	}
	return grouped, nil
}

func rowReason(row map[string]sparql.Binding, rank model.Rank, profile wiki.Profile) (string, error) {
	candidates := []string{VarReason}
	switch rank {
	case model.RankPreferred:
		candidates = []string{VarReasonForPreferredRank, VarReason}
	case model.RankDeprecated:
		candidates = []string{VarReasonForDeprecatedRank, VarReason}
	}

	for _, name := range candidates {
		if uri, ok := uriBinding(row, name); ok {
			return ItemIDFromURI(uri, profile)
		}
	}
	return "", nil
}

// StatementIDFromURI converts a statement node URI such as
// http://www.wikidata.org/entity/statement/L1-S1-b5a7d210-4269-b5ec-68ea-9d56b8a73f46
// into the statement ID L1-S1$b5a7d210-4269-b5ec-68ea-9d56b8a73f46.
// The GUID is always the last 36 characters.
func StatementIDFromURI(uri string, profile wiki.Profile) (string, error) {
	rest, ok := trimEntityPrefix(uri, profile.Host, "/entity/statement/")
	if !ok {
		return "", errors.Newf("URI %s does not belong to wiki %s", uri, profile.Host)
	}

	const guidLength = 36
	if len(rest) < guidLength+2 || rest[len(rest)-guidLength-1] != '-' {
		return "", errors.Wrapf(model.ErrMalformedStatementID, "URI %s", uri)
	}
	entityID := strings.ToUpper(rest[:len(rest)-guidLength-1])
	guid := rest[len(rest)-guidLength:]
	if !model.ValidEntityID(entityID) {
		return "", errors.Wrapf(model.ErrMalformedStatementID, "URI %s", uri)
	}
	return entityID + "$" + guid, nil
}

// ItemIDFromURI converts an item URI of the wiki's item host into an item ID
func ItemIDFromURI(uri string, profile wiki.Profile) (string, error) {
	itemID, ok := trimEntityPrefix(uri, profile.ItemHost, "/entity/")
	if !ok || !model.ValidItemID(itemID) {
		return "", errors.Newf("URI %s is not an item of %s", uri, profile.ItemHost)
	}
	return itemID, nil
}

func trimEntityPrefix(uri, host, path string) (string, bool) {
	for _, scheme := range []string{"http://", "https://"} {
		if rest, ok := strings.CutPrefix(uri, scheme+host+path); ok {
			return rest, true
		}
	}
	return "", false
}

func requireVars(results *sparql.Results, names ...string) error {
	for _, name := range names {
		if !results.HasVar(name) {
			return &InputError{Err: errors.Wrapf(ErrMissingVariable, "?%s", name)}
		}
	}
	return nil
}

func uriBinding(row map[string]sparql.Binding, name string) (string, bool) {
	b, ok := row[name]
	if !ok || b.Type != "uri" {
		return "", false
	}
	return b.Value, true
}
