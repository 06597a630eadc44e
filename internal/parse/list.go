// Package parse turns pasted statement lists and query results into
// commands grouped by entity.
package parse

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ppiankov/ranker/internal/model"
)

var fieldSeparator = regexp.MustCompile(`[|\t]`)

// List parses one statement ID per line.
// Blank lines are skipped; the first malformed line fails the whole list.
func List(text string) (*model.StatementIDs, error) {
	grouped := model.NewGrouped[[]string]()
	err := eachLine(text, func(line string) error {
		entityID, err := statementEntityID(line)
		if err != nil {
			return err
		}
		model.AddStatementID(grouped, entityID, line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grouped, nil
}

// ListWithRanksAndReasons parses lines of the form
// "statementID|rank[|reason]", where "|" may also be a tab.
// A missing reason is "" and fields after the reason are ignored.
func ListWithRanksAndReasons(text string) (*model.RankCommands, error) {
	grouped := model.NewGrouped[map[string]model.RankCommand]()
	err := eachLine(text, func(line string) error {
		fields := fieldSeparator.Split(line, 4)
		if len(fields) < 2 {
			return errors.Newf("expected statement ID and rank separated by | or tab, got %q", line)
		}

		statementID := strings.TrimSpace(fields[0])
		entityID, err := statementEntityID(statementID)
		if err != nil {
			return err
		}

		rank, err := model.ParseRank(strings.TrimSpace(fields[1]))
		if err != nil {
			return err
		}

		var reason string
		if len(fields) >= 3 {
			reason = strings.TrimSpace(fields[2])
			if reason != "" && !model.ValidItemID(reason) {
				return errors.Newf("reason %q is not an item ID", reason)
			}
		}

		model.AddRankCommand(grouped, entityID, statementID, model.RankCommand{Rank: rank, Reason: reason})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grouped, nil
}

// eachLine calls fn for every non-blank trimmed line, wrapping errors with the line number
func eachLine(text string, fn func(line string) error) error {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return &InputError{Line: lineNo, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return &InputError{Line: lineNo + 1, Err: errors.Wrap(err, "read input")}
	}
	return nil
}

// statementEntityID validates a statement ID and returns its entity ID
func statementEntityID(statementID string) (string, error) {
	entityID, err := model.EntityIDFromStatementID(statementID)
	if err != nil {
		return "", err
	}
	if !model.ValidEntityID(entityID) {
		return "", errors.Wrapf(model.ErrMalformedStatementID, "%q has no valid entity ID", statementID)
	}
	if strings.HasSuffix(statementID, "$") {
		return "", errors.Wrapf(model.ErrMalformedStatementID, "%q has no GUID", statementID)
	}
	return entityID, nil
}
