// Package summary composes edit summaries for rank changes.
package summary

import (
	"fmt"
	"strings"

	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/wiki"
)

// SetRank describes setting count statements to rank, with an optional
// reason item and custom text
func SetRank(count int, rank model.Rank, profile wiki.Profile, reason, custom string) string {
	s := fmt.Sprintf("Set rank of %s to %s", statements(count), rank)
	if reason != "" {
		s += " (reason: [[" + profile.SummaryReasonPrefix + reason + "]])"
	}
	return withCustom(s, custom)
}

// IncrementRank describes incrementing the rank of count statements
func IncrementRank(count int, custom string) string {
	return withCustom("Incremented rank of "+statements(count), custom)
}

// EditRank describes individually edited ranks of count statements
func EditRank(count int, custom string) string {
	return withCustom("Edited rank of "+statements(count), custom)
}

func statements(count int) string {
	if count == 1 {
		return "1 statement"
	}
	return fmt.Sprintf("%d statements", count)
}

func withCustom(s, custom string) string {
	if custom = strings.TrimSpace(custom); custom != "" {
		s += ": " + custom
	}
	return s
}
