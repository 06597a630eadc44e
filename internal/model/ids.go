package model

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrMalformedStatementID is returned for statement IDs without a "$" separator
var ErrMalformedStatementID = errors.New("malformed statement ID")

var (
	itemIDPattern     = regexp.MustCompile(`^Q[1-9][0-9]*$`)
	propertyIDPattern = regexp.MustCompile(`^P[1-9][0-9]*$`)
	entityIDPattern   = regexp.MustCompile(`^(?:[QPM][1-9][0-9]*|L[1-9][0-9]*(?:-[SF][1-9][0-9]*)?)$`)
)

// EntityIDFromStatementID returns the upper-cased entity part of a statement ID
func EntityIDFromStatementID(statementID string) (string, error) {
	entityID, _, found := strings.Cut(statementID, "$")
	if !found {
		return "", errors.Wrapf(ErrMalformedStatementID, "%q", statementID)
	}
	return strings.ToUpper(entityID), nil
}

// NormalizeStatementID upper-cases the entity part and keeps the GUID as is
func NormalizeStatementID(statementID string) string {
	entityID, guid, found := strings.Cut(statementID, "$")
	if !found {
		return statementID
	}
	return strings.ToUpper(entityID) + "$" + guid
}

// ValidEntityID reports whether id is an item, property, lexeme (with optional
// sense/form suffix) or media-info ID
func ValidEntityID(id string) bool {
	return entityIDPattern.MatchString(id)
}

// ValidItemID reports whether id is an item ID
func ValidItemID(id string) bool {
	return itemIDPattern.MatchString(id)
}

// ValidPropertyID reports whether id is a property ID
func ValidPropertyID(id string) bool {
	return propertyIDPattern.MatchString(id)
}
