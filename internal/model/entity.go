package model

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Entity is a Wikibase entity reduced to what rank editing needs
type Entity struct {
	ID         string          // Entity ID (Q42, P31, L1-S1, M123, ...)
	Type       string          // Entity type as reported upstream (item, property, mediainfo, ...)
	LastRevID  int64           // Latest revision ID, used as base revision when saving
	Missing    bool            // Upstream reported the entity as missing
	Statements StatementGroups // Property ID -> ordered statements, never nil after decoding
}

// StatementGroups maps property IDs to their ordered statement lists
type StatementGroups map[string][]*Statement

// Count returns the total number of statements in all groups
func (g StatementGroups) Count() int {
	n := 0
	for _, group := range g {
		n += len(group)
	}
	return n
}

// Find returns the statement with the given ID, or nil
func (g StatementGroups) Find(statementID string) *Statement {
	want := NormalizeStatementID(statementID)
	for _, group := range g {
		for _, s := range group {
			if NormalizeStatementID(s.ID) == want {
				return s
			}
		}
	}
	return nil
}

type wireEntity struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	LastRevID  int64           `json:"lastrevid"`
	Missing    json.RawMessage `json:"missing"`
	Claims     json.RawMessage `json:"claims"`
	Statements json.RawMessage `json:"statements"`
}

// UnmarshalJSON decodes the wire shape of wbgetentities / Special:EntityData.
// MediaInfo entities keep their statements under "statements", all other
// entity types under "claims"; both normalize to Statements.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var w wireEntity
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "decode entity")
	}

	raw := w.Claims
	if w.Type == "mediainfo" {
		raw = w.Statements
	}

	groups, err := decodeStatementGroups(raw)
	if err != nil {
		return errors.Wrapf(err, "decode statements of %s", w.ID)
	}

	*e = Entity{
		ID:         w.ID,
		Type:       w.Type,
		LastRevID:  w.LastRevID,
		Missing:    w.Missing != nil,
		Statements: groups,
	}
	return nil
}

// decodeStatementGroups accepts a mapping, an empty list (T222159) or nothing
func decodeStatementGroups(raw json.RawMessage) (StatementGroups, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return StatementGroups{}, nil
	}
	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		if len(list) != 0 {
			return nil, errors.New("statements must be a mapping, got non-empty list")
		}
		return StatementGroups{}, nil
	}
	groups := StatementGroups{}
	if err := json.Unmarshal(trimmed, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// Statement is one claim with its rank and qualifiers.
// Wire fields not modelled here (mainsnak, references, type, ...) are kept
// verbatim so the statement can be sent back unchanged.
type Statement struct {
	ID              string
	Rank            Rank
	Qualifiers      map[string][]Snak
	QualifiersOrder []string

	extra map[string]json.RawMessage
}

// UnmarshalJSON decodes a statement, preserving unknown fields
func (s *Statement) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "decode statement")
	}

	out := Statement{extra: make(map[string]json.RawMessage)}
	for key, value := range raw {
		var err error
		switch key {
		case "id":
			err = json.Unmarshal(value, &out.ID)
		case "rank":
			err = json.Unmarshal(value, &out.Rank)
		case "qualifiers":
			if !bytes.Equal(bytes.TrimSpace(value), []byte("[]")) {
				err = json.Unmarshal(value, &out.Qualifiers)
			}
		case "qualifiers-order":
			err = json.Unmarshal(value, &out.QualifiersOrder)
		default:
			out.extra[key] = value
		}
		if err != nil {
			return errors.Wrapf(err, "decode statement field %q", key)
		}
	}

	*s = out
	return nil
}

// MarshalJSON encodes the statement together with its preserved fields
func (s Statement) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.extra)+4)
	for key, value := range s.extra {
		out[key] = value
	}
	if s.ID != "" {
		out["id"] = s.ID
	}
	out["rank"] = s.Rank
	if len(s.Qualifiers) > 0 {
		out["qualifiers"] = s.Qualifiers
	}
	if len(s.QualifiersOrder) > 0 {
		out["qualifiers-order"] = s.QualifiersOrder
	}
	return json.Marshal(out)
}

// MainSnak decodes the statement's main snak, kept verbatim otherwise
func (s Statement) MainSnak() (Snak, bool) {
	raw, ok := s.extra["mainsnak"]
	if !ok {
		return Snak{}, false
	}
	var snak Snak
	if err := json.Unmarshal(raw, &snak); err != nil {
		return Snak{}, false
	}
	return snak, true
}

// Snak is a property/value pair of a main snak or qualifier
type Snak struct {
	SnakType  string     `json:"snaktype"`
	Property  string     `json:"property"`
	Hash      string     `json:"hash,omitempty"`
	DataType  string     `json:"datatype,omitempty"`
	DataValue *DataValue `json:"datavalue,omitempty"`
}

// DataValue is the typed value of a value snak
type DataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// EntityIDValue is the value of a wikibase-entityid data value
type EntityIDValue struct {
	EntityType string `json:"entity-type"`
	ID         string `json:"id"`
}

// NewItemSnak builds a value snak pointing at an item
func NewItemSnak(propertyID, itemID string) Snak {
	value, _ := json.Marshal(EntityIDValue{EntityType: "item", ID: itemID})
	return Snak{
		SnakType: "value",
		Property: propertyID,
		DataType: "wikibase-item",
		DataValue: &DataValue{
			Type:  "wikibase-entityid",
			Value: value,
		},
	}
}

// ItemID returns the item ID of an entity-valued snak
func (s Snak) ItemID() (string, bool) {
	if s.DataValue == nil || s.DataValue.Type != "wikibase-entityid" {
		return "", false
	}
	var v EntityIDValue
	if err := json.Unmarshal(s.DataValue.Value, &v); err != nil {
		return "", false
	}
	return v.ID, v.ID != ""
}

// EntityPatch is the minimal payload sent to wbeditentity
type EntityPatch struct {
	ID     string          `json:"id"`
	Claims StatementGroups `json:"claims"` // "claims" even for MediaInfo entities
}
