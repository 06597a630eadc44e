package batch

import (
	"encoding/json"

	"github.com/ppiankov/ranker/internal/mwapi"
)

// Status classifies what happened to one entity
type Status int

const (
	StatusEdited Status = iota
	StatusNoOp
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusEdited:
		return "edited"
	case StatusNoOp:
		return "noop"
	default:
		return "errored"
	}
}

// MarshalJSON encodes the status name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// EntityResult is the outcome for one entity of a batch
type EntityResult struct {
	EntityID       string `json:"entity_id"`
	Status         Status `json:"status"`
	BaseRevisionID int64  `json:"base_revision_id,omitempty"`
	RevisionID     int64  `json:"revision_id,omitempty"` // Set when edited
	Edited         int    `json:"edited_statements"`
	Err            error  `json:"-"`
}

// GetError implements worker.Result
func (r EntityResult) GetError() error {
	return r.Err
}

// URL links to the diff of an edit, or to the unchanged base revision
func (r EntityResult) URL(host string) string {
	if r.Status == StatusEdited {
		return mwapi.DiffURL(host, r.BaseRevisionID, r.RevisionID)
	}
	if r.BaseRevisionID > 0 {
		return mwapi.PermalinkURL(host, r.BaseRevisionID)
	}
	return ""
}

// Outcome collects the results of one batch in input order
type Outcome struct {
	Wiki    string
	Results []EntityResult
}

// Edited returns the entities that were saved
func (o *Outcome) Edited() []EntityResult {
	return o.filter(StatusEdited)
}

// NoOps returns the entities where nothing needed to change
func (o *Outcome) NoOps() []EntityResult {
	return o.filter(StatusNoOp)
}

// Errors returns the entities that failed
func (o *Outcome) Errors() []EntityResult {
	return o.filter(StatusErrored)
}

// EntityIDs returns all entity IDs of the batch in input order
func (o *Outcome) EntityIDs() []string {
	ids := make([]string, len(o.Results))
	for i, r := range o.Results {
		ids[i] = r.EntityID
	}
	return ids
}

func (o *Outcome) filter(status Status) []EntityResult {
	var out []EntityResult
	for _, r := range o.Results {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
