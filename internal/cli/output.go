package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ppiankov/ranker/internal/batch"
	"github.com/ppiankov/ranker/internal/wbformat"
)

type resultJSON struct {
	EntityID       string `json:"entity_id"`
	Label          string `json:"label,omitempty"`
	Status         string `json:"status"`
	BaseRevisionID int64  `json:"base_revision_id,omitempty"`
	RevisionID     int64  `json:"revision_id,omitempty"`
	Edited         int    `json:"edited_statements"`
	URL            string `json:"url,omitempty"`
	Error          string `json:"error,omitempty"`
}

func toResultJSON(r batch.EntityResult, host string, labels map[string]string) resultJSON {
	out := resultJSON{
		EntityID:       r.EntityID,
		Label:          wbformat.PlainText(labels[r.EntityID]),
		Status:         r.Status.String(),
		BaseRevisionID: r.BaseRevisionID,
		RevisionID:     r.RevisionID,
		Edited:         r.Edited,
		URL:            r.URL(host),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

func printOutcomeJSON(w io.Writer, outcome *batch.Outcome, labels map[string]string) error {
	results := make([]resultJSON, 0, len(outcome.Results))
	for _, r := range outcome.Results {
		results = append(results, toResultJSON(r, outcome.Wiki, labels))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"wiki": outcome.Wiki, "results": results})
}

func printOutcome(w io.Writer, outcome *batch.Outcome, labels map[string]string) {
	for _, r := range outcome.Results {
		name := r.EntityID
		if label := wbformat.PlainText(labels[r.EntityID]); label != "" {
			name = fmt.Sprintf("%s (%s)", r.EntityID, label)
		}
		switch r.Status {
		case batch.StatusEdited:
			fmt.Fprintf(w, "✓ %s: %d edited, %s\n", name, r.Edited, r.URL(outcome.Wiki))
		case batch.StatusNoOp:
			fmt.Fprintf(w, "= %s: no change, %s\n", name, r.URL(outcome.Wiki))
		default:
			fmt.Fprintf(w, "✗ %s: %v\n", name, r.Err)
		}
	}

	fmt.Fprintf(w, "\n  Total:     %d entities\n", len(outcome.Results))
	fmt.Fprintf(w, "  Edited:    %d\n", len(outcome.Edited()))
	fmt.Fprintf(w, "  No-op:     %d\n", len(outcome.NoOps()))
	fmt.Fprintf(w, "  Errors:    %d\n", len(outcome.Errors()))
}

func printEditResult(w io.Writer, r batch.EntityResult, host string) {
	if r.Status == batch.StatusNoOp {
		fmt.Fprintf(w, "= %s: no change, %s\n", r.EntityID, r.URL(host))
		return
	}
	fmt.Fprintf(w, "✓ %s: %d edited, %s\n", r.EntityID, r.Edited, r.URL(host))
}
