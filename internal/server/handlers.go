package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ppiankov/ranker/internal/batch"
	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/mwapi"
	"github.com/ppiankov/ranker/internal/parse"
	"github.com/ppiankov/ranker/internal/patch"
	"github.com/ppiankov/ranker/internal/pipeline"
	"github.com/ppiankov/ranker/internal/sparql"
	"github.com/ppiankov/ranker/internal/wiki"
)

var errBadRequest = errors.New("bad request")

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	pipeline *pipeline.Pipeline
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(p *pipeline.Pipeline, log zerolog.Logger) *Handlers {
	return &Handlers{
		pipeline: p,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type listRequest struct {
	Input   string `json:"input" validate:"required"`
	Reason  string `json:"reason"`
	Summary string `json:"summary" validate:"max=500"`
}

type queryRequest struct {
	Query   string `json:"query" validate:"required"`
	Reason  string `json:"reason"`
	Summary string `json:"summary" validate:"max=500"`
}

type editRequest struct {
	Statements     []string `json:"statements" validate:"required,min=1,dive,required"`
	BaseRevisionID int64    `json:"base_revision_id" validate:"gte=0"`
	Reason         string   `json:"reason"`
	Summary        string   `json:"summary" validate:"max=500"`
}

type entityResponse struct {
	EntityID       string `json:"entity_id"`
	Label          string `json:"label,omitempty"`
	BaseRevisionID int64  `json:"base_revision_id,omitempty"`
	RevisionID     int64  `json:"revision_id,omitempty"`
	Edited         int    `json:"edited_statements"`
	URL            string `json:"url,omitempty"`
	Error          string `json:"error,omitempty"`
}

type batchResponse struct {
	Wiki   string           `json:"wiki"`
	Edited []entityResponse `json:"edited"`
	NoOp   []entityResponse `json:"noop"`
	Errors []entityResponse `json:"errors"`
}

type wikiResponse struct {
	Host                     string `json:"host"`
	ReasonPreferredProperty  string `json:"reason_preferred_property,omitempty"`
	ReasonDeprecatedProperty string `json:"reason_deprecated_property,omitempty"`
	QueryService             string `json:"query_service,omitempty"`
	QueryServiceName         string `json:"query_service_name,omitempty"`
}

type qualifierResponse struct {
	PropertyID string   `json:"property_id"`
	Values     []string `json:"values"`
}

type statementResponse struct {
	ID         string              `json:"id"`
	Rank       model.Rank          `json:"rank"`
	Value      string              `json:"value,omitempty"`
	Qualifiers []qualifierResponse `json:"qualifiers,omitempty"`
}

type editFormResponse struct {
	Wiki           string              `json:"wiki"`
	EntityID       string              `json:"entity_id"`
	PropertyID     string              `json:"property_id"`
	BaseRevisionID int64               `json:"base_revision_id"`
	Statements     []statementResponse `json:"statements"`
	Labels         map[string]string   `json:"labels,omitempty"`
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	event := h.log.Warn()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).Str("request_id", GetRequestID(r.Context())).Int("status", status).Msg("request failed")
	writeJSON(w, h.log, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var (
		badRank   *model.BadRankError
		badWiki   *wiki.BadWikiError
		noReason  *wiki.CannotSetReasonError
		badInput  *parse.InputError
		badFields validator.ValidationErrors
		tooLarge  *http.MaxBytesError
		syntax    *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		queryErr  *sparql.QueryError
		apiErr    *mwapi.APIError
		httpErr   *mwapi.HTTPError
	)
	switch {
	case errors.Is(err, batch.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, batch.ErrMissingEntity), errors.Is(err, mwapi.ErrEntityNotFound), errors.Is(err, mwapi.ErrNoSuchPage):
		return http.StatusNotFound
	case errors.As(err, &badRank), errors.As(err, &badWiki), errors.As(err, &noReason),
		errors.As(err, &badInput), errors.As(err, &badFields), errors.As(err, &syntax), errors.As(err, &typeErr),
		errors.Is(err, errBadRequest), errors.Is(err, parse.ErrMissingVariable), errors.Is(err, model.ErrMalformedStatementID),
		errors.Is(err, patch.ErrReasonOnIncrement), errors.Is(err, patch.ErrInvalidReason),
		errors.Is(err, pipeline.ErrNoQueryService), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return http.StatusBadRequest
	case errors.As(err, &queryErr), errors.As(err, &apiErr), errors.As(err, &httpErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	if err := h.validate.Struct(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

func (h *Handlers) entityResponses(results []batch.EntityResult, host string, labels map[string]string) []entityResponse {
	out := make([]entityResponse, 0, len(results))
	for _, r := range results {
		resp := entityResponse{
			EntityID:       r.EntityID,
			Label:          labels[r.EntityID],
			BaseRevisionID: r.BaseRevisionID,
			RevisionID:     r.RevisionID,
			Edited:         r.Edited,
			URL:            r.URL(host),
		}
		if r.Err != nil {
			resp.Error = r.Err.Error()
		}
		out = append(out, resp)
	}
	return out
}

func (h *Handlers) writeOutcome(w http.ResponseWriter, r *http.Request, outcome *batch.Outcome) {
	profile, err := h.pipeline.Profile(outcome.Wiki)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	labels := h.pipeline.Labels(r.Context(), profile, outcome.EntityIDs())

	writeJSON(w, h.log, http.StatusOK, batchResponse{
		Wiki:   outcome.Wiki,
		Edited: h.entityResponses(outcome.Edited(), outcome.Wiki, labels),
		NoOp:   h.entityResponses(outcome.NoOps(), outcome.Wiki, labels),
		Errors: h.entityResponses(outcome.Errors(), outcome.Wiki, labels),
	})
}

// batchRequest reads the wiki, mode and rank of a batch route
func batchRequest(r *http.Request, mode pipeline.Mode) (pipeline.Request, error) {
	req := pipeline.Request{
		Wiki:        chi.URLParam(r, "wiki"),
		Mode:        mode,
		AccessToken: accessToken(r.Context()),
	}
	if _, err := wiki.Lookup(req.Wiki); err != nil {
		return req, err
	}
	if mode == pipeline.ModeSet {
		rank, err := model.ParseRank(chi.URLParam(r, "rank"))
		if err != nil {
			return req, err
		}
		req.Rank = rank
	}
	return req, nil
}

// --- GET handlers ---

// Health handles GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "ok"})
}

// GetWikis handles GET /api/v1/wikis
func (h *Handlers) GetWikis(w http.ResponseWriter, r *http.Request) {
	hosts := wiki.Hosts()
	out := make([]wikiResponse, 0, len(hosts))
	for _, host := range hosts {
		profile, err := h.pipeline.Profile(host)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		out = append(out, wikiResponse{
			Host:                     profile.Host,
			ReasonPreferredProperty:  profile.ReasonPreferredProperty,
			ReasonDeprecatedProperty: profile.ReasonDeprecatedProperty,
			QueryService:             profile.QueryServiceURL(),
			QueryServiceName:         profile.QueryServiceName(),
		})
	}
	writeJSON(w, h.log, http.StatusOK, out)
}

// GetEditForm handles GET /api/v1/edit/{wiki}/{entity}/{property}. It needs
// no token; the returned base_revision_id goes into the edit request.
func (h *Handlers) GetEditForm(w http.ResponseWriter, r *http.Request) {
	host, entityID, propertyID, err := editTarget(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	form, err := h.pipeline.EditForm(r.Context(), host, entityID, propertyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := editFormResponse{
		Wiki:           form.Wiki,
		EntityID:       form.EntityID,
		PropertyID:     form.PropertyID,
		BaseRevisionID: form.BaseRevisionID,
		Statements:     make([]statementResponse, 0, len(form.Statements)),
		Labels:         form.Labels,
	}
	for _, s := range form.Statements {
		sr := statementResponse{ID: s.ID, Rank: s.Rank, Value: s.Value}
		for _, q := range s.Qualifiers {
			sr.Qualifiers = append(sr.Qualifiers, qualifierResponse{PropertyID: q.PropertyID, Values: q.Values})
		}
		resp.Statements = append(resp.Statements, sr)
	}
	writeJSON(w, h.log, http.StatusOK, resp)
}

// editTarget reads and checks the wiki, entity and property of an edit route
func editTarget(r *http.Request) (host, entityID, propertyID string, err error) {
	host = chi.URLParam(r, "wiki")
	entityID = chi.URLParam(r, "entity")
	propertyID = chi.URLParam(r, "property")

	if _, err := wiki.Lookup(host); err != nil {
		return "", "", "", err
	}
	if !model.ValidEntityID(entityID) && !strings.HasPrefix(entityID, "File:") {
		return "", "", "", errors.Wrapf(errBadRequest, "invalid entity ID %q", entityID)
	}
	if !model.ValidPropertyID(propertyID) {
		return "", "", "", errors.Wrapf(errBadRequest, "invalid property ID %q", propertyID)
	}
	return host, entityID, propertyID, nil
}

// --- batch handlers ---

func (h *Handlers) batchList(mode pipeline.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := batchRequest(r, mode)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		var body listRequest
		if err := h.decode(r, &body); err != nil {
			h.writeError(w, r, err)
			return
		}
		req.Reason = body.Reason
		req.Summary = body.Summary

		outcome, err := h.pipeline.RunList(r.Context(), req, body.Input)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeOutcome(w, r, outcome)
	}
}

func (h *Handlers) batchQuery(mode pipeline.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := batchRequest(r, mode)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		var body queryRequest
		if err := h.decode(r, &body); err != nil {
			h.writeError(w, r, err)
			return
		}
		req.Reason = body.Reason
		req.Summary = body.Summary

		outcome, err := h.pipeline.RunQuery(r.Context(), req, body.Query)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeOutcome(w, r, outcome)
	}
}

// --- single edit handlers ---

func (h *Handlers) edit(increment bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, entityID, propertyID, err := editTarget(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		edit := batch.SingleEdit{
			EntityID:   entityID,
			PropertyID: propertyID,
			Increment:  increment,
		}
		if !increment {
			rank, err := model.ParseRank(chi.URLParam(r, "rank"))
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			edit.Rank = rank
		}

		var body editRequest
		if err := h.decode(r, &body); err != nil {
			h.writeError(w, r, err)
			return
		}
		edit.StatementIDs = body.Statements
		edit.BaseRevisionID = body.BaseRevisionID
		edit.Reason = body.Reason
		edit.Summary = body.Summary

		result, err := h.pipeline.Edit(r.Context(), host, accessToken(r.Context()), edit)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		responses := h.entityResponses([]batch.EntityResult{result}, host, nil)
		writeJSON(w, h.log, http.StatusOK, responses[0])
	}
}
