package batch

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/patch"
	"github.com/ppiankov/ranker/internal/summary"
)

// SingleEdit targets statements of one property of one entity
type SingleEdit struct {
	EntityID       string
	PropertyID     string
	StatementIDs   []string
	BaseRevisionID int64 // 0 edits on top of the latest revision
	Increment      bool
	Rank           model.Rank // Ignored when Increment is set
	Reason         string
	Summary        string
}

// EditSingle edits statements of one entity. Unlike the batch operations,
// every error is returned to the caller.
func (o *Orchestrator) EditSingle(ctx context.Context, edit SingleEdit) (EntityResult, error) {
	if err := o.checkAuthenticated(ctx); err != nil {
		return EntityResult{}, err
	}

	entity, err := o.loadEntity(ctx, edit.EntityID, edit.BaseRevisionID)
	if err != nil {
		return EntityResult{}, err
	}

	result := EntityResult{EntityID: edit.EntityID, BaseRevisionID: entity.LastRevID}

	var patched patch.Result
	var message string
	if edit.Increment {
		patched, err = o.engine.IncrementRank(entity.Statements, edit.StatementIDs, edit.Reason, patch.WithProperty(edit.PropertyID))
		message = summary.IncrementRank(patched.Count, edit.Summary)
	} else {
		patched, err = o.engine.SetRank(entity.Statements, edit.StatementIDs, edit.Rank, edit.Reason, patch.WithProperty(edit.PropertyID))
		message = summary.SetRank(patched.Count, edit.Rank, o.profile, edit.Reason, edit.Summary)
	}
	if err != nil {
		return EntityResult{}, err
	}
	result.Edited = patched.Count

	if patched.Count == 0 {
		result.Status = StatusNoOp
		return result, nil
	}

	revisionID, err := o.gateway.SaveEntity(ctx, patched.Patch(edit.EntityID), message, entity.LastRevID)
	if err != nil {
		return EntityResult{}, err
	}

	result.Status = StatusEdited
	result.RevisionID = revisionID
	o.log.Info().
		Str("wiki", o.profile.Host).
		Str("entity", edit.EntityID).
		Int64("revision", revisionID).
		Int("edited", patched.Count).
		Msg("entity saved")
	return result, nil
}

func (o *Orchestrator) loadEntity(ctx context.Context, entityID string, revisionID int64) (*model.Entity, error) {
	if revisionID > 0 {
		entity, err := o.gateway.GetEntityRevision(ctx, entityID, revisionID)
		if err != nil {
			return nil, err
		}
		entity.LastRevID = revisionID
		return entity, nil
	}

	entities, err := o.gateway.GetEntities(ctx, []string{entityID})
	if err != nil {
		return nil, errors.Wrap(err, "fetch entity")
	}
	entity := entities[entityID]
	if entity == nil || entity.Missing {
		return nil, errors.Wrapf(ErrMissingEntity, "%s", entityID)
	}
	return entity, nil
}
