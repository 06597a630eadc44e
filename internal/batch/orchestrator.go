// Package batch runs rank edits over many entities: it fetches all entities
// once, patches and saves each one independently, and classifies every
// entity as edited, unchanged or failed.
package batch

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/mwapi"
	"github.com/ppiankov/ranker/internal/patch"
	"github.com/ppiankov/ranker/internal/summary"
	"github.com/ppiankov/ranker/internal/wiki"
	"github.com/ppiankov/ranker/internal/worker"
)

// ErrNotAuthenticated is returned when no user session is available
var ErrNotAuthenticated = errors.New("not logged in")

// ErrMissingEntity is recorded for entities the wiki does not know
var ErrMissingEntity = errors.New("entity does not exist")

// Gateway loads and saves entities on one wiki
type Gateway interface {
	CheckAuthenticated(ctx context.Context) error
	GetEntities(ctx context.Context, ids []string) (map[string]*model.Entity, error)
	GetEntityRevision(ctx context.Context, entityID string, revisionID int64) (*model.Entity, error)
	SaveEntity(ctx context.Context, patch model.EntityPatch, summary string, baseRevisionID int64) (int64, error)
}

// LabelPrefetcher warms the display cache for a set of entities
type LabelPrefetcher interface {
	PrefetchEntities(ctx context.Context, ids []string) error
}

// Orchestrator runs batches against one wiki
type Orchestrator struct {
	gateway Gateway
	profile wiki.Profile
	engine  *patch.Engine
	labels  LabelPrefetcher
	workers int
	log     zerolog.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLabelPrefetcher prefetches labels of all entities after a batch
func WithLabelPrefetcher(p LabelPrefetcher) Option {
	return func(o *Orchestrator) {
		o.labels = p
	}
}

// WithWorkers processes up to n entities concurrently
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// NewOrchestrator creates an orchestrator saving through gateway
func NewOrchestrator(gateway Gateway, profile wiki.Profile, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway: gateway,
		profile: profile,
		engine:  patch.NewEngine(profile),
		workers: 1,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// editFunc patches the statements of one entity
type editFunc func(entityID string, groups model.StatementGroups) (patch.Result, error)

// SetRank sets the rank of all listed statements, with an optional reason
func (o *Orchestrator) SetRank(ctx context.Context, ids *model.StatementIDs, rank model.Rank, reason, customSummary string) (*Outcome, error) {
	return o.run(ctx, ids.EntityIDs(), func(entityID string, groups model.StatementGroups) (patch.Result, error) {
		statementIDs, _ := ids.Get(entityID)
		return o.engine.SetRank(groups, statementIDs, rank, reason)
	}, func(count int) string {
		return summary.SetRank(count, rank, o.profile, reason, customSummary)
	})
}

// IncrementRank raises the rank of all listed statements by one
func (o *Orchestrator) IncrementRank(ctx context.Context, ids *model.StatementIDs, reason, customSummary string) (*Outcome, error) {
	return o.run(ctx, ids.EntityIDs(), func(entityID string, groups model.StatementGroups) (patch.Result, error) {
		statementIDs, _ := ids.Get(entityID)
		return o.engine.IncrementRank(groups, statementIDs, reason)
	}, func(count int) string {
		return summary.IncrementRank(count, customSummary)
	})
}

// EditRank applies per-statement ranks and reasons
func (o *Orchestrator) EditRank(ctx context.Context, commands *model.RankCommands, customSummary string) (*Outcome, error) {
	return o.run(ctx, commands.EntityIDs(), func(entityID string, groups model.StatementGroups) (patch.Result, error) {
		cmds, _ := commands.Get(entityID)
		return o.engine.EditRank(groups, cmds)
	}, func(count int) string {
		return summary.EditRank(count, customSummary)
	})
}

func (o *Orchestrator) run(ctx context.Context, entityIDs []string, edit editFunc, summarize func(int) string) (*Outcome, error) {
	if err := o.checkAuthenticated(ctx); err != nil {
		return nil, err
	}

	entities, err := o.gateway.GetEntities(ctx, entityIDs)
	if err != nil {
		return nil, errors.Wrap(err, "fetch entities")
	}

	jobs := make([]worker.Job, len(entityIDs))
	for i, entityID := range entityIDs {
		jobs[i] = &entityJob{
			index:     i,
			entityID:  entityID,
			entity:    entities[entityID],
			edit:      edit,
			summarize: summarize,
			o:         o,
		}
	}

	outcome := &Outcome{Wiki: o.profile.Host, Results: make([]EntityResult, len(entityIDs))}
	done := make([]bool, len(entityIDs))
	for _, r := range worker.NewPool(ctx, o.workers).Run(jobs) {
		jr := r.(jobResult)
		outcome.Results[jr.index] = jr.EntityResult
		done[jr.index] = true
	}
	for i, ok := range done {
		if !ok {
			outcome.Results[i] = EntityResult{EntityID: entityIDs[i], Status: StatusErrored, Err: ctx.Err()}
		}
	}

	o.prefetchLabels(ctx, entityIDs)

	o.log.Info().
		Str("wiki", o.profile.Host).
		Int("entities", len(entityIDs)).
		Int("edited", len(outcome.Edited())).
		Int("noop", len(outcome.NoOps())).
		Int("errors", len(outcome.Errors())).
		Msg("batch finished")

	return outcome, nil
}

func (o *Orchestrator) checkAuthenticated(ctx context.Context) error {
	err := o.gateway.CheckAuthenticated(ctx)
	if errors.Is(err, mwapi.ErrNotLoggedIn) {
		return errors.Mark(err, ErrNotAuthenticated)
	}
	return errors.Wrap(err, "check authentication")
}

func (o *Orchestrator) prefetchLabels(ctx context.Context, entityIDs []string) {
	if o.labels == nil || len(entityIDs) == 0 {
		return
	}
	if err := o.labels.PrefetchEntities(ctx, entityIDs); err != nil {
		o.log.Warn().Err(err).Int("entities", len(entityIDs)).Msg("label prefetch failed")
	}
}

// process patches and saves one entity; it never returns an error, failures
// end up in the result
func (o *Orchestrator) process(ctx context.Context, entityID string, entity *model.Entity, edit editFunc, summarize func(int) string) EntityResult {
	result := EntityResult{EntityID: entityID}
	fail := func(err error) EntityResult {
		result.Status = StatusErrored
		result.Err = err
		event := o.log.Warn()
		if errors.HasAssertionFailure(err) {
			event = o.log.Error().Str("detail", fmt.Sprintf("%+v", err))
		}
		event.Err(err).Str("wiki", o.profile.Host).Str("entity", entityID).Msg("entity failed")
		return result
	}

	if entity == nil || entity.Missing {
		return fail(errors.Wrapf(ErrMissingEntity, "%s", entityID))
	}
	result.BaseRevisionID = entity.LastRevID

	patched, err := edit(entityID, entity.Statements)
	if err != nil {
		return fail(err)
	}
	result.Edited = patched.Count

	if patched.Count == 0 {
		result.Status = StatusNoOp
		return result
	}

	revisionID, err := o.gateway.SaveEntity(ctx, patched.Patch(entityID), summarize(patched.Count), entity.LastRevID)
	if err != nil {
		return fail(err)
	}

	result.Status = StatusEdited
	result.RevisionID = revisionID
	return result
}

type entityJob struct {
	index     int
	entityID  string
	entity    *model.Entity
	edit      editFunc
	summarize func(int) string
	o         *Orchestrator
}

type jobResult struct {
	index int
	EntityResult
}

func (j *entityJob) Execute(ctx context.Context) worker.Result {
	return jobResult{index: j.index, EntityResult: j.o.process(ctx, j.entityID, j.entity, j.edit, j.summarize)}
}
