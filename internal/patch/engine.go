// Package patch applies rank changes to the statements of one entity and
// collects the minimal set of edited statements to save.
//
// The engine mutates the statements it is given in place. Result.Edited is a
// separate map holding only the edited statements, grouped by property; that
// map, not the full entity, is what gets serialized and saved.
package patch

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/wiki"
)

// ErrReasonOnIncrement is returned when a reason is given for an increment
var ErrReasonOnIncrement = errors.New("specifying a reason when incrementing rank is not supported")

// ErrInvalidReason is returned when a reason is not an item ID
var ErrInvalidReason = errors.New("reason must be an item ID")

// Engine edits statement ranks on one wiki
type Engine struct {
	profile wiki.Profile
}

// NewEngine creates an engine using the reason properties of profile
func NewEngine(profile wiki.Profile) *Engine {
	return &Engine{profile: profile}
}

// Result describes the statements edited by one operation
type Result struct {
	Edited model.StatementGroups // Property ID -> edited statements only
	Count  int                   // Number of edited statements
}

// Patch builds the save payload for entityID
func (r Result) Patch(entityID string) model.EntityPatch {
	return model.EntityPatch{ID: entityID, Claims: r.Edited}
}

type options struct {
	property string
}

// Option narrows an operation
type Option func(*options)

// WithProperty scans only the statement group of propertyID. Statements of
// other properties are never targeted by a command anyway, so this only
// saves work.
func WithProperty(propertyID string) Option {
	return func(o *options) {
		o.property = propertyID
	}
}

// SetRank sets every targeted statement whose rank differs to rank, replacing
// its reason qualifiers with reason (an item ID, or "" for none). The reason
// is only checked when some statement changes.
func (e *Engine) SetRank(groups model.StatementGroups, statementIDs []string, rank model.Rank, reason string, opts ...Option) (Result, error) {
	targets := make(map[string]struct{}, len(statementIDs))
	for _, id := range statementIDs {
		targets[model.NormalizeStatementID(id)] = struct{}{}
	}

	var plan []change
	e.scan(groups, opts, func(propertyID string, s *model.Statement) {
		if _, ok := targets[model.NormalizeStatementID(s.ID)]; ok && s.Rank != rank {
			plan = append(plan, change{propertyID: propertyID, statement: s, rank: rank, reason: reason})
		}
	})

	if err := e.checkPlan(plan); err != nil {
		return Result{}, err
	}
	return e.apply(plan)
}

// IncrementRank raises every targeted statement one rank, saturating at
// preferred. Any non-empty reason is rejected before anything changes.
func (e *Engine) IncrementRank(groups model.StatementGroups, statementIDs []string, reason string, opts ...Option) (Result, error) {
	if reason != "" {
		return Result{}, ErrReasonOnIncrement
	}

	targets := make(map[string]struct{}, len(statementIDs))
	for _, id := range statementIDs {
		targets[model.NormalizeStatementID(id)] = struct{}{}
	}

	var plan []change
	e.scan(groups, opts, func(propertyID string, s *model.Statement) {
		if _, ok := targets[model.NormalizeStatementID(s.ID)]; !ok {
			return
		}
		if next := s.Rank.Increment(); next != s.Rank {
			plan = append(plan, change{propertyID: propertyID, statement: s, rank: next})
		}
	})

	return e.apply(plan)
}

// EditRank applies a per-statement target rank and reason. Reasons are only
// checked for statements whose rank actually changes.
func (e *Engine) EditRank(groups model.StatementGroups, commands map[string]model.RankCommand, opts ...Option) (Result, error) {
	normalized := make(map[string]model.RankCommand, len(commands))
	for id, cmd := range commands {
		normalized[model.NormalizeStatementID(id)] = cmd
	}

	var plan []change
	e.scan(groups, opts, func(propertyID string, s *model.Statement) {
		cmd, ok := normalized[model.NormalizeStatementID(s.ID)]
		if ok && cmd.Rank != s.Rank {
			plan = append(plan, change{propertyID: propertyID, statement: s, rank: cmd.Rank, reason: cmd.Reason})
		}
	})

	if err := e.checkPlan(plan); err != nil {
		return Result{}, err
	}
	return e.apply(plan)
}

// StripReasons removes all reason qualifiers from s
func (e *Engine) StripReasons(s *model.Statement) {
	for _, property := range e.profile.ReasonProperties() {
		delete(s.Qualifiers, property)
		s.QualifiersOrder = slices.DeleteFunc(s.QualifiersOrder, func(p string) bool {
			return p == property
		})
	}
}

// SetReason adds the reason qualifier for rank to s. Existing reasons must
// have been stripped first; finding one is an assertion failure.
func (e *Engine) SetReason(s *model.Statement, rank model.Rank, reason string) error {
	property, err := e.profile.ReasonProperty(rank)
	if err != nil {
		return err
	}

	if _, exists := s.Qualifiers[property]; exists {
		return errors.AssertionFailedf("statement %s still has a %s qualifier", s.ID, property)
	}

	hadQualifiers := len(s.Qualifiers) > 0
	if s.Qualifiers == nil {
		s.Qualifiers = make(map[string][]model.Snak)
	}
	s.Qualifiers[property] = []model.Snak{model.NewItemSnak(property, reason)}
	if s.QualifiersOrder != nil || !hadQualifiers {
		s.QualifiersOrder = append(s.QualifiersOrder, property)
	}
	return nil
}

type change struct {
	propertyID string
	statement  *model.Statement
	rank       model.Rank
	reason     string
}

// checkPlan validates every reason of plan before anything is mutated
func (e *Engine) checkPlan(plan []change) error {
	for _, c := range plan {
		if c.reason == "" {
			continue
		}
		if err := e.checkReason(c.rank, c.reason); err != nil {
			return errors.Wrapf(err, "statement %s", c.statement.ID)
		}
	}
	return nil
}

func (e *Engine) checkReason(rank model.Rank, reason string) error {
	if _, err := e.profile.ReasonProperty(rank); err != nil {
		return err
	}
	if !model.ValidItemID(reason) {
		return errors.Wrapf(ErrInvalidReason, "%q", reason)
	}
	return nil
}

func (e *Engine) apply(plan []change) (Result, error) {
	result := Result{Edited: make(model.StatementGroups)}
	for _, c := range plan {
		c.statement.Rank = c.rank
		e.StripReasons(c.statement)
		if c.reason != "" {
			if err := e.SetReason(c.statement, c.rank, c.reason); err != nil {
				return Result{}, err
			}
		}
		result.Edited[c.propertyID] = append(result.Edited[c.propertyID], c.statement)
		result.Count++
	}
	return result, nil
}

func (e *Engine) scan(groups model.StatementGroups, opts []Option, fn func(propertyID string, s *model.Statement)) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.property != "" {
		for _, s := range groups[o.property] {
			fn(o.property, s)
		}
		return
	}

	for propertyID, group := range groups {
		for _, s := range group {
			fn(propertyID, s)
		}
	}
}
