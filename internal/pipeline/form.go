package pipeline

import (
	"context"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/mwapi"
	"github.com/ppiankov/ranker/internal/wbformat"
	"github.com/ppiankov/ranker/internal/wiki"
)

// EditForm lists the statements of one property of one entity, as needed to
// pick statements for a single edit
type EditForm struct {
	Wiki           string
	EntityID       string
	PropertyID     string
	BaseRevisionID int64 // Pass back with the edit to detect conflicts
	Statements     []FormStatement
	Labels         map[string]string // Entity and property ID -> formatted label
}

// FormStatement is one statement with its formatted values
type FormStatement struct {
	ID         string
	Rank       model.Rank
	Value      string // Formatted main value, "" for somevalue/novalue
	Qualifiers []FormQualifier
}

// FormQualifier holds the formatted values of one qualifier property
type FormQualifier struct {
	PropertyID string
	Values     []string
}

// EditForm loads entityID anonymously and formats the statements of
// propertyID. Values that cannot be formatted are left empty.
func (p *Pipeline) EditForm(ctx context.Context, host, entityID, propertyID string) (*EditForm, error) {
	profile, err := p.Profile(host)
	if err != nil {
		return nil, err
	}
	client := p.AnonymousClient(profile)

	if strings.HasPrefix(entityID, "File:") {
		if entityID, err = mwapi.ResolveFilePage(ctx, client, entityID); err != nil {
			return nil, err
		}
	}

	entities, err := client.GetEntities(ctx, []string{entityID})
	if err != nil {
		return nil, err
	}
	entity := entities[entityID]
	if entity == nil || entity.Missing {
		return nil, errors.Wrapf(mwapi.ErrEntityNotFound, "%s on %s", entityID, host)
	}

	statements := entity.Statements[propertyID]
	form := &EditForm{
		Wiki:           profile.Host,
		EntityID:       entity.ID,
		PropertyID:     propertyID,
		BaseRevisionID: entity.LastRevID,
		Statements:     make([]FormStatement, 0, len(statements)),
	}

	formatter := p.Formatter(profile)
	for _, s := range statements {
		form.Statements = append(form.Statements, p.formStatement(ctx, formatter, profile, s))
	}
	if formatter != nil {
		form.Labels = p.formLabels(ctx, formatter, form)
	}
	return form, nil
}

func (p *Pipeline) formStatement(ctx context.Context, formatter *wbformat.Formatter, profile wiki.Profile, s *model.Statement) FormStatement {
	out := FormStatement{ID: s.ID, Rank: s.Rank}
	if snak, ok := s.MainSnak(); ok {
		out.Value = p.formatSnak(ctx, formatter, snak)
	}

	order := s.QualifiersOrder
	if len(order) == 0 {
		order = lo.Keys(s.Qualifiers)
		slices.Sort(order)
	}
	for _, property := range order {
		snaks, ok := s.Qualifiers[property]
		if !ok {
			continue
		}
		q := FormQualifier{PropertyID: property}
		for _, snak := range snaks {
			q.Values = append(q.Values, p.formatSnak(ctx, formatter, snak))
		}
		out.Qualifiers = append(out.Qualifiers, q)
	}
	return out
}

func (p *Pipeline) formatSnak(ctx context.Context, formatter *wbformat.Formatter, snak model.Snak) string {
	if snak.DataValue == nil {
		return ""
	}
	if formatter == nil {
		if id, ok := snak.ItemID(); ok {
			return id
		}
		return string(snak.DataValue.Value)
	}
	formatted, err := formatter.FormatValue(ctx, snak.Property, snak.DataValue)
	if err != nil {
		p.log.Debug().Err(err).Str("property", snak.Property).Msg("value not formatted")
		return ""
	}
	return formatted
}

// formLabels prefetches the entity, the property and all qualifier
// properties in one request
func (p *Pipeline) formLabels(ctx context.Context, formatter *wbformat.Formatter, form *EditForm) map[string]string {
	ids := []string{form.EntityID, form.PropertyID}
	for _, s := range form.Statements {
		for _, q := range s.Qualifiers {
			ids = append(ids, q.PropertyID)
		}
	}
	ids = lo.Uniq(ids)

	if err := formatter.PrefetchEntities(ctx, ids); err != nil {
		p.log.Warn().Err(err).Str("entity", form.EntityID).Msg("label prefetch failed")
	}

	labels := make(map[string]string, len(ids))
	for _, id := range ids {
		if label, err := formatter.FormatEntity(ctx, id); err == nil {
			labels[id] = label
		}
	}
	return labels
}
