package mwapi

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/wiki"
)

// EntitiesChunkSize is the wbgetentities limit for normal users
const EntitiesChunkSize = 50

// ErrEntityNotFound is returned when an entity revision cannot be loaded
var ErrEntityNotFound = errors.New("entity not found")

// GetEntities loads the latest revision of every entity in ids.
// Duplicates are fetched once; the result has exactly one entry per distinct
// ID, with entities the wiki does not know flagged Missing.
func (c *Client) GetEntities(ctx context.Context, ids []string) (map[string]*model.Entity, error) {
	ids = lo.Uniq(ids)
	entities := make(map[string]*model.Entity, len(ids))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fetchParallel)

	for _, chunk := range lo.Chunk(ids, EntitiesChunkSize) {
		chunk := chunk
		g.Go(func() error {
			var resp struct {
				Entities map[string]*model.Entity `json:"entities"`
			}
			params := url.Values{
				"action": {"wbgetentities"},
				"ids":    {strings.Join(chunk, "|")},
				"props":  {"info|claims"},
			}
			if err := c.Get(gctx, params, &resp); err != nil {
				return errors.Wrapf(err, "get entities %s..%s", chunk[0], chunk[len(chunk)-1])
			}

			mu.Lock()
			defer mu.Unlock()
			for id, entity := range resp.Entities {
				entities[id] = entity
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, ok := entities[id]; !ok {
			entities[id] = &model.Entity{ID: id, Missing: true, Statements: model.StatementGroups{}}
		}
	}
	return entities, nil
}

// GetEntityRevision loads one specific revision of an entity through
// Special:EntityData
func (c *Client) GetEntityRevision(ctx context.Context, entityID string, revisionID int64) (*model.Entity, error) {
	var resp struct {
		Entities map[string]*model.Entity `json:"entities"`
	}
	if err := c.getJSON(ctx, wiki.EntityDataPath(entityID, revisionID), &resp); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == 404 {
			return nil, errors.Wrapf(ErrEntityNotFound, "%s revision %d", entityID, revisionID)
		}
		return nil, errors.Wrapf(err, "get %s revision %d", entityID, revisionID)
	}

	if entity, ok := resp.Entities[entityID]; ok {
		return entity, nil
	}
	// Redirected entities are keyed by their target
	if len(resp.Entities) == 1 {
		for _, entity := range resp.Entities {
			return entity, nil
		}
	}
	return nil, errors.Wrapf(ErrEntityNotFound, "%s revision %d", entityID, revisionID)
}
