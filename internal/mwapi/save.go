package mwapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/ppiankov/ranker/internal/model"
)

// SaveError reports a rejected wbeditentity call
type SaveError struct {
	EntityID       string
	BaseRevisionID int64
	Err            error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s at base revision %d: %v", e.EntityID, e.BaseRevisionID, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Gateway combines a wiki client with the edit tokens of one request
type Gateway struct {
	client *Client
	tokens *TokenCache
}

// NewGateway creates a gateway; tokens must not outlive the current request
func NewGateway(client *Client, tokens *TokenCache) *Gateway {
	return &Gateway{client: client, tokens: tokens}
}

// Client returns the underlying wiki client
func (g *Gateway) Client() *Client {
	return g.client
}

// GetEntities loads the latest revisions of ids
func (g *Gateway) GetEntities(ctx context.Context, ids []string) (map[string]*model.Entity, error) {
	return g.client.GetEntities(ctx, ids)
}

// GetEntityRevision loads one revision of an entity
func (g *Gateway) GetEntityRevision(ctx context.Context, entityID string, revisionID int64) (*model.Entity, error) {
	return g.client.GetEntityRevision(ctx, entityID, revisionID)
}

// CheckAuthenticated fails with ErrNotLoggedIn unless edits would be attributed to a user
func (g *Gateway) CheckAuthenticated(ctx context.Context) error {
	_, err := g.tokens.EditToken(ctx, g.client)
	return err
}

// SaveEntity submits patch on top of baseRevisionID and returns the new revision ID
func (g *Gateway) SaveEntity(ctx context.Context, patch model.EntityPatch, summary string, baseRevisionID int64) (int64, error) {
	fail := func(err error) (int64, error) {
		return 0, &SaveError{EntityID: patch.ID, BaseRevisionID: baseRevisionID, Err: err}
	}

	token, err := g.tokens.EditToken(ctx, g.client)
	if err != nil {
		return fail(err)
	}

	data, err := json.Marshal(patch)
	if err != nil {
		return fail(errors.Wrap(err, "encode patch"))
	}

	params := url.Values{
		"action":    {"wbeditentity"},
		"id":        {patch.ID},
		"data":      {string(data)},
		"summary":   {summary},
		"baserevid": {strconv.FormatInt(baseRevisionID, 10)},
		"token":     {token},
		"assert":    {"user"},
	}

	var resp struct {
		Entity struct {
			LastRevID int64 `json:"lastrevid"`
		} `json:"entity"`
	}
	if err := g.client.Post(ctx, params, &resp); err != nil {
		return fail(err)
	}
	if resp.Entity.LastRevID == 0 {
		return fail(errors.New("response lacks entity.lastrevid"))
	}
	return resp.Entity.LastRevID, nil
}
