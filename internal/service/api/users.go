package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	authmodel "github.com/zhouzirui/maps-app/client/internal/model/auth"
)

// UserAPI covers /api/users (admin views).
type UserAPI struct {
	c *Client
}

// UserFilter narrows List and Search.
type UserFilter struct {
	Role  authmodel.Role
	Page  int
	Limit int
}

func (f UserFilter) query() url.Values {
	q := url.Values{}
	if f.Role != "" {
		q.Set("role", string(f.Role))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

type usersEnvelope struct {
	Users []authmodel.User `json:"users"`
}

func (u *UserAPI) List(ctx context.Context, filter UserFilter) ([]authmodel.User, error) {
	var resp usersEnvelope
	if err := u.c.do(ctx, http.MethodGet, "/api/users", filter.query(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (u *UserAPI) Get(ctx context.Context, id string) (authmodel.User, error) {
	var resp userEnvelope
	if err := u.c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return authmodel.User{}, err
	}
	return resp.User, nil
}

func (u *UserAPI) Update(ctx context.Context, id string, update authmodel.ProfileUpdate) (authmodel.User, error) {
	var resp userEnvelope
	if err := u.c.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(id), nil, update, &resp); err != nil {
		return authmodel.User{}, err
	}
	return resp.User, nil
}

func (u *UserAPI) Delete(ctx context.Context, id string) error {
	return u.c.do(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(id), nil, nil, nil)
}

// Search matches users by name or email.
func (u *UserAPI) Search(ctx context.Context, query string, filter UserFilter) ([]authmodel.User, error) {
	var resp usersEnvelope
	path := "/api/users/search/" + url.PathEscape(query)
	if err := u.c.do(ctx, http.MethodGet, path, filter.query(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// Stats returns the overview statistics payload verbatim.
func (u *UserAPI) Stats(ctx context.Context) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := u.c.do(ctx, http.MethodGet, "/api/users/stats/overview", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (u *UserAPI) ChangeRole(ctx context.Context, id string, role authmodel.Role) (authmodel.User, error) {
	var resp userEnvelope
	body := map[string]authmodel.Role{"role": role}
	if err := u.c.do(ctx, http.MethodPatch, "/api/users/"+url.PathEscape(id)+"/role", nil, body, &resp); err != nil {
		return authmodel.User{}, err
	}
	return resp.User, nil
}
