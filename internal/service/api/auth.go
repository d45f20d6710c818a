package api

import (
	"context"
	"encoding/json"
	"net/http"

	authmodel "github.com/zhouzirui/maps-app/client/internal/model/auth"
	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
)

// AuthAPI covers /api/auth.
type AuthAPI struct {
	c *Client
}

type userEnvelope struct {
	User authmodel.User `json:"user"`
}

// Login exchanges an identity-provider token for the backend user.
func (a *AuthAPI) Login(ctx context.Context, idToken string) (authmodel.User, error) {
	var resp userEnvelope
	body := map[string]string{"idToken": idToken}
	if err := a.c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, &resp); err != nil {
		return authmodel.User{}, err
	}
	return resp.User, nil
}

// Register creates the backend user for a freshly created identity.
func (a *AuthAPI) Register(ctx context.Context, idToken string, profile authmodel.Profile) (authmodel.User, error) {
	var resp userEnvelope
	body := map[string]any{"idToken": idToken, "userData": profile}
	if err := a.c.do(ctx, http.MethodPost, "/api/auth/register", nil, body, &resp); err != nil {
		return authmodel.User{}, err
	}
	return resp.User, nil
}

// Logout invalidates the backend session.
func (a *AuthAPI) Logout(ctx context.Context) error {
	return a.c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
}

// Me returns the user the current credential belongs to.
func (a *AuthAPI) Me(ctx context.Context) (authmodel.User, error) {
	var resp userEnvelope
	if err := a.c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &resp); err != nil {
		return authmodel.User{}, err
	}
	return resp.User, nil
}

// UpdateProfile changes the caller's profile.
func (a *AuthAPI) UpdateProfile(ctx context.Context, update authmodel.ProfileUpdate) (authmodel.User, error) {
	var resp userEnvelope
	if err := a.c.do(ctx, http.MethodPut, "/api/auth/profile", nil, update, &resp); err != nil {
		return authmodel.User{}, err
	}
	return resp.User, nil
}

// UpdateLocation stores the caller's last known position.
func (a *AuthAPI) UpdateLocation(ctx context.Context, loc geomodel.Location) (geomodel.Location, error) {
	var resp struct {
		Location geomodel.Location `json:"location"`
	}
	if err := a.c.do(ctx, http.MethodPost, "/api/auth/location", nil, loc, &resp); err != nil {
		return geomodel.Location{}, err
	}
	return resp.Location, nil
}

// OnlineUsers lists users currently connected.
func (a *AuthAPI) OnlineUsers(ctx context.Context) ([]authmodel.User, error) {
	var resp struct {
		Users []authmodel.User `json:"users"`
	}
	if err := a.c.do(ctx, http.MethodGet, "/api/auth/online", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// Status reports the auth service health payload verbatim.
func (a *AuthAPI) Status(ctx context.Context) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := a.c.do(ctx, http.MethodGet, "/api/auth/status", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
