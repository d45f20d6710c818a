package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authmodel "github.com/zhouzirui/maps-app/client/internal/model/auth"
	"github.com/zhouzirui/maps-app/client/internal/testutil"
	"github.com/zhouzirui/maps-app/client/pkg/utils"
)

type fakeFirebase struct {
	refreshes atomic.Int32
	updates   atomic.Int32
}

func (f *fakeFirebase) router(t *testing.T) http.Handler {
	r := chi.NewRouter()
	r.Route("/identitytoolkit.googleapis.com/v1", func(r chi.Router) {
		r.Post("/accounts:signInWithPassword", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			var in map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			switch {
			case in["password"] == "secret":
				testutil.RespondJSON(w, http.StatusOK, map[string]any{
					"localId": "uid-1", "email": in["email"], "idToken": "id-1", "refreshToken": "rt-1", "expiresIn": "3600",
				})
			case in["email"] == "blocked@example.com":
				testutil.RespondJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"code": 400, "message": "TOO_MANY_ATTEMPTS_TRY_LATER : Access disabled"}})
			default:
				testutil.RespondJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"code": 400, "message": "INVALID_LOGIN_CREDENTIALS"}})
			}
		})
		r.Post("/accounts:signUp", func(w http.ResponseWriter, r *http.Request) {
			var in map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			if in["email"] == "taken@example.com" {
				testutil.RespondJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "EMAIL_EXISTS"}})
				return
			}
			testutil.RespondJSON(w, http.StatusOK, map[string]any{
				"localId": "uid-2", "email": in["email"], "idToken": "id-new", "refreshToken": "rt-new", "expiresIn": "3600",
			})
		})
		r.Post("/accounts:update", func(w http.ResponseWriter, r *http.Request) {
			f.updates.Add(1)
			testutil.RespondJSON(w, http.StatusOK, map[string]any{
				"localId": "uid-2", "displayName": "Ana", "idToken": "id-named", "refreshToken": "rt-named", "expiresIn": "3600",
			})
		})
	})
	r.Post("/securetoken.googleapis.com/v1/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("refresh_token") == "revoked" {
			testutil.RespondJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "INVALID_REFRESH_TOKEN"}})
			return
		}
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		f.refreshes.Add(1)
		testutil.RespondJSON(w, http.StatusOK, map[string]any{
			"id_token": "id-refreshed", "refresh_token": "rt-2", "expires_in": "3600", "user_id": "uid-1",
		})
	})
	return r
}

func setupFirebase(t *testing.T) (*Firebase, *fakeFirebase, *utils.ManualClock) {
	t.Helper()
	fake := &fakeFirebase{}
	srv := httptest.NewServer(fake.router(t))
	t.Cleanup(srv.Close)

	clock := utils.NewManualClock(time.Unix(1_700_000_000, 0))
	host := srv.Listener.Addr().String()
	return NewFirebase(Config{APIKey: "test-key", EmulatorHost: host}, clock, nil), fake, clock
}

func TestSignIn(t *testing.T) {
	fb, _, clock := setupFirebase(t)

	token, err := fb.SignIn(context.Background(), authmodel.Credentials{Email: "ana@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", token)

	account, ok := fb.Current()
	require.True(t, ok)
	assert.Equal(t, "uid-1", account.UID)
	assert.Equal(t, clock.Now().Add(time.Hour), account.ExpiresAt)
}

func TestSignInErrors(t *testing.T) {
	fb, _, _ := setupFirebase(t)
	ctx := context.Background()

	_, err := fb.SignIn(ctx, authmodel.Credentials{Email: "ana@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = fb.SignIn(ctx, authmodel.Credentials{Email: "blocked@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrProvider)
	assert.Contains(t, err.Error(), "TOO_MANY_ATTEMPTS_TRY_LATER")
	assert.NotContains(t, err.Error(), "Access disabled")

	_, ok := fb.Current()
	assert.False(t, ok)
}

func TestSignUpSetsDisplayName(t *testing.T) {
	fb, fake, _ := setupFirebase(t)
	ctx := context.Background()

	token, err := fb.SignUp(ctx, authmodel.Credentials{Email: "new@example.com", Password: "secret"}, "Ana")
	require.NoError(t, err)
	assert.Equal(t, "id-named", token)
	assert.Equal(t, int32(1), fake.updates.Load())

	account, _ := fb.Current()
	assert.Equal(t, "Ana", account.DisplayName)

	_, err = fb.SignUp(ctx, authmodel.Credentials{Email: "taken@example.com", Password: "secret"}, "")
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestTokenRefresh(t *testing.T) {
	fb, fake, clock := setupFirebase(t)
	ctx := context.Background()

	_, err := fb.Token(ctx, false)
	assert.ErrorIs(t, err, ErrNotSignedIn)

	_, err = fb.SignIn(ctx, authmodel.Credentials{Email: "ana@example.com", Password: "secret"})
	require.NoError(t, err)

	token, err := fb.Token(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "id-1", token)
	assert.Equal(t, int32(0), fake.refreshes.Load())

	token, err = fb.Token(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "id-refreshed", token)
	assert.Equal(t, int32(1), fake.refreshes.Load())

	clock.Advance(59*time.Minute + 30*time.Second)
	_, err = fb.Token(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.refreshes.Load())
}

func TestTokenRefreshRejected(t *testing.T) {
	fb, _, _ := setupFirebase(t)
	fb.setCurrent(&Account{UID: "uid-1", IDToken: "old", RefreshToken: "revoked"})

	_, err := fb.Token(context.Background(), true)
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestSignOutForgetsAccount(t *testing.T) {
	fb, _, _ := setupFirebase(t)
	ctx := context.Background()
	_, err := fb.SignIn(ctx, authmodel.Credentials{Email: "ana@example.com", Password: "secret"})
	require.NoError(t, err)

	require.NoError(t, fb.SignOut(ctx))
	_, ok := fb.Current()
	assert.False(t, ok)
	_, err = fb.Token(ctx, false)
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestProviderCode(t *testing.T) {
	assert.Equal(t, "WEAK_PASSWORD", providerCode("WEAK_PASSWORD : Password should be at least 6 characters"))
	assert.Equal(t, "EMAIL_EXISTS", providerCode("EMAIL_EXISTS"))
}
