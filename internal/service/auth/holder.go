package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	authmodel "github.com/zhouzirui/maps-app/client/internal/model/auth"
	geomodel "github.com/zhouzirui/maps-app/client/internal/model/geo"
	"github.com/zhouzirui/maps-app/client/internal/service/api"
	"github.com/zhouzirui/maps-app/client/pkg/utils"
)

var (
	// ErrAuthRejected means the backend refused an identity the provider accepted.
	ErrAuthRejected     = errors.New("backend rejected the identity")
	ErrNotAuthenticated = errors.New("not authenticated")

	errSuperseded = fmt.Errorf("%w: session changed during the request", ErrNotAuthenticated)
)

// IdentityProvider is the external identity layer.
type IdentityProvider interface {
	SignIn(ctx context.Context, creds authmodel.Credentials) (string, error)
	SignUp(ctx context.Context, creds authmodel.Credentials, displayName string) (string, error)
	Token(ctx context.Context, forceRefresh bool) (string, error)
	SignOut(ctx context.Context) error
}

// Backend is the subset of the REST gateway the holder drives.
type Backend interface {
	Login(ctx context.Context, idToken string) (authmodel.User, error)
	Register(ctx context.Context, idToken string, profile authmodel.Profile) (authmodel.User, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (authmodel.User, error)
	UpdateProfile(ctx context.Context, update authmodel.ProfileUpdate) (authmodel.User, error)
	UpdateLocation(ctx context.Context, loc geomodel.Location) (geomodel.Location, error)
}

// TokenStore persists the credential across restarts.
type TokenStore interface {
	LoadToken() (string, error)
	SaveToken(token string) error
	ClearToken() error
}

// Holder owns the session. Backend and identity calls never run under its lock;
// the epoch tells a call that resumes after one of them whether the session was
// signed out, cleared or replaced in the meantime.
type Holder struct {
	identity IdentityProvider
	backend  Backend
	store    TokenStore
	clock    utils.Clock
	log      *zap.Logger

	mu      sync.RWMutex
	session *authmodel.Session
	epoch   uint64
}

// Option customises a Holder.
type Option func(*Holder)

func WithClock(clock utils.Clock) Option {
	return func(h *Holder) { h.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *Holder) { h.log = logger }
}

// NewHolder builds a Holder. store may be nil when nothing is persisted.
func NewHolder(identity IdentityProvider, backend Backend, store TokenStore, opts ...Option) *Holder {
	h := &Holder{
		identity: identity,
		backend:  backend,
		store:    store,
		clock:    utils.SystemClock(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.Named("auth")
	return h
}

// SignIn authenticates with the identity provider and then with the backend.
// A backend refusal rolls the provider session back and leaves no credential.
func (h *Holder) SignIn(ctx context.Context, creds authmodel.Credentials) (authmodel.Session, error) {
	epoch := h.currentEpoch()
	idToken, err := h.identity.SignIn(ctx, creds)
	if err != nil {
		return authmodel.Session{}, fmt.Errorf("sign in: %w", err)
	}

	user, err := h.backend.Login(ctx, idToken)
	if err != nil {
		h.rollback(ctx)
		return authmodel.Session{}, fmt.Errorf("%w: %w", ErrAuthRejected, err)
	}

	session, err := h.establish(epoch, user, idToken)
	if err != nil {
		h.log.Info("sign in superseded", zap.String("uid", user.ID))
		return authmodel.Session{}, err
	}
	h.log.Info("signed in", zap.String("uid", user.ID), zap.String("role", string(user.Role)))
	return session, nil
}

// Register creates the identity and the backend user.
func (h *Holder) Register(ctx context.Context, creds authmodel.Credentials, profile authmodel.Profile) (authmodel.Session, error) {
	epoch := h.currentEpoch()
	idToken, err := h.identity.SignUp(ctx, creds, profile.DisplayName)
	if err != nil {
		return authmodel.Session{}, fmt.Errorf("register: %w", err)
	}

	user, err := h.backend.Register(ctx, idToken, profile)
	if err != nil {
		h.rollback(ctx)
		return authmodel.Session{}, fmt.Errorf("%w: %w", ErrAuthRejected, err)
	}

	session, err := h.establish(epoch, user, idToken)
	if err != nil {
		h.log.Info("registration superseded", zap.String("uid", user.ID))
		return authmodel.Session{}, err
	}
	h.log.Info("registered", zap.String("uid", user.ID))
	return session, nil
}

// SignOut logs out everywhere it can and always clears local state.
func (h *Holder) SignOut(ctx context.Context) {
	if h.IsAuthenticated() {
		if err := h.backend.Logout(ctx); err != nil {
			h.log.Warn("backend logout failed", zap.Error(err))
		}
	}
	if err := h.identity.SignOut(ctx); err != nil {
		h.log.Warn("identity sign out failed", zap.Error(err))
	}
	h.clear()
	h.log.Info("signed out")
}

// CurrentSession returns the active session, if any.
func (h *Holder) CurrentSession() (authmodel.Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.session == nil {
		return authmodel.Session{}, false
	}
	return *h.session, true
}

// Token returns the bearer credential, or "" when signed out.
func (h *Holder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.session == nil {
		return ""
	}
	return h.session.Token
}

func (h *Holder) IsAuthenticated() bool {
	session, ok := h.CurrentSession()
	return ok && session.Valid()
}

// Refresh forces a new credential from the identity provider. Any failure
// signs the user out. A refresh that completes after the session was cleared
// or replaced is discarded.
func (h *Holder) Refresh(ctx context.Context) (authmodel.Session, error) {
	h.mu.RLock()
	epoch := h.epoch
	var current authmodel.Session
	if h.session != nil {
		current = *h.session
	}
	h.mu.RUnlock()
	if !current.Valid() {
		return authmodel.Session{}, ErrNotAuthenticated
	}

	token, err := h.identity.Token(ctx, true)
	if err != nil {
		if h.currentEpoch() != epoch {
			return authmodel.Session{}, errSuperseded
		}
		h.log.Warn("token refresh failed", zap.Error(err))
		h.SignOut(ctx)
		return authmodel.Session{}, fmt.Errorf("refresh: %w", err)
	}

	session, err := h.establish(epoch, current.User, token)
	if err != nil {
		h.log.Debug("discarding refreshed token", zap.Error(err))
		return authmodel.Session{}, err
	}
	h.log.Debug("token refreshed", zap.Time("expires_at", session.ExpiresAt))
	return session, nil
}

// EnsureFresh refreshes the credential when it expires within d.
func (h *Holder) EnsureFresh(ctx context.Context, d time.Duration) (authmodel.Session, error) {
	current, ok := h.CurrentSession()
	if !ok {
		return authmodel.Session{}, ErrNotAuthenticated
	}
	if !current.ExpiresWithin(h.clock.Now(), d) {
		return current, nil
	}
	return h.Refresh(ctx)
}

// Restore resumes the persisted credential after verifying it with the
// backend. Anything short of a verified user clears the credential.
func (h *Holder) Restore(ctx context.Context) (authmodel.Session, bool) {
	if h.store == nil {
		return authmodel.Session{}, false
	}
	token, err := h.store.LoadToken()
	if err != nil {
		h.log.Warn("load persisted credential failed", zap.Error(err))
		return authmodel.Session{}, false
	}
	if token == "" {
		return authmodel.Session{}, false
	}
	epoch := h.currentEpoch()

	if exp := tokenExpiry(token); !exp.IsZero() && !h.clock.Now().Before(exp) {
		h.log.Info("persisted credential expired", zap.Time("expired_at", exp))
		h.clearIf(epoch)
		return authmodel.Session{}, false
	}

	user, err := h.backend.Me(api.WithToken(ctx, token))
	if err != nil {
		h.log.Warn("persisted credential rejected", zap.Error(err))
		h.clearIf(epoch)
		return authmodel.Session{}, false
	}

	session, err := h.establish(epoch, user, token)
	if err != nil {
		h.log.Info("restore superseded", zap.String("uid", user.ID))
		return authmodel.Session{}, false
	}
	h.log.Info("session restored", zap.String("uid", user.ID))
	return session, true
}

// HandleUnauthorized clears the session after the backend answered 401.
func (h *Holder) HandleUnauthorized() {
	if !h.IsAuthenticated() {
		return
	}
	h.log.Warn("credential rejected by backend, clearing session")
	h.clear()
}

// UpdateProfile changes the profile and replaces the held user.
func (h *Holder) UpdateProfile(ctx context.Context, update authmodel.ProfileUpdate) (authmodel.User, error) {
	if !h.IsAuthenticated() {
		return authmodel.User{}, ErrNotAuthenticated
	}
	user, err := h.backend.UpdateProfile(ctx, update)
	if err != nil {
		return authmodel.User{}, fmt.Errorf("update profile: %w", err)
	}
	h.replaceUser(func(authmodel.User) authmodel.User { return user })
	return user, nil
}

// UpdateLocation reports the position and records it on the held user.
func (h *Holder) UpdateLocation(ctx context.Context, loc geomodel.Location) (geomodel.Location, error) {
	if !h.IsAuthenticated() {
		return geomodel.Location{}, ErrNotAuthenticated
	}
	stored, err := h.backend.UpdateLocation(ctx, loc)
	if err != nil {
		return geomodel.Location{}, fmt.Errorf("update location: %w", err)
	}
	h.replaceUser(func(u authmodel.User) authmodel.User {
		u.Location = &stored
		return u
	})
	return stored, nil
}

func (h *Holder) currentEpoch() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.epoch
}

// establish replaces the session wholesale and persists its credential, unless
// the session changed since epoch was read. Store writes happen under the lock.
func (h *Holder) establish(epoch uint64, user authmodel.User, token string) (authmodel.Session, error) {
	session := authmodel.Session{User: user, Token: token, ExpiresAt: tokenExpiry(token)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.epoch != epoch {
		return authmodel.Session{}, errSuperseded
	}
	h.epoch++
	h.session = &session

	if h.store != nil {
		if err := h.store.SaveToken(token); err != nil {
			h.log.Warn("persist credential failed", zap.Error(err))
		}
	}
	return session, nil
}

func (h *Holder) replaceUser(fn func(authmodel.User) authmodel.User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return
	}
	next := *h.session
	next.User = fn(next.User)
	h.session = &next
}

func (h *Holder) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clearLocked()
}

// clearIf clears only when nothing replaced the session since epoch.
func (h *Holder) clearIf(epoch uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.epoch == epoch {
		h.clearLocked()
	}
}

func (h *Holder) clearLocked() {
	h.epoch++
	h.session = nil

	if h.store != nil {
		if err := h.store.ClearToken(); err != nil {
			h.log.Warn("clear persisted credential failed", zap.Error(err))
		}
	}
}

func (h *Holder) rollback(ctx context.Context) {
	if err := h.identity.SignOut(ctx); err != nil {
		h.log.Warn("identity rollback failed", zap.Error(err))
	}
	h.clear()
}
