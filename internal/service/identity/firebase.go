package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	authmodel "github.com/zhouzirui/maps-app/client/internal/model/auth"
	"github.com/zhouzirui/maps-app/client/pkg/utils"
)

const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://securetoken.googleapis.com/v1"

	// tokens are refreshed this long before they expire
	refreshSkew = time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
	ErrNotSignedIn        = errors.New("no signed-in user")
	ErrProvider           = errors.New("identity provider error")
)

// Config locates the Firebase Auth REST endpoints.
type Config struct {
	APIKey string
	// EmulatorHost, when set, overrides both URLs with the local emulator.
	EmulatorHost string
	IdentityURL  string
	TokenURL     string
	Timeout      time.Duration
}

// Account is the signed-in identity.
type Account struct {
	UID          string
	Email        string
	DisplayName  string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Firebase signs users in against the Firebase Auth REST API and keeps the
// current account in memory.
type Firebase struct {
	apiKey      string
	identityURL string
	tokenURL    string
	http        *http.Client
	clock       utils.Clock
	log         *zap.Logger

	mu      sync.Mutex
	current *Account
}

// NewFirebase builds a Firebase client.
func NewFirebase(cfg Config, clock utils.Clock, logger *zap.Logger) *Firebase {
	identityURL := strings.TrimRight(cfg.IdentityURL, "/")
	tokenURL := strings.TrimRight(cfg.TokenURL, "/")
	if cfg.EmulatorHost != "" {
		identityURL = "http://" + cfg.EmulatorHost + "/identitytoolkit.googleapis.com/v1"
		tokenURL = "http://" + cfg.EmulatorHost + "/securetoken.googleapis.com/v1"
	}
	if identityURL == "" {
		identityURL = DefaultIdentityURL
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Firebase{
		apiKey:      cfg.APIKey,
		identityURL: identityURL,
		tokenURL:    tokenURL,
		http:        &http.Client{Timeout: timeout},
		clock:       clock,
		log:         logger.Named("identity"),
	}
}

type accountResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// SignIn authenticates with email and password and returns the ID token.
func (f *Firebase) SignIn(ctx context.Context, creds authmodel.Credentials) (string, error) {
	var resp accountResponse
	body := map[string]any{"email": creds.Email, "password": creds.Password, "returnSecureToken": true}
	if err := f.postJSON(ctx, f.identityURL+"/accounts:signInWithPassword", body, &resp); err != nil {
		return "", fmt.Errorf("sign in: %w", err)
	}

	account := f.account(resp)
	f.setCurrent(&account)
	f.log.Info("signed in", zap.String("uid", account.UID))
	return account.IDToken, nil
}

// SignUp creates an account, sets its display name when given, and returns
// the ID token.
func (f *Firebase) SignUp(ctx context.Context, creds authmodel.Credentials, displayName string) (string, error) {
	var resp accountResponse
	body := map[string]any{"email": creds.Email, "password": creds.Password, "returnSecureToken": true}
	if err := f.postJSON(ctx, f.identityURL+"/accounts:signUp", body, &resp); err != nil {
		return "", fmt.Errorf("sign up: %w", err)
	}
	account := f.account(resp)

	if displayName != "" {
		var updated accountResponse
		update := map[string]any{"idToken": account.IDToken, "displayName": displayName, "returnSecureToken": true}
		if err := f.postJSON(ctx, f.identityURL+"/accounts:update", update, &updated); err != nil {
			return "", fmt.Errorf("set display name: %w", err)
		}
		account.DisplayName = displayName
		if updated.IDToken != "" {
			account.IDToken = updated.IDToken
			account.RefreshToken = updated.RefreshToken
			account.ExpiresAt = f.expiry(updated.ExpiresIn)
		}
	}

	f.setCurrent(&account)
	f.log.Info("account created", zap.String("uid", account.UID))
	return account.IDToken, nil
}

// Token returns the current ID token, refreshing it when forced or close to expiry.
func (f *Firebase) Token(ctx context.Context, forceRefresh bool) (string, error) {
	f.mu.Lock()
	current := f.current
	f.mu.Unlock()
	if current == nil {
		return "", ErrNotSignedIn
	}
	if !forceRefresh && f.clock.Now().Add(refreshSkew).Before(current.ExpiresAt) {
		return current.IDToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", current.RefreshToken)

	var resp struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
		UserID       string `json:"user_id"`
	}
	req, err := f.newRequest(ctx, f.tokenURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := f.send(req, &resp); err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}

	refreshed := *current
	refreshed.IDToken = resp.IDToken
	if resp.RefreshToken != "" {
		refreshed.RefreshToken = resp.RefreshToken
	}
	refreshed.ExpiresAt = f.expiry(resp.ExpiresIn)

	f.mu.Lock()
	// a concurrent SignOut wins
	if f.current == current {
		f.current = &refreshed
	}
	f.mu.Unlock()
	f.log.Debug("token refreshed", zap.String("uid", refreshed.UID))
	return refreshed.IDToken, nil
}

// SignOut forgets the current account. The REST API keeps no client session,
// so this never fails.
func (f *Firebase) SignOut(context.Context) error {
	f.setCurrent(nil)
	return nil
}

// Current returns the signed-in account.
func (f *Firebase) Current() (Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return Account{}, false
	}
	return *f.current, true
}

func (f *Firebase) setCurrent(account *Account) {
	f.mu.Lock()
	f.current = account
	f.mu.Unlock()
}

func (f *Firebase) account(resp accountResponse) Account {
	return Account{
		UID:          resp.LocalID,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    f.expiry(resp.ExpiresIn),
	}
}

func (f *Firebase) expiry(expiresIn string) time.Time {
	seconds, err := strconv.Atoi(expiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3600
	}
	return f.clock.Now().Add(time.Duration(seconds) * time.Second)
}

func (f *Firebase) postJSON(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := f.newRequest(ctx, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return f.send(req, out)
}

func (f *Firebase) newRequest(ctx context.Context, endpoint string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid identity endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("key", f.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	return req, nil
}

func (f *Firebase) send(req *http.Request, out any) error {
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return utils.DecodeJSON(resp.Body, out)
	}

	code := providerCode(utils.ErrorMessage(resp.Body))
	f.log.Warn("identity request rejected", zap.Int("status", resp.StatusCode), zap.String("code", code))
	return mapCode(code)
}

// providerCode strips the free-text suffix Firebase appends after " : ".
func providerCode(message string) string {
	code, _, _ := strings.Cut(message, " :")
	return strings.TrimSpace(code)
}

func mapCode(code string) error {
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED", "INVALID_EMAIL", "MISSING_PASSWORD":
		return fmt.Errorf("%w (%s)", ErrInvalidCredentials, code)
	case "EMAIL_EXISTS":
		return ErrEmailExists
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "USER_NOT_FOUND", "INVALID_ID_TOKEN":
		return fmt.Errorf("%w (%s)", ErrNotSignedIn, code)
	case "":
		return ErrProvider
	default:
		return fmt.Errorf("%w: %s", ErrProvider, code)
	}
}
