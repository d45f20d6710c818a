package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/maps-app/client/pkg/utils"
)

// Config describes the backend the gateway talks to.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	UploadTimeout time.Duration
}

// Client wraps every outbound REST call: bearer injection, request ids and
// error classification. Endpoint groups hang off it.
type Client struct {
	baseURL        string
	http           *http.Client
	upload         *http.Client
	token          func() string
	onUnauthorized func()
	log            *zap.Logger

	Auth    *AuthAPI
	Users   *UserAPI
	Rooms   *RoomAPI
	Maps    *MapsAPI
	Uploads *UploadAPI
}

// Option customises a Client.
type Option func(*Client)

// WithTokenSource sets where the bearer credential comes from.
func WithTokenSource(fn func() string) Option {
	return func(c *Client) { c.token = fn }
}

// WithUnauthorizedHandler registers the hook run on every 401.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// WithHTTPClient replaces both underlying HTTP clients.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
		c.upload = hc
	}
}

// New builds a Client for cfg.
func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 60 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		upload:  &http.Client{Timeout: uploadTimeout},
		token:   func() string { return "" },
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("api")

	c.Auth = &AuthAPI{c: c}
	c.Users = &UserAPI{c: c}
	c.Rooms = &RoomAPI{c: c}
	c.Maps = &MapsAPI{c: c}
	c.Uploads = &UploadAPI{c: c}
	return c
}

type tokenKey struct{}

// WithToken makes calls under ctx use token instead of the token source.
// It lets a persisted credential be verified before it becomes the session.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func (c *Client) bearer(ctx context.Context) string {
	if token, ok := ctx.Value(tokenKey{}).(string); ok {
		return token
	}
	return c.token()
}

// do sends a JSON request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, method, path, query, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(c.http, req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.bearer(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(hc *http.Client, req *http.Request, out any) error {
	method, path := req.Method, req.URL.Path
	started := time.Now()

	resp, err := hc.Do(req)
	if err != nil {
		c.log.Warn("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &Error{Kind: KindNetwork, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := utils.DecodeJSON(resp.Body, out); err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		return nil
	}

	apiErr := &Error{
		Kind:    kindForStatus(resp.StatusCode),
		Status:  resp.StatusCode,
		Method:  method,
		Path:    path,
		Message: utils.ErrorMessage(resp.Body),
	}

	switch apiErr.Kind {
	case KindUnauthorized:
		c.log.Warn("credential rejected", zap.String("path", path))
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	case KindServer:
		c.log.Error("server error", zap.String("path", path), zap.Int("status", resp.StatusCode))
	}
	return apiErr
}
