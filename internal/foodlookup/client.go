// Package foodlookup searches a third-party food database authorised with OAuth2 client credentials.
package foodlookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/progressreports/internal/tokencache"
)

var (
	// ErrNotConfigured is returned when no credentials were supplied.
	ErrNotConfigured = errors.New("food lookup is not configured")
	// ErrUpstream wraps non-2xx answers from the food database or its token endpoint.
	ErrUpstream = errors.New("food lookup upstream error")
)

// tokenHeadroom is how long before expiry a cached token is considered stale.
const tokenHeadroom = 30 * time.Second

// Food is one search hit, with macros per serving.
type Food struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Brand    string  `json:"brand,omitempty"`
	Serving  string  `json:"serving"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// Config carries the upstream endpoints and credentials.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// Client searches foods, caching its access token in a shared tokencache.Cache.
type Client struct {
	cfg    Config
	cache  tokencache.Cache
	http   *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a Client.
func New(cfg Config, cache tokencache.Cache, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		cache:  cache,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether credentials and endpoints are present.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.TokenURL != "" && c.cfg.ClientID != ""
}

// Search returns up to limit foods matching query. A rejected token is discarded and the
// request retried once with a fresh one.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Food, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	foods, status, err := c.search(ctx, query, limit, false)
	if status == http.StatusUnauthorized {
		c.logger.Info("food lookup token rejected, refreshing")
		foods, _, err = c.search(ctx, query, limit, true)
	}
	return foods, err
}

func (c *Client) search(ctx context.Context, query string, limit int, refresh bool) ([]Food, int, error) {
	token, err := c.accessToken(ctx, refresh)
	if err != nil {
		return nil, 0, err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/foods/search?" + url.Values{
		"q":           {query},
		"max_results": {strconv.Itoa(limit)},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, fmt.Errorf("%w: search status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Foods []Food `json:"foods"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode search response: %w", err)
	}
	return payload.Foods, resp.StatusCode, nil
}

func (c *Client) accessToken(ctx context.Context, refresh bool) (string, error) {
	key := "foodlookup:" + c.cfg.ClientID
	if !refresh {
		cached, err := c.cache.Get(ctx, key)
		if err != nil {
			// Cache errors fall through to a fresh token.
			c.logger.Warn("token cache read failed", zap.Error(err))
		} else if cached != nil && cached.Valid(c.now().Add(tokenHeadroom)) {
			return cached.Value, nil
		}
	}

	token, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, token); err != nil {
		c.logger.Warn("token cache write failed", zap.Error(err))
	}
	return token.Value, nil
}

func (c *Client) fetchToken(ctx context.Context) (tokencache.Token, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	if c.cfg.Scope != "" {
		form.Set("scope", c.cfg.Scope)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokencache.Token{}, err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	issuedAt := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return tokencache.Token{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tokencache.Token{}, fmt.Errorf("%w: token status %d", ErrUpstream, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return tokencache.Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return tokencache.Token{}, fmt.Errorf("%w: empty access token", ErrUpstream)
	}
	c.logger.Debug("food lookup token issued", zap.Int("expires_in", payload.ExpiresIn))
	return tokencache.Token{
		Value:     payload.AccessToken,
		ExpiresAt: issuedAt.Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}
