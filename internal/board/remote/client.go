package remote

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

	"golang.org/x/time/rate"

	"github.com/peak-flow/boardsync/internal/board/schema"
)

// ClientConfig configures an HTTP Authority client.
type ClientConfig struct {
	// BaseURL of the remote server, e.g. http://127.0.0.1:8787
	BaseURL string `mapstructure:"url"`

	// Secret signs bearer tokens when non-empty.
	Secret string `mapstructure:"secret"`

	// ClientName is put in the token claims.
	ClientName string `mapstructure:"client_name"`

	// RateLimit caps outgoing requests per second; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    "http://127.0.0.1:8787",
		ClientName: "boardsync",
		RateLimit:  20,
		Burst:      20,
		Timeout:    10 * time.Second,
	}
}

// Client is an Authority backed by a remote Server.
type Client struct {
	base    *url.URL
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient validates cfg and returns a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	c := &Client{
		base: base,
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// do sends one request and returns the response. Transport failures are
// wrapped in ErrTransient.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", ErrTransient, err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Secret != "" {
		token, err := SignToken(c.cfg.ClientName, c.cfg.Secret, 5*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("failed to sign token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransient, method, path, err)
	}
	return resp, nil
}

// statusError maps a non-success status to the error taxonomy.
func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return fmt.Errorf("%w: %d %s", ErrTransient, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: %d %s", ErrRejected, resp.StatusCode, msg)
	}
}

// Upsert implements Authority.Upsert.
func (c *Client) Upsert(ctx context.Context, card schema.RemoteCard, baseVersion int64) (int64, error) {
	path := "/v1/cards/" + url.PathEscape(card.ID)
	resp, err := c.do(ctx, http.MethodPut, path, upsertRequest{Card: card, BaseVersion: baseVersion})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out upsertResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return 0, fmt.Errorf("%w: failed to decode upsert response: %w", ErrTransient, err)
		}
		return out.Version, nil
	case http.StatusConflict:
		var out conflictResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return 0, fmt.Errorf("%w: failed to decode conflict response: %w", ErrTransient, err)
		}
		return 0, &ConflictError{ServerVersion: out.ServerVersion, Remote: out.Card}
	default:
		return 0, statusError(resp)
	}
}

// Delete implements Authority.Delete.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v1/cards/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return statusError(resp)
	}
}

// List implements Lister.
func (c *Client) List(ctx context.Context) ([]Record, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/cards", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode card list: %w", err)
	}
	return out.Cards, nil
}

// Health returns nil when the server answers /health with 200.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}
