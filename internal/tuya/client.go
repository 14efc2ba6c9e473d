package tuya

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/tuya-relay/internal/command"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/config"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/logging"
)

const (
	tokenPath        = "/v1.0/token?grant_type=1"
	commandsPathTmpl = "/v1.0/iot-03/devices/%s/commands"

	// tokenRefreshMargin renews tokens slightly before the server expires them.
	tokenRefreshMargin = 60 * time.Second

	// maxResponseSize caps how much of a reply is read.
	maxResponseSize = 1 << 20

	defaultTimeout = 10 * time.Second
)

// regionHosts maps a Tuya data-center region code to its OpenAPI host.
var regionHosts = map[string]string{
	"cn":   "openapi.tuyacn.com",
	"us":   "openapi.tuyaus.com",
	"us-e": "openapi-ueaz.tuyaus.com",
	"eu":   "openapi.tuyaeu.com",
	"eu-w": "openapi-weaz.tuyaeu.com",
	"in":   "openapi.tuyain.com",
	"sg":   "openapi-sg.iotbing.com",
}

// envelope is the common OpenAPI reply shape.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Code    int             `json:"code,omitempty"`
	Msg     string          `json:"msg,omitempty"`
	T       int64           `json:"t,omitempty"`
	TID     string          `json:"tid,omitempty"`
}

type tokenResult struct {
	AccessToken  string `json:"access_token"`
	ExpireTime   int64  `json:"expire_time"`
	RefreshToken string `json:"refresh_token"`
	UID          string `json:"uid"`
}

// Client talks to the Tuya OpenAPI.
type Client struct {
	baseURL    string
	clientID   string
	secret     string
	httpClient *http.Client
	logger     *logging.Logger
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for token refresh events.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger.With("component", "tuya") }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// BaseURL resolves the OpenAPI base URL for a region. An explicit override
// wins over the region table.
func BaseURL(region, override string) (string, error) {
	if override != "" {
		return strings.TrimRight(override, "/"), nil
	}
	host, ok := regionHosts[strings.ToLower(region)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}
	return "https://" + host, nil
}

// New creates a Client from the cloud configuration section.
func New(cfg config.CloudConfig, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrMissingCredentials
	}

	base, err := BaseURL(cfg.Region, cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:    base,
		clientID:   cfg.APIKey,
		secret:     cfg.APISecret,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// SendCommand posts payload to the device commands endpoint and returns the
// raw reply body. A reply with "success": false is returned as *APIError.
func (c *Client) SendCommand(ctx context.Context, deviceID string, payload command.Payload) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding command payload: %w", err)
	}

	path := fmt.Sprintf(commandsPathTmpl, url.PathEscape(deviceID))
	return c.authorizedRequest(ctx, http.MethodPost, path, body)
}

// Token returns a cached access token, fetching a new one when needed.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	raw, env, err := c.do(ctx, http.MethodGet, tokenPath, nil, "")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenFailed, err)
	}
	if !env.Success {
		return "", fmt.Errorf("%w: %w", ErrTokenFailed, &APIError{Code: env.Code, Msg: env.Msg})
	}

	var tr tokenResult
	if err := json.Unmarshal(env.Result, &tr); err != nil || tr.AccessToken == "" {
		return "", fmt.Errorf("%w: unexpected token reply %s", ErrTokenFailed, raw)
	}

	c.token = tr.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tr.ExpireTime)*time.Second - tokenRefreshMargin)
	c.logger.Debug("access token refreshed", "expires_in_s", tr.ExpireTime)

	return c.token, nil
}

// invalidateToken drops the cached token if it is still the one that failed.
func (c *Client) invalidateToken(failed string) {
	c.mu.Lock()
	if c.token == failed {
		c.token = ""
		c.tokenExpiry = time.Time{}
	}
	c.mu.Unlock()
}

// authorizedRequest performs a token-signed request, renewing the token and
// repeating the request once if the server reports it as invalid.
func (c *Client) authorizedRequest(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, err
		}

		raw, env, err := c.do(ctx, method, path, body, token)
		if err != nil {
			return nil, err
		}
		if env.Success {
			return raw, nil
		}

		if env.Code == codeTokenInvalid && attempt == 0 {
			c.logger.Info("access token rejected, renewing")
			c.invalidateToken(token)
			continue
		}
		return raw, &APIError{Code: env.Code, Msg: env.Msg}
	}
}

// do sends one signed request and decodes the reply envelope.
func (c *Client) do(ctx context.Context, method, path string, body []byte, token string) (json.RawMessage, envelope, error) {
	var env envelope

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, env, fmt.Errorf("%w: building request: %w", ErrRequestFailed, err)
	}

	t := c.now().UnixMilli()
	req.Header.Set("client_id", c.clientID)
	req.Header.Set("sign", sign(c.clientID, c.secret, token, t, method, path, body))
	req.Header.Set("t", strconv.FormatInt(t, 10))
	req.Header.Set("sign_method", "HMAC-SHA256")
	if token != "" {
		req.Header.Set("access_token", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, env, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, env, fmt.Errorf("%w: reading reply: %w", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return raw, env, fmt.Errorf("%w: HTTP %d", ErrRequestFailed, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, &env); err != nil {
		return raw, env, fmt.Errorf("%w: decoding reply: %w", ErrRequestFailed, err)
	}

	return raw, env, nil
}
