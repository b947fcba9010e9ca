// Package settingsclient is the HTTP implementation of settings.RemoteStore
// used by devices to reach the sync API.
package settingsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rosterlink/backend/internal/domain/settings"
	"go.uber.org/zap"
)

const (
	syncPath        = "/api/v1/sync"
	maxResponseSize = 2 << 20
	defaultTimeout  = 15 * time.Second
)

var (
	ErrMissingServerURL = errors.New("settingsclient: server URL is required")
	ErrUnauthorized     = errors.New("settingsclient: token rejected by the sync API")
	ErrNotSignedIn      = errors.New("settingsclient: no token set")
)

// StatusError is a non-2xx sync API response
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("settingsclient: HTTP %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("settingsclient: HTTP %d", e.Status)
}

// envelope mirrors the API's response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type syncBody struct {
	Settings settings.SyncDocument `json:"settings"`
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// Client talks to GET/PUT /api/v1/sync with a bearer token
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client for the server at serverURL
func New(serverURL string, opts ...Option) (*Client, error) {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return nil, ErrMissingServerURL
	}
	u, err := url.Parse(serverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("settingsclient: invalid server URL %q", serverURL)
	}
	c := &Client{
		endpoint:   strings.TrimRight(u.String(), "/") + syncPath,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken sets the bearer token; an empty token signs the client out
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Fetch returns the remote document, or nil when the user never pushed
func (c *Client) Fetch(ctx context.Context) (settings.SyncDocument, error) {
	resp, err := c.do(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	env, err := c.decode(resp)
	if err != nil {
		return nil, err
	}
	var body syncBody
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &body); err != nil {
			return nil, fmt.Errorf("settingsclient: decode document: %w", err)
		}
	}
	return body.Settings, nil
}

// Replace overwrites the remote document
func (c *Client) Replace(ctx context.Context, doc settings.SyncDocument) error {
	if doc == nil {
		doc = settings.SyncDocument{}
	}
	payload, err := json.Marshal(syncBody{Settings: doc})
	if err != nil {
		return fmt.Errorf("settingsclient: encode document: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPut, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	_, err = c.decode(resp)
	return err
}

func (c *Client) do(ctx context.Context, method string, body []byte) (*http.Response, error) {
	token := c.bearer()
	if token == "" {
		return nil, ErrNotSignedIn
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("settingsclient: %s %s: %w", method, syncPath, err)
	}
	c.logger.Debug("Sync API call",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// decode reads the envelope and maps error statuses
func (c *Client) decode(resp *http.Response) (*envelope, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("settingsclient: read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}

	var env envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("settingsclient: decode response: %w", err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Status: resp.StatusCode}
		if env.Error != nil {
			se.Code = env.Error.Code
			se.Message = env.Error.Message
		}
		return nil, se
	}
	return &env, nil
}

var _ settings.RemoteStore = (*Client)(nil)
