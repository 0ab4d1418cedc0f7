package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultURL is the OpenAI realtime websocket endpoint.
	DefaultURL = "wss://api.openai.com/v1/realtime"

	// DefaultModel is used when Connect is given an empty model.
	DefaultModel = "gpt-4o-realtime-preview"

	// DefaultHandshakeTimeout bounds the websocket upgrade only. The dial
	// itself follows the caller's context.
	DefaultHandshakeTimeout = 15 * time.Second
)

// Client dials realtime voice sessions.
type Client struct {
	apiKey           string
	url              string
	organization     string
	handshakeTimeout time.Duration
	logger           *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithURL overrides the websocket endpoint. Compatible self-hosted servers
// and test servers are reached this way.
func WithURL(u string) Option {
	return func(c *Client) {
		c.url = u
	}
}

// WithOrganization sets the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(c *Client) {
		c.organization = org
	}
}

// WithHandshakeTimeout sets the websocket handshake timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Client. An empty apiKey is allowed for servers that
// do not authenticate.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:           apiKey,
		url:              DefaultURL,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Connect opens a websocket session for model.
func (c *Client) Connect(ctx context.Context, model string) (*Conn, error) {
	if model == "" {
		model = DefaultModel
	}
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("realtime: invalid url %q: %w", c.url, err)
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}
	headers.Set("OpenAI-Beta", "realtime=v1")
	if c.organization != "" {
		headers.Set("OpenAI-Organization", c.organization)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Code:       "connection_failed",
				Message:    err.Error(),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}
	return newConn(ws, c.logger.With("model", model)), nil
}
