// Package client talks to a go-affect server: REST calls for session
// lifecycle and a WebSocket stream for frames.
package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-affect/internal/httpc"
	"github.com/teslashibe/go-affect/pkg/pipeline"
	"github.com/teslashibe/go-affect/pkg/session"
	"github.com/teslashibe/go-affect/pkg/web"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the shared httpc client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialer.HandshakeTimeout = d }
}

// Client is safe for concurrent use. Streams are not.
type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	logger *slog.Logger
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		base:   u,
		http:   httpc.Client,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "client")
	return c, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + "/api" + path
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	h := http.Header{"X-Request-ID": {uuid.NewString()}}
	return httpc.DoJSON(ctx, c.http, method, c.endpoint(path), h, in, out)
}

// StartSession opens a session for patientID and returns its id.
func (c *Client) StartSession(ctx context.Context, patientID string) (string, error) {
	var resp web.StartSessionResponse
	if err := c.call(ctx, http.MethodPost, "/sessions", web.StartSessionRequest{PatientID: patientID}, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// EndSession closes a session.
func (c *Client) EndSession(ctx context.Context, id string) (web.EndSessionResponse, error) {
	var resp web.EndSessionResponse
	err := c.call(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/end", nil, &resp)
	return resp, err
}

// History returns the session's state.
func (c *Client) History(ctx context.Context, id string) (session.State, error) {
	var st session.State
	err := c.call(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id)+"/history", nil, &st)
	return st, err
}

// Mood returns the current emotion and response tone.
func (c *Client) Mood(ctx context.Context, id string) (web.MoodResponse, error) {
	var resp web.MoodResponse
	err := c.call(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id)+"/mood", nil, &resp)
	return resp, err
}

// Detect posts a single frame over REST.
func (c *Client) Detect(ctx context.Context, id string, frame pipeline.Frame) (pipeline.Reading, error) {
	req := web.DetectRequest{SessionID: id, ImageData: base64.StdEncoding.EncodeToString(frame.Data)}
	if frame.Format != "" {
		req.ImageData = "data:image/" + frame.Format + ";base64," + req.ImageData
	}
	var r pipeline.Reading
	err := c.call(ctx, http.MethodPost, "/emotion/detect", req, &r)
	return r, err
}

func (c *Client) wsURL(path string) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String() + path
}
