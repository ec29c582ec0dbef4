package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-affect/pkg/pipeline"
	"github.com/teslashibe/go-affect/pkg/web"
)

// ErrStreamClosed is returned after Close.
var ErrStreamClosed = errors.New("client: stream closed")

// Reply is one server answer on the video stream.
type Reply struct {
	pipeline.Reading
	Error string `json:"error,omitempty"`
}

// Throttled reports whether the server dropped the frame.
func (r Reply) Throttled() bool {
	return string(r.Outcome) == web.ThrottledOutcome
}

// Stream is a video WebSocket for one session. Each Send gets exactly one
// reply, in order.
type Stream struct {
	conn      *websocket.Conn
	sessionID string

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// OpenStream dials /ws/:id/video.
func (c *Client) OpenStream(ctx context.Context, sessionID string) (*Stream, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL("/ws/"+url.PathEscape(sessionID)+"/video"), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: dial stream: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: dial stream: %w", err)
	}
	c.logger.Debug("stream opened", "session_id", sessionID)
	return &Stream{conn: conn, sessionID: sessionID}, nil
}

// Send writes frame as a binary msgpack message.
func (s *Stream) Send(frame pipeline.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.seq++
	data, err := pipeline.EncodePacket(frame, s.seq)
	if err != nil {
		return fmt.Errorf("client: encode frame: %w", err)
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Recv reads the next reply.
func (s *Stream) Recv() (Reply, error) {
	var r Reply
	if err := s.conn.ReadJSON(&r); err != nil {
		return Reply{}, err
	}
	return r, nil
}

// Detect sends frame and waits for its reply.
func (s *Stream) Detect(ctx context.Context, frame pipeline.Frame) (Reply, error) {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
		defer s.conn.SetReadDeadline(time.Time{})
	}
	if err := s.Send(frame); err != nil {
		return Reply{}, err
	}
	return s.Recv()
}

// SessionID returns the stream's session.
func (s *Stream) SessionID() string {
	return s.sessionID
}

// Close sends a close frame and releases the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
