package web

import (
	"context"
	"encoding/json"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-affect/pkg/hub"
	"github.com/teslashibe/go-affect/pkg/pipeline"
)

// maxStreamMessage bounds one inbound video message.
const maxStreamMessage = 8 << 20

// StreamMessage is the JSON form of a video frame.
type StreamMessage struct {
	Image string `json:"image"` // base64 or data URL
}

// ThrottledOutcome is reported for frames dropped by the rate limiter.
const ThrottledOutcome = "throttled"

type throttledReply struct {
	SessionID string `json:"session_id"`
	Outcome   string `json:"outcome"`
}

type errorReply struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// handleVideoWS streams frames for one session. Each inbound message gets
// exactly one reply: a reading, a throttled notice, or an error.
func (s *Server) handleVideoWS(c *websocket.Conn) {
	id := c.Params("id")
	logger := s.logger.With("session_id", id, "remote", c.RemoteAddr().String())
	limiter := rate.NewLimiter(rate.Limit(s.config.StreamFPS), s.config.StreamBurst)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.SetReadLimit(maxStreamMessage)
	logger.Info("video stream opened")
	defer logger.Info("video stream closed")

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		var reply any
		switch {
		case !limiter.Allow():
			s.metrics.Throttled()
			reply = throttledReply{SessionID: id, Outcome: ThrottledOutcome}

		default:
			reading, derr := s.detectMessage(ctx, id, mt, data)
			if derr != nil {
				if reading.SessionID == "" {
					reply = errorReply{SessionID: id, Error: derr.Error()}
					break
				}
				logger.Debug("frame degraded", "outcome", reading.Outcome, "error", derr)
			}
			reply = reading
		}

		if err := c.WriteJSON(reply); err != nil {
			logger.Debug("write failed", "error", err)
			return
		}
	}
}

// detectMessage runs one inbound message through the stream pipeline. An
// envelope that cannot be parsed returns a zero Reading.
func (s *Server) detectMessage(ctx context.Context, id string, mt int, data []byte) (pipeline.Reading, error) {
	if mt == websocket.BinaryMessage {
		frame, _, err := pipeline.DecodePacket(data)
		if err != nil {
			return pipeline.Reading{}, err
		}
		return s.stream.Detect(ctx, id, frame)
	}

	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return pipeline.Reading{}, &pipeline.DecodeError{Format: "json", Err: err}
	}
	return s.stream.DetectBase64(ctx, id, msg.Image)
}

// handleEventsWS subscribes the connection to readings for one session, or
// all sessions on /ws/events.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	topic := c.Params("id")
	if topic == "" {
		topic = hub.AllTopics
	}
	hub.NewClient(s.events, c, topic).Run()
}
