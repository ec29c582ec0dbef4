package web

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-affect/pkg/emotion"
	"github.com/teslashibe/go-affect/pkg/pipeline"
	"github.com/teslashibe/go-affect/pkg/session"
)

// DetectRequest is the body of POST /api/emotion/detect.
type DetectRequest struct {
	SessionID string `json:"session_id"`
	ImageData string `json:"image_data"` // base64 or data URL
}

// StartSessionRequest is the body of POST /api/sessions.
type StartSessionRequest struct {
	PatientID string `json:"patient_id"`
}

// StartSessionResponse is returned by POST /api/sessions.
type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// EndSessionResponse is returned by POST /api/sessions/:id/end.
type EndSessionResponse struct {
	SessionID    string        `json:"session_id"`
	Status       string        `json:"status"`
	FinalEmotion emotion.Label `json:"final_emotion"`
	Frames       int           `json:"frames"`
}

// MoodRequest is the body of POST /api/sessions/:id/mood.
type MoodRequest struct {
	Mood string `json:"mood"`
}

// MoodResponse tells the chat layer how to respond.
type MoodResponse struct {
	SessionID  string        `json:"session_id"`
	Emotion    emotion.Label `json:"emotion"`
	Confidence float64       `json:"confidence"`
	Tone       emotion.Tone  `json:"tone"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status     string  `json:"status"`
	Classifier string  `json:"classifier"`
	Sessions   int     `json:"sessions"`
	Uptime     float64 `json:"uptime_seconds"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:     "ok",
		Classifier: s.stream.ClassifierName(),
		Sessions:   s.registry.Len(),
		Uptime:     time.Since(s.started).Seconds(),
	})
}

// handleDetect runs one base64 frame through the stream pipeline. Frame
// failures still produce a reading; only malformed requests are rejected.
func (s *Server) handleDetect(c *fiber.Ctx) error {
	var req DetectRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return fmt.Errorf("%w: session_id is required", errBadRequest)
	}
	if req.ImageData == "" {
		return fmt.Errorf("%w: image_data is required", errBadRequest)
	}

	reading, err := s.stream.DetectBase64(c.UserContext(), req.SessionID, req.ImageData)
	if err != nil && !s.tolerable(err, req.SessionID) {
		return err
	}
	return c.JSON(reading)
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	frame, err := formFrame(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	reading, err := s.upload.Detect(c.UserContext(), id, frame)
	if err != nil && !s.tolerable(err, id) {
		return err
	}
	return c.JSON(reading)
}

// handleDebug analyzes a multipart or JSON frame without touching sessions.
func (s *Server) handleDebug(c *fiber.Ctx) error {
	var frame pipeline.Frame
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		f, err := formFrame(c)
		if err != nil {
			return err
		}
		frame = f
	} else {
		var req DetectRequest
		if err := c.BodyParser(&req); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		f, err := pipeline.FrameFromBase64(req.ImageData)
		if err != nil {
			return err
		}
		frame = f
	}

	analysis, err := s.upload.Analyze(c.UserContext(), frame)
	if err != nil {
		return err
	}
	return c.JSON(analysis)
}

func (s *Server) handleStartSession(c *fiber.Ctx) error {
	var req StartSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	sess := s.registry.Start(req.PatientID)
	return c.JSON(StartSessionResponse{SessionID: sess.ID(), Status: "started"})
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"sessions": s.registry.List()})
}

func (s *Server) handleEndSession(c *fiber.Ctx) error {
	st, err := s.registry.Close(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(EndSessionResponse{
		SessionID:    st.ID,
		Status:       "session_ended",
		FinalEmotion: st.Current,
		Frames:       st.Frames,
	})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	st, err := s.registry.History(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (s *Server) handleGetMood(c *fiber.Ctx) error {
	sess, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return err
	}
	label, conf := sess.Current()
	return c.JSON(MoodResponse{
		SessionID:  sess.ID(),
		Emotion:    label,
		Confidence: conf,
		Tone:       emotion.ToneFor(label),
	})
}

// handleSetMood applies a manual override, e.g. from a clinician.
func (s *Server) handleSetMood(c *fiber.Ctx) error {
	var req MoodRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	label, err := emotion.Parse(req.Mood)
	if err != nil || label == emotion.NoFace {
		return fmt.Errorf("%w: %q", session.ErrInvalidMood, req.Mood)
	}

	st, err := s.registry.SetMood(c.Params("id"), label)
	if err != nil {
		return err
	}
	s.events.PublishJSON(st.ID, fiber.Map{
		"session_id": st.ID,
		"emotion":    st.Current,
		"outcome":    "override",
		"timestamp":  st.UpdatedAt,
	})
	return c.JSON(MoodResponse{
		SessionID:  st.ID,
		Emotion:    st.Current,
		Confidence: st.LastConfidence,
		Tone:       emotion.ToneFor(st.Current),
	})
}

func (s *Server) handlePatientSessions(c *fiber.Ctx) error {
	patient := c.Params("id")
	return c.JSON(fiber.Map{
		"patient_id": patient,
		"sessions":   s.registry.ByPatient(patient),
	})
}

// tolerable reports whether a detect error still yields a normal reply.
// Frame-level failures degrade to the prior label; a bad session id does not.
func (s *Server) tolerable(err error, sessionID string) bool {
	if errors.Is(err, session.ErrInvalidID) {
		return false
	}
	s.logger.Warn("detect degraded", "session_id", sessionID, "error", err)
	return true
}

func formFrame(c *fiber.Ctx) (pipeline.Frame, error) {
	fh, err := c.FormFile("frame")
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("%w: multipart field \"frame\" is required", errBadRequest)
	}
	f, err := fh.Open()
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return pipeline.Frame{}, fmt.Errorf("read upload: %w", err)
	}
	format := strings.TrimPrefix(fh.Header.Get(fiber.HeaderContentType), "image/")
	return pipeline.Frame{Data: data, Format: format}, nil
}
