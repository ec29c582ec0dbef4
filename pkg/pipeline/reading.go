package pipeline

import (
	"time"

	"github.com/teslashibe/go-affect/pkg/classifier"
	"github.com/teslashibe/go-affect/pkg/emotion"
	"github.com/teslashibe/go-affect/pkg/face"
)

// Outcome is the terminal state of one inference call.
type Outcome string

const (
	OutcomeStabilized  Outcome = "stabilized"
	OutcomeNoFace      Outcome = "no_face"
	OutcomeDecodeError Outcome = "decode_error"
	OutcomeFailed      Outcome = "failed"
	OutcomeClosed      Outcome = "closed"
	OutcomeAbandoned   Outcome = "abandoned"
)

// Reading is what a transport returns for one frame.
type Reading struct {
	SessionID  string        `json:"session_id"`
	Emotion    emotion.Label `json:"emotion"`    // Stabilized label
	Confidence float64       `json:"confidence"` // Confidence of the instant reading
	Instant    emotion.Label `json:"instant,omitempty"`
	Outcome    Outcome       `json:"outcome"`
	FaceFound  bool          `json:"face_found"`
	ROI        *face.Rect    `json:"roi,omitempty"`
	Classifier string        `json:"classifier,omitempty"`
	Duration   time.Duration `json:"-"`
	At         time.Time     `json:"timestamp"`
}

// Analysis is a stateless breakdown of one frame for debugging.
type Analysis struct {
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Candidates int            `json:"candidates"`
	FaceFound  bool           `json:"face_found"`
	Face       *face.Rect     `json:"face,omitempty"`
	ROI        *face.Rect     `json:"roi,omitempty"`
	Raw        emotion.Result `json:"raw"`
	Resolved   emotion.Result `json:"resolved"`

	Features *classifier.Features `json:"features,omitempty"`
}
