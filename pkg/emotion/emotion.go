// Package emotion defines the closed set of facial emotion labels and the
// per-frame classification result shared by every stage of the pipeline.
package emotion

import (
	"fmt"
	"strings"
)

// Label is one of the seven facial emotions, or the NoFace sentinel.
type Label string

// Supported labels.
const (
	Angry    Label = "Angry"
	Disgust  Label = "Disgust"
	Fear     Label = "Fear"
	Happy    Label = "Happy"
	Surprise Label = "Surprise"
	Sad      Label = "Sad"
	Neutral  Label = "Neutral"

	// NoFace signals that no face was found in the frame. It is never
	// recorded into a session's history.
	NoFace Label = "NoFace"
)

// ModelOrder is the output order of the 7-class emotion model.
// Probability vectors are always indexed in this order.
var ModelOrder = [...]Label{Angry, Disgust, Fear, Happy, Surprise, Sad, Neutral}

// NumClasses is the number of real emotion classes.
const NumClasses = len(ModelOrder)

// Valid reports whether l is one of the seven emotion classes.
func (l Label) Valid() bool {
	return l.Index() >= 0
}

// Index returns the position of l in ModelOrder, or -1.
func (l Label) Index() int {
	for i, m := range ModelOrder {
		if m == l {
			return i
		}
	}
	return -1
}

func (l Label) String() string {
	return string(l)
}

// Parse converts a case-insensitive name ("happy", "SAD") to a Label.
func Parse(s string) (Label, error) {
	s = strings.TrimSpace(s)
	for _, m := range ModelOrder {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	if strings.EqualFold(s, string(NoFace)) {
		return NoFace, nil
	}
	return "", fmt.Errorf("emotion: unknown label %q", s)
}

// Result is a single classification outcome. Probabilities is optional and,
// when present, has NumClasses entries in ModelOrder.
type Result struct {
	Label         Label     `json:"emotion"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	Source        string    `json:"source,omitempty"` // Classifier that produced it
}

// HasProbabilities reports whether r carries a full class distribution.
func (r Result) HasProbabilities() bool {
	return len(r.Probabilities) == NumClasses
}

// Clamp limits v to [0, 1].
func Clamp(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	}
	return v
}
