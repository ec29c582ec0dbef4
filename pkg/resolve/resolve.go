// Package resolve post-processes raw classifier output before it is
// accepted into a session: sensitivity boost, low-confidence runner-up swap,
// and the fixed Surprise→Neutral remap.
package resolve

import (
	"github.com/teslashibe/go-affect/pkg/emotion"
)

// Config holds resolver parameters.
type Config struct {
	Multiplier    float64 `yaml:"multiplier"`     // Sensitivity boost applied to probabilities
	Floor         float64 `yaml:"floor"`          // Below this, the runner-up is considered
	Margin        float64 `yaml:"margin"`         // Runner-up must beat original top × Margin
	RemapSurprise bool    `yaml:"remap_surprise"` // Report Surprise as Neutral
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		Multiplier:    1.5,
		Floor:         0.4,
		Margin:        1.2,
		RemapSurprise: true,
	}
}

// Resolver applies Config to classification results. It holds no mutable
// state and is safe for concurrent use.
type Resolver struct {
	config Config
}

// New creates a resolver.
func New(cfg Config) *Resolver {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	return &Resolver{config: cfg}
}

// Config returns the resolver's parameters.
func (r *Resolver) Config() Config {
	return r.config
}

// Resolve returns the accepted result for raw. The returned confidence is
// always within [0, 1] and the returned result never aliases raw's slice.
func (r *Resolver) Resolve(raw emotion.Result) emotion.Result {
	if raw.Label == emotion.NoFace {
		return emotion.Result{Label: emotion.NoFace, Source: raw.Source}
	}

	out := emotion.Result{Source: raw.Source}

	if raw.HasProbabilities() {
		boosted := make([]float64, emotion.NumClasses)
		for i, p := range raw.Probabilities {
			boosted[i] = emotion.Clamp(p * r.config.Multiplier)
		}

		chosen := argmax(boosted)
		conf := boosted[chosen]
		original := raw.Probabilities[chosen]

		if conf < r.config.Floor {
			if second := runnerUp(boosted, chosen); second >= 0 && boosted[second] > original*r.config.Margin {
				chosen = second
				conf = boosted[second]
			}
		}

		out.Label = emotion.ModelOrder[chosen]
		out.Confidence = conf
		out.Probabilities = boosted
	} else {
		out.Label = raw.Label
		if !out.Label.Valid() {
			out.Label = emotion.Neutral
		}
		out.Confidence = emotion.Clamp(raw.Confidence)
	}

	if r.config.RemapSurprise && out.Label == emotion.Surprise {
		out.Label = emotion.Neutral
	}
	out.Confidence = emotion.Clamp(out.Confidence)
	return out
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// runnerUp returns the index of the highest value other than skip, or -1.
func runnerUp(v []float64, skip int) int {
	best := -1
	for i := range v {
		if i == skip {
			continue
		}
		if best < 0 || v[i] > v[best] {
			best = i
		}
	}
	return best
}
