package session

import "github.com/teslashibe/go-affect/pkg/emotion"

// Smoother turns instantaneous readings into a stabilized label by majority
// vote over a bounded window of recent labels.
type Smoother struct {
	Window   int // Maximum history length
	MinVotes int // Below this many entries the instant label wins
}

// DefaultSmoother returns a 10-frame window that votes from 3 entries on.
func DefaultSmoother() Smoother {
	return Smoother{Window: 10, MinVotes: 3}
}

// Update records res into st and returns the stabilized label. A NoFace
// reading leaves st untouched.
func (s Smoother) Update(st *State, res emotion.Result) emotion.Label {
	if res.Label == emotion.NoFace || !res.Label.Valid() {
		return st.Current
	}

	window := s.Window
	if window <= 0 {
		window = DefaultSmoother().Window
	}

	st.History = append(st.History, res.Label)
	if over := len(st.History) - window; over > 0 {
		st.History = append(st.History[:0], st.History[over:]...)
	}

	if len(st.History) < s.MinVotes {
		st.Current = res.Label
	} else {
		st.Current = Majority(st.History)
	}
	st.LastConfidence = res.Confidence
	return st.Current
}

// Majority returns the most frequent label in history. On a tie, the label
// whose latest occurrence is most recent wins.
func Majority(history []emotion.Label) emotion.Label {
	if len(history) == 0 {
		return emotion.Neutral
	}

	counts := make(map[emotion.Label]int, emotion.NumClasses)
	last := make(map[emotion.Label]int, emotion.NumClasses)
	for i, l := range history {
		counts[l]++
		last[l] = i
	}

	best := history[len(history)-1]
	for l, c := range counts {
		bc := counts[best]
		if c > bc || (c == bc && last[l] > last[best]) {
			best = l
		}
	}
	return best
}
